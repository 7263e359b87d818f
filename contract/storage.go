package contract

import "mini-chat/domain"

// KeyValue is the durable surface every repository writes through.
type KeyValue interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Scan(prefix string) (map[string][]byte, error)
}

type IIdentityRepository interface {
	Load() (domain.Identity, bool, error)
	Save(identity domain.Identity) error
}

type ISessionRepository interface {
	Load() ([]domain.Session, bool, error)
	Save(sessions []domain.Session) error
}

type IMessageRepository interface {
	LoadAll() (map[string][]domain.Message, error)
	SaveTopic(topic string, messages []domain.Message) error
}
