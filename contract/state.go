package contract

import "mini-chat/domain"

type IRegistry interface {
	List() []domain.Session
	FindByTopic(topic string) (domain.Session, bool)
	FindByID(id string) (domain.Session, bool)
	Create(session domain.Session) (domain.Session, error)
	Remove(id string) (domain.Session, error)
}

type IMessageStore interface {
	Append(topic string, msg domain.Message) (bool, error)
	ApplyRevoke(topic string, revoke domain.Message) (bool, error)
	DeleteLocal(topic, id string) (bool, error)
	Get(topic string) []domain.Message
	Find(topic, id string) (domain.Message, bool)
}
