package storage

import (
	"encoding/json"
	"fmt"
	"mini-chat/contract"
	"mini-chat/domain"
)

// SessionRepository stores the whole ordered session list under a single key.
type SessionRepository struct {
	kv contract.KeyValue
}

func NewSessionRepository(kv contract.KeyValue) *SessionRepository {
	return &SessionRepository{kv: kv}
}

func (r *SessionRepository) Load() ([]domain.Session, bool, error) {
	raw, ok, err := r.kv.Get(SessionsKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var sessions []domain.Session
	if err = json.Unmarshal(raw, &sessions); err != nil {
		return nil, false, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, true, nil
}

func (r *SessionRepository) Save(sessions []domain.Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return r.kv.Set(SessionsKey, raw)
}
