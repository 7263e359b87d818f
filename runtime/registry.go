package runtime

import (
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/errors"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry owns the known conversation sessions.
// The ordered slice is the source of truth (most recently created first),
// the two maps are lookup indexes kept in sync under the same lock.
type Registry struct {
	mu         sync.RWMutex
	log        *slog.Logger
	repository contract.ISessionRepository
	sessions   []domain.Session
	byTopic    map[string]domain.Session
	byID       map[string]domain.Session
}

func NewRegistry(log *slog.Logger, repository contract.ISessionRepository) *Registry {
	r := &Registry{log: log, repository: repository}
	r.reset([]domain.Session{domain.Lobby()})
	return r
}

// Load restores the persisted sessions. The lobby is appended when missing,
// and duplicated topics left by older snapshots are collapsed to their first occurrence.
func (r *Registry) Load() error {
	sessions, ok, err := r.repository.Load()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		return r.persist()
	}
	sessions = lo.UniqBy(sessions, func(s domain.Session) string { return s.Topic })
	sessions = lo.Reject(sessions, func(s domain.Session, _ int) bool {
		return s.IsLobby() != (s.Topic == domain.LobbyTopic)
	})
	if !lo.ContainsBy(sessions, func(s domain.Session) bool { return s.IsLobby() }) {
		sessions = append(sessions, domain.Lobby())
	}
	r.reset(sessions)
	r.log.Debug(fmt.Sprintf("%d sessions restored", len(sessions)))
	return nil
}

func (r *Registry) List() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]domain.Session, len(r.sessions))
	copy(res, r.sessions)
	return res
}

func (r *Registry) FindByTopic(topic string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byTopic[topic]
	return s, ok
}

func (r *Registry) FindByID(id string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Create inserts the session at the head of the list and persists the whole set.
// When the topic is already known, the existing session is returned with ErrDuplicateTopic.
func (r *Registry) Create(session domain.Session) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byTopic[session.Topic]; ok {
		return existing, errors.ErrDuplicateTopic
	}
	if _, ok := r.byID[session.ID]; ok {
		return domain.Session{}, fmt.Errorf("session id %s already used", session.ID)
	}
	r.sessions = append([]domain.Session{session}, r.sessions...)
	r.byTopic[session.Topic] = session
	r.byID[session.ID] = session

	return session, r.persist()
}

// Remove deletes a session. The lobby is protected.
func (r *Registry) Remove(id string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	if session.IsLobby() {
		return domain.Session{}, errors.ErrProtectedSession
	}
	r.sessions = lo.Reject(r.sessions, func(s domain.Session, _ int) bool { return s.ID == id })
	delete(r.byTopic, session.Topic)
	delete(r.byID, id)

	return session, r.persist()
}

func (r *Registry) reset(sessions []domain.Session) {
	r.sessions = sessions
	r.byTopic = make(map[string]domain.Session, len(sessions))
	r.byID = make(map[string]domain.Session, len(sessions))
	for _, s := range sessions {
		r.byTopic[s.Topic] = s
		r.byID[s.ID] = s
	}
}

// persist must be called with the write lock held.
func (r *Registry) persist() error {
	if err := r.repository.Save(r.sessions); err != nil {
		r.log.Error("Failed to persist sessions", "error", err)
		return fmt.Errorf("persist sessions: %w", err)
	}
	return nil
}
