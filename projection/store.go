// Package projection builds the local per-topic history from observed messages.
// Handles ordering, deduplication, and tombstones.
// Does not emit events or interact with the network directly.
package projection

import (
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/errors"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IMessageStore = (*MessageStore)(nil)

// MessageStore owns, per topic, an append-ordered sequence of messages.
// A single mutex guards every topic: the id check and the mutation are atomic together,
// so racing deliveries of the same id converge to exactly one stored copy.
type MessageStore struct {
	mu         sync.Mutex
	log        *slog.Logger
	repository contract.IMessageRepository
	topics     map[string][]domain.Message
	index      map[string]map[string]int // topic -> message id -> position
	hidden     map[string]map[string]struct{}
}

func NewMessageStore(log *slog.Logger, repository contract.IMessageRepository) *MessageStore {
	return &MessageStore{
		log:        log,
		repository: repository,
		topics:     make(map[string][]domain.Message),
		index:      make(map[string]map[string]int),
		hidden:     make(map[string]map[string]struct{}),
	}
}

// Load replaces the in-memory view with the persisted history.
func (s *MessageStore) Load() error {
	all, err := s.repository.LoadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = make(map[string][]domain.Message, len(all))
	s.index = make(map[string]map[string]int, len(all))
	for topic, messages := range all {
		s.topics[topic] = messages
		s.reindex(topic)
	}
	s.log.Debug(fmt.Sprintf("%d topics restored", len(all)))
	return nil
}

// Append inserts a content message at the end of the topic.
// It returns false when a message with the same id is already stored.
func (s *MessageStore) Append(topic string, msg domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.ids(topic)
	if _, exists := ids[msg.ID]; exists {
		return false, nil
	}
	if _, gone := s.hidden[topic][msg.ID]; gone {
		return false, nil
	}
	msg.Revoked = false
	s.topics[topic] = append(s.topics[topic], msg)
	ids[msg.ID] = len(s.topics[topic]) - 1

	return true, s.persist(topic)
}

// ApplyRevoke tombstones the message targeted by revoke.
// A target that is missing or already revoked leaves the store untouched.
func (s *MessageStore) ApplyRevoke(topic string, revoke domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.ids(topic)[revoke.Target()]
	if !ok {
		return false, errors.ErrRevokeTargetMissing
	}
	messages := s.topics[topic]
	if messages[pos].Revoked {
		return false, nil
	}
	messages[pos] = messages[pos].Tombstone()

	return true, s.persist(topic)
}

// DeleteLocal removes a message from this node's view only.
// Later deliveries of the same id are ignored until the process restarts.
func (s *MessageStore) DeleteLocal(topic, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids(topic)[id]; !ok {
		return false, nil
	}
	s.topics[topic] = lo.Reject(s.topics[topic], func(m domain.Message, _ int) bool {
		return m.ID == id
	})
	s.reindex(topic)
	if _, ok := s.hidden[topic]; !ok {
		s.hidden[topic] = make(map[string]struct{})
	}
	s.hidden[topic][id] = struct{}{}

	return true, s.persist(topic)
}

// Get returns a copy of the topic's current view, revoked entries included.
func (s *MessageStore) Get(topic string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.topics[topic]
	res := make([]domain.Message, len(messages))
	copy(res, messages)
	return res
}

func (s *MessageStore) Find(topic, id string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.ids(topic)[id]
	if !ok {
		return domain.Message{}, false
	}
	return s.topics[topic][pos], true
}

func (s *MessageStore) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.topics)
}

// ids must be called with the lock held.
func (s *MessageStore) ids(topic string) map[string]int {
	ids, ok := s.index[topic]
	if !ok {
		ids = make(map[string]int)
		s.index[topic] = ids
	}
	return ids
}

func (s *MessageStore) reindex(topic string) {
	ids := make(map[string]int, len(s.topics[topic]))
	for i, m := range s.topics[topic] {
		ids[m.ID] = i
	}
	s.index[topic] = ids
}

// persist writes the whole topic while the lock is held, so snapshots land in mutation order.
func (s *MessageStore) persist(topic string) error {
	if err := s.repository.SaveTopic(topic, s.topics[topic]); err != nil {
		s.log.Error("Failed to persist topic", "topic", topic, "error", err)
		return fmt.Errorf("persist %s: %w", topic, err)
	}
	return nil
}
