package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"strings"
)

// MessageRepository persists one snapshot per topic.
// The key is formatted as "messages:{topic}"; the value is the topic's full ordered sequence.
// Writing a whole topic at once keeps last-writer-wins at snapshot granularity.
type MessageRepository struct {
	kv  contract.KeyValue
	log *slog.Logger
}

func NewMessageRepository(kv contract.KeyValue, log *slog.Logger) *MessageRepository {
	return &MessageRepository{kv: kv, log: log}
}

func (r *MessageRepository) SaveTopic(topic string, messages []domain.Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return r.kv.Set(MessagesPrefix+topic, raw)
}

// LoadAll restores every topic with a prefix scan.
// A corrupted topic is skipped so the rest of the history stays available.
func (r *MessageRepository) LoadAll() (map[string][]domain.Message, error) {
	entries, err := r.kv.Scan(MessagesPrefix)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	res := make(map[string][]domain.Message, len(entries))
	for key, raw := range entries {
		topic := strings.TrimPrefix(key, MessagesPrefix)
		var messages []domain.Message
		if err := json.Unmarshal(raw, &messages); err != nil {
			r.log.Error("Skipping corrupted topic history", "topic", topic, "error", err)
			continue
		}
		res[topic] = messages
	}
	return res, nil
}
