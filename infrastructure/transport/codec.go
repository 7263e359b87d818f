package transport

import (
	"encoding/json"
	"fmt"
	"mini-chat/domain"
	"mini-chat/errors"
)

// Encode renders a message as its UTF-8 JSON wire payload.
// The revoked flag is local state and never leaves the node.
func Encode(msg domain.Message) ([]byte, error) {
	msg.Revoked = false
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return data, nil
}

// Decode parses a wire payload. Semantic checks are left to the engine.
func Decode(data []byte) (domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	msg.Revoked = false
	return msg, nil
}
