// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once accepted by the store, except through revocation.
package domain

import "github.com/samber/lo"

// Kind tags the behavior of a message.
type Kind string

const (
	KindText   Kind = "text"
	KindRevoke Kind = "revoke"
)

// Message is the unit exchanged on every topic.
// The same struct is used on the wire and on disk; Revoked is derived locally.
// Only the id is mandatory, everything else may be missing on inbound payloads.
type Message struct {
	ID         string  `json:"id" validate:"required,max=1024"`
	Sender     string  `json:"sender"`
	SenderName string  `json:"senderName,omitempty"`
	Timestamp  int64   `json:"timestamp"`
	Kind       Kind    `json:"type"`
	Content    *string `json:"content"`
	TargetID   *string `json:"targetId"`
	Revoked    bool    `json:"revoked,omitempty"`
}

// Normalize fills defaults of an inbound payload.
// An untyped message is a text message and the revoked flag is never trusted from the outside.
func (m Message) Normalize() Message {
	if m.Kind == "" {
		m.Kind = KindText
	}
	m.Revoked = false
	return m
}

func (m Message) IsRevoke() bool {
	return m.Kind == KindRevoke
}

func (m Message) Text() string {
	return lo.FromPtr(m.Content)
}

func (m Message) Target() string {
	return lo.FromPtr(m.TargetID)
}

// Tombstone marks the message as withdrawn and drops its displayable content.
func (m Message) Tombstone() Message {
	m.Revoked = true
	m.Content = nil
	return m
}

// Envelope is the payload carried by the local echo bus.
type Envelope struct {
	Topic   string  `json:"topic"`
	Payload Message `json:"payload"`
}
