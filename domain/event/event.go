package event

import (
	"mini-chat/domain"
)

// Source identifies which inbound path delivered a message.
type Source string

const (
	SourceTransport Source = "transport"
	SourceEcho      Source = "echo"
	SourceLocal     Source = "local"
)

// DomainEvent is emitted by the engine every time the observable state changes.
type DomainEvent interface {
	Name() string
}

type MessageAppended struct {
	Topic   string
	Message domain.Message
	Source  Source
}

func (MessageAppended) Name() string { return "message_appended" }

type MessageRevoked struct {
	Topic    string
	TargetID string
	Source   Source
}

func (MessageRevoked) Name() string { return "message_revoked" }

type MessageDeleted struct {
	Topic     string
	MessageID string
}

func (MessageDeleted) Name() string { return "message_deleted" }

type SessionCreated struct {
	Session    domain.Session
	Discovered bool
}

func (SessionCreated) Name() string { return "session_created" }

type SessionRemoved struct {
	Session domain.Session
}

func (SessionRemoved) Name() string { return "session_removed" }

type StatusChanged struct {
	Status domain.Status
}

func (StatusChanged) Name() string { return "status_changed" }

type IdentityChanged struct {
	Identity domain.Identity
}

func (IdentityChanged) Name() string { return "identity_changed" }
