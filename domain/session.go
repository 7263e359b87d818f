// Package domain contains core concepts of the chat system.
// This file defines Session entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionKind string

const (
	LobbyKind   SessionKind = "lobby"
	GroupKind   SessionKind = "group"
	PrivateKind SessionKind = "private"
)

const (
	LobbyID   = "group"
	LobbyName = "Lobby"

	GroupAvatar   = "👥"
	PrivateAvatar = "👤"
	JoinedAvatar  = "🌐"
)

// Session is a conversation bound to exactly one transport topic.
type Session struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Topic     string      `json:"topic"`
	Avatar    string      `json:"avatar"`
	Kind      SessionKind `json:"kind"`
	TargetID  string      `json:"targetId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (s Session) IsLobby() bool {
	return s.ID == LobbyID
}

func Lobby() Session {
	return Session{
		ID:     LobbyID,
		Name:   LobbyName,
		Topic:  LobbyTopic,
		Avatar: GroupAvatar,
		Kind:   LobbyKind,
	}
}

func NewPrivateSession(name, topic, targetID string, at time.Time) Session {
	return Session{
		ID:        newSessionID("p_"),
		Name:      name,
		Topic:     topic,
		Avatar:    PrivateAvatar,
		Kind:      PrivateKind,
		TargetID:  targetID,
		CreatedAt: at,
	}
}

// NewGroupSession creates a group with a freshly generated topic.
func NewGroupSession(name string, at time.Time) Session {
	return Session{
		ID:        newSessionID("g_"),
		Name:      name,
		Topic:     GroupTopic(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Avatar:    GroupAvatar,
		Kind:      GroupKind,
		CreatedAt: at,
	}
}

// NewJoinedSession binds a session to a topic shared out of band.
func NewJoinedSession(name, topic string, at time.Time) Session {
	return Session{
		ID:        newSessionID("j_"),
		Name:      name,
		Topic:     topic,
		Avatar:    JoinedAvatar,
		Kind:      GroupKind,
		CreatedAt: at,
	}
}

func newSessionID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
