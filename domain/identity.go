package domain

import (
	"strings"

	"github.com/google/uuid"
)

type Identity struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// NewIdentity generates a user id that never contains the '-' separator used by private topics.
func NewIdentity() Identity {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	id := "ID_" + raw[:8]
	return Identity{
		UserID:   id,
		Nickname: "user_" + id[len(id)-4:],
	}
}
