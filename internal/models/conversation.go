package models

import (
	"fmt"
	"time"
)

const (
	// DefaultChatName is assigned to every new chat until the title step renames it.
	DefaultChatName = "Untitled Chat"
	// FallbackChatName is reported for history reads of chats that no longer exist.
	FallbackChatName = "Restored Chat"
)

// Role identifies who authored a turn.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole maps a stored sender value to a Role. "bot" and "model" are
// accepted for rows written by older clients.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "assistant", "bot", "model":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("unknown sender %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

type Chat struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one immutable message of a chat. ID and Timestamp are assigned by
// the store on append.
type Turn struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type History struct {
	ChatName string `json:"chat_name"`
	Turns    []Turn `json:"turns"`
}
