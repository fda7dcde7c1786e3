package domain

import (
	"fmt"
	"time"
)

// UserRole gates which session modes a caller may open.
type UserRole string

const (
	RoleAdmin          UserRole = "admin"
	RoleUser           UserRole = "user"
	RoleRestrictedUser UserRole = "ruser"
)

// SessionMode determines which partitions are queried for every turn of a
// session. It is fixed when the conversation is created.
type SessionMode string

const (
	ModePublic SessionMode = "public"
	ModeDual   SessionMode = "dual"
)

func (m SessionMode) Valid() bool {
	return m == ModePublic || m == ModeDual
}

// Partitions resolves the mode into the partitions queried per turn.
func (m SessionMode) Partitions() []Partition {
	if m == ModeDual {
		return []Partition{PartitionPublic, PartitionSecure}
	}
	return []Partition{PartitionPublic}
}

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ChatMessage is one entry of a session's append-only history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Citations []string  `json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SessionContext identifies the caller and the session a turn runs in.
type SessionContext struct {
	UserID         string      `json:"user_id"`
	Role           UserRole    `json:"role"`
	ConversationID string      `json:"conversation_id"`
	Mode           SessionMode `json:"mode"`
}

// SessionKey builds the history storage key. Mode is always an explicit key
// component so public and dual histories for the same (user, conversation)
// can never collide.
func (s SessionContext) SessionKey() string {
	return fmt.Sprintf("%s:%s:%s", s.Mode, s.UserID, s.ConversationID)
}

// TurnResult is the caller-facing outcome of one completed turn.
type TurnResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Conversation is the metadata record owning a session's mode and title.
type Conversation struct {
	ID        string      `json:"id"`
	Owner     string      `json:"owner"`
	Mode      SessionMode `json:"mode"`
	Title     string      `json:"title,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// User is an authentication record from the credential store.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
