package conversation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidRole is returned when a message role is not user or assistant.
	ErrInvalidRole = errors.New("invalid message role")
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Conversation owns an ordered list of messages.
type Conversation struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UUID      string     `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Title     string     `gorm:"size:200;not null" json:"title"`
	StartTime time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one append-only turn of a conversation.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"column:message_uuid;size:36;uniqueIndex;not null" json:"uuid"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	Timestamp      time.Time `gorm:"not null" json:"timestamp"`
	Role           Role      `gorm:"size:50;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
}

func (Message) TableName() string { return "messages" }
