package model

import (
	"strings"
	"time"
)

// DefaultChatName is given to every newly created chat.
const DefaultChatName = "New Chat"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a chat. Messages are append-only.
type Message struct {
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	IsImage     bool      `json:"isImage"`
	IsPublished bool      `json:"isPublished"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewUserMessage builds the message recording a submitted prompt.
func NewUserMessage(prompt string, at time.Time) Message {
	return Message{
		Role:      RoleUser,
		Content:   prompt,
		Timestamp: at,
	}
}

// Chat is a named, ordered conversation owned by one user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastMessage returns the most recent message, or nil for an empty chat.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Matches reports whether the chat name or its most recent message
// contains query, ignoring case. An empty query matches everything.
func (c *Chat) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), q) {
		return true
	}
	if last := c.LastMessage(); last != nil {
		return strings.Contains(strings.ToLower(last.Content), q)
	}
	return false
}

// PublishedImage is one entry of the community gallery.
// It is derived from chat messages on read.
type PublishedImage struct {
	ImageURL  string    `json:"imageUrl"`
	UserName  string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
}
