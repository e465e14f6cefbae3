// Package models defines the domain types shared across maestro packages.
package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a session's chat history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Ptr returns a pointer to v. Used to populate optional StateDelta fields.
func Ptr[T any](v T) *T {
	return &v
}
