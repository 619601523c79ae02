package models

// Role is the speaker of a chat turn sent to the completion model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatTurn is a single prompt message; turns are built per request and never stored.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
