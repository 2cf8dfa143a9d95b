package domain

import "time"

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AttachmentMeta describes a file that accompanied a message. It is detached
// from the file bytes: the bytes go to the webhook, only the descriptor
// stays in the transcript.
type AttachmentMeta struct {
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Message is one turn in the transcript. Messages are immutable once
// appended; insertion order is display order.
type Message struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	IsError     bool             `json:"isError,omitempty"`
	Attachments []AttachmentMeta `json:"attachments,omitempty"`
}
