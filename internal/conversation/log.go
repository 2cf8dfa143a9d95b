package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"hookchat/internal/domain"
)

// Log is the append-only in-memory transcript. Messages are never mutated
// or removed once appended; insertion order is display order. The
// one-response-per-turn rule is guarded at the channel layer, not here.
type Log struct {
	mu       sync.RWMutex
	messages []domain.Message
}

func NewLog() *Log { return &Log{} }

// AppendUser records a user turn with descriptors for any attached files.
func (l *Log) AppendUser(content string, attachments []domain.AttachmentMeta) domain.Message {
	return l.append(domain.Message{
		Role:        domain.RoleUser,
		Content:     content,
		Attachments: attachments,
	})
}

// AppendAssistant records a successful assistant reply.
func (l *Log) AppendAssistant(content string) domain.Message {
	return l.append(domain.Message{Role: domain.RoleAssistant, Content: content})
}

// AppendError records a failed turn as an error-flagged assistant message,
// so the user's own turn is never lost.
func (l *Log) AppendError(content string) domain.Message {
	return l.append(domain.Message{Role: domain.RoleAssistant, Content: content, IsError: true})
}

func (l *Log) append(msg domain.Message) domain.Message {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now()

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
	return msg
}

// Restore replaces the log contents with a previously persisted transcript.
// Intended for startup only.
func (l *Log) Restore(messages []domain.Message) {
	l.mu.Lock()
	l.messages = append([]domain.Message(nil), messages...)
	l.mu.Unlock()
}

// Messages returns a copy of the transcript in insertion order.
func (l *Log) Messages() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
