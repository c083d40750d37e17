package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Conversation is the ordered message sequence of one run. The system
// instruction is placed at position zero when the conversation is created
// and is never inserted again.
type Conversation struct {
	messages []*schema.Message
}

func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{messages: []*schema.Message{schema.SystemMessage(systemPrompt)}}
}

// Append adds messages to the tail. System messages are dropped: the header
// is owned by the constructor.
func (c *Conversation) Append(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m == nil || m.Role == schema.System {
			continue
		}
		c.messages = append(c.messages, m)
	}
}

// Messages returns a copy of the sequence, header included.
func (c *Conversation) Messages() []*schema.Message {
	out := make([]*schema.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

func (c *Conversation) Last() *schema.Message {
	return c.messages[len(c.messages)-1]
}

// LastAssistantToolCall returns the id of the most recent assistant tool call.
func (c *Conversation) LastAssistantToolCall() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == schema.Assistant && len(m.ToolCalls) > 0 {
			return m.ToolCalls[len(m.ToolCalls)-1].ID
		}
	}
	return ""
}

type TranscriptRepository interface {
	// SaveTranscript stores the full message sequence of a finished run.
	SaveTranscript(ctx context.Context, runID string, messages []*schema.Message) error

	// LoadTranscript retrieves the message sequence of a run.
	LoadTranscript(ctx context.Context, runID string) (*Transcript, error)

	// DeleteTranscript removes a stored run.
	DeleteTranscript(ctx context.Context, runID string) error

	// GetMessageCount returns the number of stored messages for a run.
	GetMessageCount(ctx context.Context, runID string) (int, error)
}

// Transcript represents a loaded run conversation.
type Transcript struct {
	RunID    string
	Messages []*schema.Message
}
