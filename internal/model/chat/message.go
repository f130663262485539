package chat

import "time"

// Sender identifies who produced a displayed message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one displayed turn. IDs are assigned locally and never by the remote agent.
type Message struct {
	ID        int64     `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a message with the current time.
func NewMessage(id int64, sender Sender, text string) Message {
	return Message{
		ID:        id,
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}
