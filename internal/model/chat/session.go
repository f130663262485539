package chat

// Role mirrors the role field of the remote agent protocol.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one protocol-level entry of a session transcript.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session captures the active remote session handle and the transcript mirrored from it.
type Session struct {
	ID      string        `json:"id"`
	AgentID string        `json:"agentId"`
	History []ChatMessage `json:"history"`
}

// Clone returns a copy whose history does not alias the receiver's.
func (s Session) Clone() Session {
	s.History = append([]ChatMessage(nil), s.History...)
	return s
}
