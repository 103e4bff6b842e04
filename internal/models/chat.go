package models

// Chat message authors.
const (
	ChatUser = "user"
	ChatBot  = "bot"
)

// ChatMessage is one line of the assistant conversation.
type ChatMessage struct {
	ID        string `db:"id" json:"id"`
	Text      string `db:"text" json:"text"`
	Type      string `db:"type" json:"type"`
	Timestamp int64  `db:"timestamp" json:"timestamp"` // Unix milliseconds
	Synced    bool   `db:"synced" json:"-"`
}

// Table returns the table name for ChatMessage.
func (ChatMessage) Table() string {
	return "chat_messages"
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply  string `json:"reply"`
	Status string `json:"status,omitempty"`
}
