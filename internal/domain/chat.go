package domain

// ChatSender tags a chat entry with its origin side.
type ChatSender string

const (
	ChatSenderLocal ChatSender = "local"
	ChatSenderPeer  ChatSender = "peer"
)

// ChatMessage is one entry of the in-call text log.
// Entries are ephemeral; the log dies with the session.
type ChatMessage struct {
	Sender ChatSender `json:"sender"`
	Text   string     `json:"text"`
}
