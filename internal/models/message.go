package models

// GlobalRoom is the recipient sentinel for the shared room.
const GlobalRoom = "global"

// TimestampFormat is the wire and storage layout for message timestamps.
const TimestampFormat = "2006-01-02T15:04:05"

// Message represents a locally persisted chat entry.
type Message struct {
	ID        string `json:"id"` // Client-issued, time-ordered
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"` // GlobalRoom or a peer username
	Text      string `json:"text"`
	ReplyTo   string `json:"reply_to,omitempty"`
	Timestamp string `json:"timestamp"` // ISO-8601, second precision
	Edited    bool   `json:"edited"`    // Reserved; no code path sets it
}
