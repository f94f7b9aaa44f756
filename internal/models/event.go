package models

import "encoding/json"

// Action is the tag carried by a feed event.
type Action string

const (
	ActionMessage Action = "message"
	// ActionUnknown covers tags this client does not recognize. Unknown
	// events are still consumed and marked processed so the feed never
	// redelivers them.
	ActionUnknown Action = ""
)

// ParseAction maps a raw tag onto a recognized Action.
func ParseAction(raw string) Action {
	switch Action(raw) {
	case ActionMessage:
		return ActionMessage
	default:
		return ActionUnknown
	}
}

// Event is a unit of remote feed data.
type Event struct {
	ID        string          `json:"id"` // Server-issued; dedupe key
	Action    string          `json:"action"`
	Username  string          `json:"username"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// messagePayload is the Data shape of a message event.
type messagePayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	To   string `json:"to"`
}

// Message maps a message event onto a Message. It returns false for
// non-message actions and for malformed payloads; callers still mark
// such events processed so they are never retried.
func (e *Event) Message() (*Message, bool) {
	if ParseAction(e.Action) != ActionMessage {
		return nil, false
	}

	var p messagePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, false
	}
	if p.ID == "" {
		return nil, false
	}

	recipient := p.To
	if recipient == "" {
		recipient = GlobalRoom
	}

	return &Message{
		ID:        p.ID,
		Sender:    e.Username,
		Recipient: recipient,
		Text:      p.Text,
		Timestamp: e.Timestamp,
	}, true
}

// Submission is the POST body for submitting one event to the feed.
type Submission struct {
	Username string         `json:"username"`
	Action   string         `json:"action"`
	Data     SubmissionData `json:"data"`
}

// SubmissionData is the payload of an outgoing message submission.
type SubmissionData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	To   string `json:"to"`
}
