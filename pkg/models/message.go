package models

import "time"

// MessageKind classifies a message on the bus.
type MessageKind string

const (
	// KindRequest is a point-to-point request expecting a response.
	KindRequest MessageKind = "request"
	// KindResponse is a reply correlated to an earlier request.
	KindResponse MessageKind = "response"
	// KindBroadcast is a message addressed to all agents.
	KindBroadcast MessageKind = "broadcast"
	// KindEvent is a lifecycle or status notification.
	KindEvent MessageKind = "event"
)

// Valid returns true if the kind is a known value.
func (k MessageKind) Valid() bool {
	switch k {
	case KindRequest, KindResponse, KindBroadcast, KindEvent:
		return true
	default:
		return false
	}
}

// MessageMeta carries optional metadata attached to a message.
type MessageMeta struct {
	// ReplyTo is the ID of the message this one responds to.
	ReplyTo string `json:"reply_to,omitempty"`
	// TaskID links the message to a task, if any.
	TaskID string `json:"task_id,omitempty"`
	// Extra holds free-form key/value annotations.
	Extra map[string]string `json:"extra,omitempty"`
}

// Message is one record exchanged between agents on the bus.
// Messages are never mutated after creation.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// From is the sending agent type, or SystemSender.
	From string `json:"from"`
	// To is the receiving agent type, or BroadcastTarget.
	To string `json:"to"`
	// Kind classifies the message.
	Kind MessageKind `json:"kind"`
	// Content is the message body.
	Content string `json:"content"`
	// Timestamp is when the message was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Meta holds optional metadata such as reply correlation.
	Meta MessageMeta `json:"meta,omitempty"`
}
