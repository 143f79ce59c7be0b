package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event family prefixes (the segment before the first dot of the type)
const (
	familyServer     = "server"
	familySession    = "session"
	familyMessage    = "message"
	familyPermission = "permission"
	familyQuestion   = "question"
	familyFile       = "file"
	familyTodo       = "todo"
	familyRPC        = "rpc"
)

// Message event types
const (
	EventMessageUpdated     = "message.updated"
	EventMessageRemoved     = "message.removed"
	EventMessagePartUpdated = "message.part.updated"
	EventMessagePartRemoved = "message.part.removed"
	EventMessagePartDelta   = "message.part.delta"
)

// Envelope is the wire shape of one event frame
type Envelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// wireFrame accepts both envelope shapes: a bare typed record, or a
// {directory, payload} wrapper around one.
type wireFrame struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
	Directory  string          `json:"directory"`
	Payload    json.RawMessage `json:"payload"`
}

// ParseEvent parses a raw frame into an envelope, unwrapping the
// {directory, payload} shape when present. The returned directory is
// empty for bare frames.
func ParseEvent(data []byte) (*Envelope, string, error) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, "", &EventError{Type: "unknown", Err: err}
	}
	if len(frame.Payload) > 0 {
		var inner Envelope
		if err := json.Unmarshal(frame.Payload, &inner); err != nil {
			return nil, "", &EventError{Type: "unknown", Err: err}
		}
		if inner.Type == "" {
			return nil, "", &EventError{Type: "unknown", Err: fmt.Errorf("payload has no type field")}
		}
		return &inner, frame.Directory, nil
	}
	if frame.Type == "" {
		return nil, "", &EventError{Type: "unknown", Err: fmt.Errorf("event has no type field")}
	}
	return &Envelope{Type: frame.Type, Properties: frame.Properties}, frame.Directory, nil
}

// Family returns the event family, the prefix before the first dot
func (e *Envelope) Family() string {
	if i := strings.Index(e.Type, "."); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}

// MessageNotification is the normalized form of a message-family event
type MessageNotification struct {
	Type      string
	SessionID string
	MessageID string
	PartID    string
	// Message is set for completion (message.updated) events
	Message *Message
	// Part is set for granular part update events
	Part *Part
	// PreviousMessageID bridges a streamed message's provisional ID to its
	// final ID on completion, so the consumer can replace rather than append
	PreviousMessageID string
}

// SessionNotification is the normalized form of a session-family event
type SessionNotification struct {
	Type string
	Info *SessionInfo
}

// Notification is the normalized form of the 1:1 event families
// (permission, question, file, todo)
type Notification struct {
	Type       string
	Properties json.RawMessage
}

// Sink receives normalized notifications from the event router
type Sink interface {
	OnSessionEvent(n SessionNotification)
	OnMessageEvent(n MessageNotification)
	OnPermissionEvent(n Notification)
	OnQuestionEvent(n Notification)
	OnFileEvent(n Notification)
	OnTodoEvent(n Notification)
	// OnMessagePartDelta delivers a fine-grained field patch, distinct from
	// whole-part replacement
	OnMessagePartDelta(sessionID, messageID, partID, field, delta string)
}

// messageUpdatedProps is the properties shape of message.updated
type messageUpdatedProps struct {
	Info *Message `json:"info"`
}

// partUpdatedProps is the properties shape of message.part.updated
type partUpdatedProps struct {
	Part *Part `json:"part"`
}

// messageRemovedProps is the properties shape of message.removed and
// message.part.removed
type messageRemovedProps struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID,omitempty"`
}

// partDeltaProps is the properties shape of message.part.delta
type partDeltaProps struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
	Field     string `json:"field"`
	Delta     string `json:"delta"`
}

// sessionProps is the properties shape of session.* events
type sessionProps struct {
	Info *SessionInfo `json:"info"`
}
