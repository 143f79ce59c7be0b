package internal

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part types
const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

// Tool part statuses
const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// TimeRange tracks start and optional end timestamps in unix milliseconds
type TimeRange struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// ToolState holds the state of a tool part
type ToolState struct {
	Status   string                 `json:"status"`
	Input    map[string]interface{} `json:"input,omitempty"`
	Output   string                 `json:"output,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Time     *TimeRange             `json:"time,omitempty"`
}

// Part is one element of a message's content sequence
type Part struct {
	ID        string     `json:"id"`
	MessageID string     `json:"messageID"`
	SessionID string     `json:"sessionID"`
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	CallID    string     `json:"callID,omitempty"`
	State     *ToolState `json:"state,omitempty"`
	Time      *TimeRange `json:"time,omitempty"`
}

// Message represents one transcript entry
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionID"`
	Role      string     `json:"role"`
	Parts     []Part     `json:"parts"`
	Time      *TimeRange `json:"time,omitempty"`
}

// SessionInfo is the backend's session metadata record
type SessionInfo struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectID,omitempty"`
	Directory string     `json:"directory,omitempty"`
	Title     string     `json:"title,omitempty"`
	Time      *TimeRange `json:"time,omitempty"`
}

// ProjectInfo is the backend's project metadata record
type ProjectInfo struct {
	ID       string `json:"id"`
	Worktree string `json:"worktree"`
	Name     string `json:"name,omitempty"`
}

// NewUserMessage creates a user message with a single text part.
// Used for optimistic local entries before the backend confirms them.
func NewUserMessage(id, sessionID, text string) *Message {
	now := time.Now().UnixMilli()
	return &Message{
		ID:        id,
		SessionID: sessionID,
		Role:      RoleUser,
		Parts: []Part{
			{
				ID:        id + "-part-0",
				MessageID: id,
				SessionID: sessionID,
				Type:      PartTypeText,
				Text:      text,
			},
		},
		Time: &TimeRange{Start: now},
	}
}

// AppendTextDelta applies an incremental text delta to the message.
// If the last part is a text part the delta is appended to it; otherwise
// a new text part is created.
func (m *Message) AppendTextDelta(delta string) {
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == PartTypeText {
		m.Parts[n-1].Text += delta
		return
	}
	m.Parts = append(m.Parts, Part{
		MessageID: m.ID,
		SessionID: m.SessionID,
		Type:      PartTypeText,
		Text:      delta,
	})
}

// ClearPartialText empties the trailing text part, if any. Called after a
// reconnect, when replayed events may re-deliver deltas already applied.
func (m *Message) ClearPartialText() {
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == PartTypeText {
		m.Parts[n-1].Text = ""
	}
}

// MergeParts merges incoming parts into the message's part list by ID.
// Existing parts are replaced in place. New parts are inserted immediately
// before the last existing text part if one exists, so trailing commentary
// stays last; otherwise they are appended.
func (m *Message) MergeParts(parts []Part) {
	for _, p := range parts {
		replaced := false
		for i := range m.Parts {
			if m.Parts[i].ID != "" && m.Parts[i].ID == p.ID {
				m.Parts[i] = p
				replaced = true
				break
			}
		}
		if replaced {
			continue
		}
		insert := -1
		for i := len(m.Parts) - 1; i >= 0; i-- {
			if m.Parts[i].Type == PartTypeText {
				insert = i
				break
			}
		}
		if insert >= 0 {
			m.Parts = append(m.Parts, Part{})
			copy(m.Parts[insert+1:], m.Parts[insert:])
			m.Parts[insert] = p
		} else {
			m.Parts = append(m.Parts, p)
		}
	}
}

// RemovePart removes a part by ID and reports whether it was present
func (m *Message) RemovePart(partID string) bool {
	for i := range m.Parts {
		if m.Parts[i].ID == partID {
			m.Parts = append(m.Parts[:i], m.Parts[i+1:]...)
			return true
		}
	}
	return false
}

// TextContent returns the concatenated text of all text parts
func (m *Message) TextContent() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			out += p.Text
		}
	}
	return out
}

// Completed reports whether the message carries an end timestamp
func (m *Message) Completed() bool {
	return m.Time != nil && m.Time.End != nil
}

// Clone returns a copy safe to read while the original keeps mutating
// under the store's lock. The part list is copied; nested state and time
// records are attached whole and replaced, never edited in place, so
// sharing them is safe.
func (m *Message) Clone() *Message {
	out := *m
	out.Parts = make([]Part, len(m.Parts))
	copy(out.Parts, m.Parts)
	return &out
}
