package internal

import (
	"testing"
	"time"
)

// waitFor polls cond until it returns true or the timeout elapses
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// testMessage builds an assistant message with a single completed text part
func testMessage(id, sessionID, role, text string) *Message {
	end := time.Now().UnixMilli()
	m := &Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Time:      &TimeRange{Start: end - 1000, End: &end},
	}
	if text != "" {
		m.Parts = []Part{{
			ID:        id + "-p0",
			MessageID: id,
			SessionID: sessionID,
			Type:      PartTypeText,
			Text:      text,
		}}
	}
	return m
}

// toolPart builds a tool part for a message
func toolPart(partID, messageID, sessionID, tool, status string) Part {
	return Part{
		ID:        partID,
		MessageID: messageID,
		SessionID: sessionID,
		Type:      PartTypeTool,
		Tool:      tool,
		State:     &ToolState{Status: status},
	}
}
