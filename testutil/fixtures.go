package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
)

// MarshalJSON marshals v, failing the test on error
func MarshalJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal fixture: %v", err)
	}
	return string(data)
}

// Event builds a bare event frame payload
func Event(t *testing.T, eventType string, properties interface{}) string {
	t.Helper()
	props := MarshalJSON(t, properties)
	return fmt.Sprintf(`{"type":%q,"properties":%s}`, eventType, props)
}

// WrapDirectory wraps an event payload in the {directory, payload} shape
func WrapDirectory(directory, payload string) string {
	return fmt.Sprintf(`{"directory":%q,"payload":%s}`, directory, payload)
}

// PartDeltaEvent builds a message.part.delta frame
func PartDeltaEvent(t *testing.T, sessionID, messageID, partID, field, delta string) string {
	t.Helper()
	return Event(t, "message.part.delta", map[string]string{
		"sessionID": sessionID,
		"messageID": messageID,
		"partID":    partID,
		"field":     field,
		"delta":     delta,
	})
}

// PartUpdatedEvent builds a message.part.updated frame around a part record
func PartUpdatedEvent(t *testing.T, part interface{}) string {
	t.Helper()
	return Event(t, "message.part.updated", map[string]interface{}{"part": part})
}

// MessageUpdatedEvent builds a message.updated frame around a message record
func MessageUpdatedEvent(t *testing.T, message interface{}) string {
	t.Helper()
	return Event(t, "message.updated", map[string]interface{}{"info": message})
}
