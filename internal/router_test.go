package internal

import (
	"fmt"
	"testing"
)

// recordingSink captures routed notifications for assertions
type recordingSink struct {
	messages    []MessageNotification
	sessions    []SessionNotification
	permissions []Notification
	questions   []Notification
	files       []Notification
	todos       []Notification
	deltas      []string
}

func (s *recordingSink) OnSessionEvent(n SessionNotification) { s.sessions = append(s.sessions, n) }
func (s *recordingSink) OnMessageEvent(n MessageNotification) { s.messages = append(s.messages, n) }
func (s *recordingSink) OnPermissionEvent(n Notification)     { s.permissions = append(s.permissions, n) }
func (s *recordingSink) OnQuestionEvent(n Notification)       { s.questions = append(s.questions, n) }
func (s *recordingSink) OnFileEvent(n Notification)           { s.files = append(s.files, n) }
func (s *recordingSink) OnTodoEvent(n Notification)           { s.todos = append(s.todos, n) }
func (s *recordingSink) OnMessagePartDelta(sessionID, messageID, partID, field, delta string) {
	s.deltas = append(s.deltas, fmt.Sprintf("%s/%s/%s/%s=%s", sessionID, messageID, partID, field, delta))
}

func partUpdatedFrame(sessionID, messageID, partID, text string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"message.part.updated","properties":{"part":{"id":%q,"messageID":%q,"sessionID":%q,"type":"text","text":%q}}}`,
		partID, messageID, sessionID, text))
}

func messageUpdatedFrame(id, sessionID, role string, completed bool) []byte {
	timeJSON := `{"start":1}`
	if completed {
		timeJSON = `{"start":1,"end":2}`
	}
	return []byte(fmt.Sprintf(
		`{"type":"message.updated","properties":{"info":{"id":%q,"sessionID":%q,"role":%q,"parts":[],"time":%s}}}`,
		id, sessionID, role, timeJSON))
}

func TestEventRouter_ProvisionalToFinalBridging(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	// A streamed response arrives under a provisional ID, then completes
	// under a different final ID.
	r.Route(partUpdatedFrame("s1", "prov-1", "p1", "hello"))
	r.Route(messageUpdatedFrame("final-1", "s1", RoleAssistant, true))

	if len(sink.messages) != 2 {
		t.Fatalf("got %d message notifications, want 2", len(sink.messages))
	}
	done := sink.messages[1]
	if done.PreviousMessageID != "prov-1" {
		t.Errorf("PreviousMessageID = %q, want %q", done.PreviousMessageID, "prov-1")
	}

	// The memoized provisional ID is cleared after the completion, so a
	// second completion carries no stale bridge.
	r.Route(messageUpdatedFrame("final-2", "s1", RoleAssistant, true))
	if got := sink.messages[2].PreviousMessageID; got != "" {
		t.Errorf("second completion PreviousMessageID = %q, want empty", got)
	}
}

func TestEventRouter_NoBridgeWhenIDsMatch(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	r.Route(partUpdatedFrame("s1", "m1", "p1", "hello"))
	r.Route(messageUpdatedFrame("m1", "s1", RoleAssistant, true))

	if got := sink.messages[1].PreviousMessageID; got != "" {
		t.Errorf("PreviousMessageID = %q, want empty when IDs match", got)
	}
}

func TestEventRouter_UserCompletionNeverBridges(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	r.Route(partUpdatedFrame("s1", "prov-1", "p1", "hi"))
	r.Route(messageUpdatedFrame("user-1", "s1", RoleUser, true))

	if got := sink.messages[1].PreviousMessageID; got != "" {
		t.Errorf("user completion PreviousMessageID = %q, want empty", got)
	}

	// The provisional ID survives for the assistant completion that follows.
	r.Route(messageUpdatedFrame("final-1", "s1", RoleAssistant, true))
	if got := sink.messages[2].PreviousMessageID; got != "prov-1" {
		t.Errorf("assistant completion PreviousMessageID = %q, want %q", got, "prov-1")
	}
}

func TestEventRouter_UserMessagePartSuppression(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	r.Route(messageUpdatedFrame("user-1", "s1", RoleUser, true))
	r.Route(partUpdatedFrame("s1", "user-1", "p1", "echoed input"))

	if len(sink.messages) != 1 {
		t.Fatalf("part event for user message should be suppressed; got %d notifications", len(sink.messages))
	}

	// Part events for other messages still flow.
	r.Route(partUpdatedFrame("s1", "asst-1", "p2", "reply"))
	if len(sink.messages) != 2 {
		t.Errorf("part event for assistant message should pass; got %d notifications", len(sink.messages))
	}
}

func TestEventRouter_SetTargetClearsState(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	r.Route(messageUpdatedFrame("user-1", "s1", RoleUser, true))
	r.Route(partUpdatedFrame("s1", "prov-1", "p1", "streaming"))

	r.SetTarget("/other/workspace")

	// Suppression no longer applies after a target change.
	r.Route(partUpdatedFrame("s2", "user-1", "p2", "new context"))
	found := false
	for _, n := range sink.messages {
		if n.Type == EventMessagePartUpdated && n.MessageID == "user-1" {
			found = true
		}
	}
	if !found {
		t.Error("suppression set should be cleared on target change")
	}

	// The provisional memo is cleared too.
	r.Route(messageUpdatedFrame("final-1", "s2", RoleAssistant, true))
	last := sink.messages[len(sink.messages)-1]
	if last.PreviousMessageID == "prov-1" {
		t.Error("provisional memo should be cleared on target change")
	}
}

func TestEventRouter_DirectoryFilter(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)
	r.SetTarget("/work/app")

	// Wrapped event for the current target is routed.
	r.Route([]byte(`{"directory":"/work/app","payload":` + string(partUpdatedFrame("s1", "m1", "p1", "x")) + `}`))
	// Wrapped event for another target is dropped.
	r.Route([]byte(`{"directory":"/work/other","payload":` + string(partUpdatedFrame("s1", "m2", "p2", "y")) + `}`))

	if len(sink.messages) != 1 || sink.messages[0].MessageID != "m1" {
		t.Errorf("expected only the matching-directory event, got %+v", sink.messages)
	}
}

func TestEventRouter_PartDelta(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	r.Route([]byte(`{"type":"message.part.delta","properties":{"sessionID":"s1","messageID":"m1","partID":"p1","field":"text","delta":"Hel"}}`))

	if len(sink.deltas) != 1 || sink.deltas[0] != "s1/m1/p1/text=Hel" {
		t.Errorf("unexpected deltas: %v", sink.deltas)
	}
}

func TestEventRouter_OtherFamilies(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	r.Route([]byte(`{"type":"permission.asked","properties":{"id":"perm1"}}`))
	r.Route([]byte(`{"type":"question.asked","properties":{"id":"q1"}}`))
	r.Route([]byte(`{"type":"file.edited","properties":{"path":"main.go"}}`))
	r.Route([]byte(`{"type":"todo.updated","properties":{"items":[]}}`))
	r.Route([]byte(`{"type":"session.created","properties":{"info":{"id":"s1"}}}`))

	if len(sink.permissions) != 1 || len(sink.questions) != 1 || len(sink.files) != 1 || len(sink.todos) != 1 {
		t.Errorf("1:1 families not routed: perms=%d questions=%d files=%d todos=%d",
			len(sink.permissions), len(sink.questions), len(sink.files), len(sink.todos))
	}
	if len(sink.sessions) != 1 || sink.sessions[0].Info.ID != "s1" {
		t.Errorf("session event not routed: %+v", sink.sessions)
	}
}

func TestEventRouter_MalformedEventsDropped(t *testing.T) {
	sink := &recordingSink{}
	r := NewEventRouter(sink)

	// None of these may panic or produce notifications.
	r.Route([]byte(`not json at all`))
	r.Route([]byte(`{"type":"message.updated","properties":"not an object"}`))
	r.Route([]byte(`{"type":"message.part.updated","properties":{}}`))
	r.Route([]byte(`{"type":"unknown.family","properties":{}}`))
	r.Route([]byte(`{"type":"rpc.response","properties":{}}`))

	if len(sink.messages) != 0 || len(sink.sessions) != 0 {
		t.Errorf("malformed events should be dropped: %+v %+v", sink.messages, sink.sessions)
	}
}
