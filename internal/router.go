package internal

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventRouter parses raw wire events, classifies them by family and
// normalizes them into typed notifications on a Sink.
//
// It carries two pieces of cross-event state. The provisional ID of the
// most recently streamed message is remembered so that the completion
// event, which arrives under a different final ID, can be bridged to the
// stub the consumer already holds. And every message ID seen with role
// user in a completion is recorded so that later granular part events for
// it can be discarded, since the part stream itself carries no role.
type EventRouter struct {
	mu sync.Mutex

	sink      Sink
	directory string

	lastStreamingPartMessageID string
	userMessageIDs             map[string]bool
}

// NewEventRouter creates an event router delivering to sink
func NewEventRouter(sink Sink) *EventRouter {
	return &EventRouter{
		sink:           sink,
		userMessageIDs: make(map[string]bool),
	}
}

// SetTarget records the workspace directory the channel is connected to.
// Changing target clears the router's memoized identity state, so stale
// suppression never leaks across sessions.
func (r *EventRouter) SetTarget(directory string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if directory == r.directory {
		return
	}
	r.directory = directory
	r.lastStreamingPartMessageID = ""
	r.userMessageIDs = make(map[string]bool)
}

// Route parses and dispatches one raw frame. Malformed or unrecognized
// events are logged and dropped; a single bad event never tears down the
// channel, so Route has no error return.
func (r *EventRouter) Route(data []byte) {
	env, directory, err := ParseEvent(data)
	if err != nil {
		LogWarn("dropping unparseable event: %v", err)
		return
	}
	if directory != "" {
		r.mu.Lock()
		current := r.directory
		r.mu.Unlock()
		if current != "" && directory != current {
			LogDebug("dropping event for directory %s (current %s)", directory, current)
			return
		}
	}

	switch env.Family() {
	case familyServer:
		LogDebug("server event: %s", env.Type)
	case familySession:
		r.routeSession(env)
	case familyMessage:
		r.routeMessage(env)
	case familyPermission:
		r.sink.OnPermissionEvent(Notification{Type: env.Type, Properties: env.Properties})
	case familyQuestion:
		r.sink.OnQuestionEvent(Notification{Type: env.Type, Properties: env.Properties})
	case familyFile:
		r.sink.OnFileEvent(Notification{Type: env.Type, Properties: env.Properties})
	case familyTodo:
		r.sink.OnTodoEvent(Notification{Type: env.Type, Properties: env.Properties})
	case familyRPC:
		// Synchronous half of the protocol, delivered via request/response.
		LogDebug("ignoring rpc event: %s", env.Type)
	default:
		LogDebug("dropping unrecognized event type: %s", env.Type)
	}
}

func (r *EventRouter) routeSession(env *Envelope) {
	var props sessionProps
	if err := json.Unmarshal(env.Properties, &props); err != nil {
		LogWarn("dropping malformed session event: %v", &EventError{Type: env.Type, Err: err})
		return
	}
	r.sink.OnSessionEvent(SessionNotification{Type: env.Type, Info: props.Info})
}

func (r *EventRouter) routeMessage(env *Envelope) {
	switch env.Type {
	case EventMessageUpdated:
		r.routeMessageUpdated(env)
	case EventMessagePartUpdated:
		r.routePartUpdated(env)
	case EventMessageRemoved, EventMessagePartRemoved:
		var props messageRemovedProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			LogWarn("dropping malformed %s event: %v", env.Type, err)
			return
		}
		r.sink.OnMessageEvent(MessageNotification{
			Type:      env.Type,
			SessionID: props.SessionID,
			MessageID: props.MessageID,
			PartID:    props.PartID,
		})
	case EventMessagePartDelta:
		var props partDeltaProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			LogWarn("dropping malformed %s event: %v", env.Type, err)
			return
		}
		if r.isUserMessage(props.MessageID) {
			LogDebug("suppressing part delta for user message %s", props.MessageID)
			return
		}
		r.rememberProvisional(props.MessageID)
		r.sink.OnMessagePartDelta(props.SessionID, props.MessageID, props.PartID, props.Field, props.Delta)
	default:
		LogDebug("dropping unrecognized message event type: %s", env.Type)
	}
}

func (r *EventRouter) routeMessageUpdated(env *Envelope) {
	var props messageUpdatedProps
	if err := json.Unmarshal(env.Properties, &props); err != nil || props.Info == nil {
		if err == nil {
			err = fmt.Errorf("missing info")
		}
		LogWarn("dropping malformed %s event: %v", env.Type, err)
		return
	}
	msg := props.Info

	n := MessageNotification{
		Type:      env.Type,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Message:   msg,
	}

	r.mu.Lock()
	if msg.Role == RoleUser {
		r.userMessageIDs[msg.ID] = true
	} else {
		if r.lastStreamingPartMessageID != "" && r.lastStreamingPartMessageID != msg.ID {
			n.PreviousMessageID = r.lastStreamingPartMessageID
		}
		r.lastStreamingPartMessageID = ""
	}
	r.mu.Unlock()

	r.sink.OnMessageEvent(n)
}

func (r *EventRouter) routePartUpdated(env *Envelope) {
	var props partUpdatedProps
	if err := json.Unmarshal(env.Properties, &props); err != nil || props.Part == nil {
		if err == nil {
			err = fmt.Errorf("missing part")
		}
		LogWarn("dropping malformed %s event: %v", env.Type, err)
		return
	}
	part := props.Part

	if r.isUserMessage(part.MessageID) {
		LogDebug("suppressing part update for user message %s", part.MessageID)
		return
	}
	r.rememberProvisional(part.MessageID)

	r.sink.OnMessageEvent(MessageNotification{
		Type:      env.Type,
		SessionID: part.SessionID,
		MessageID: part.MessageID,
		PartID:    part.ID,
		Part:      part,
	})
}

func (r *EventRouter) isUserMessage(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userMessageIDs[messageID]
}

func (r *EventRouter) rememberProvisional(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastStreamingPartMessageID = messageID
}
