package internal

import (
	"strings"
	"sync"
	"time"
)

// Timing constants for the streaming lifecycle
const (
	// SettleDelay absorbs back-to-back tool-call/response bursts that would
	// otherwise flicker the busy indicator
	SettleDelay = 500 * time.Millisecond
	// FallbackDelay is how long the push path may stall before the pull
	// path reconciles directly
	FallbackDelay = 5 * time.Second
	// CategoryInterval is the minimum time between activity-category changes
	CategoryInterval = 2500 * time.Millisecond
)

// Activity categories derived from the most recent message part
const (
	ActivityIdle      = "idle"
	ActivityThinking  = "thinking"
	ActivityReasoning = "reasoning"
	ActivityBash      = "bash"
	ActivitySearch    = "search"
	ActivityEdit      = "edit"
)

// StreamingState is the externally visible streaming status
type StreamingState struct {
	Active    bool
	MessageID string
	Category  string
}

// StreamingCoordinator owns the is-something-streaming state machine for
// the active session. It applies content deltas to the message being
// built, derives a debounced activity category from the most recent part,
// and runs a fallback timer that triggers pull-based reconciliation when
// the push channel stalls.
type StreamingCoordinator struct {
	mu sync.Mutex

	store *MessageStore

	active             bool
	streamingMessageID string
	category           string
	lastCategoryChange time.Time

	settleTimer   *time.Timer
	settleGen     int
	fallbackTimer *time.Timer
	fallbackGen   int
	categoryTimer *time.Timer
	categoryGen   int

	settleDelay      time.Duration
	fallbackDelay    time.Duration
	categoryInterval time.Duration
	now              func() time.Time

	onState func(StreamingState)
}

// NewStreamingCoordinator creates a coordinator mutating the given store
func NewStreamingCoordinator(store *MessageStore) *StreamingCoordinator {
	return &StreamingCoordinator{
		store:            store,
		settleDelay:      SettleDelay,
		fallbackDelay:    FallbackDelay,
		categoryInterval: CategoryInterval,
		now:              time.Now,
	}
}

// SetStateHandler registers the streaming-state observer
func (c *StreamingCoordinator) SetStateHandler(fn func(StreamingState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current streaming state
func (c *StreamingCoordinator) State() StreamingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return StreamingState{Active: c.active, MessageID: c.streamingMessageID, Category: c.category}
}

// Active reports whether a response is currently streaming
func (c *StreamingCoordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Category returns the current activity category
func (c *StreamingCoordinator) Category() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category
}

// UpdateStreamingMessage handles a content delta for the message with the
// given ID. Any delta cancels the pending fallback timer, since the push
// path is evidently working. When done is set, the active streaming ID is
// cleared and a settle timer is armed; only if no new delta arrives before
// it fires does the state transition back to idle.
func (c *StreamingCoordinator) UpdateStreamingMessage(id, delta string, done bool) {
	c.mu.Lock()
	c.cancelFallbackLocked()
	if done {
		c.streamingMessageID = ""
		c.armSettleLocked()
		c.mu.Unlock()
		c.refreshActivity()
		return
	}
	c.cancelSettleLocked()
	c.active = true
	c.streamingMessageID = id
	c.mu.Unlock()

	if delta != "" {
		c.applyDelta(id, delta)
	}
	c.emitState()
	c.refreshActivity()
}

// UpdateStreamingMessageParts merges structural part updates (tool calls
// rather than free text) into the message with the given ID.
func (c *StreamingCoordinator) UpdateStreamingMessageParts(id string, parts []Part) {
	c.mu.Lock()
	c.cancelFallbackLocked()
	c.cancelSettleLocked()
	c.active = true
	c.streamingMessageID = id
	c.mu.Unlock()

	if !c.store.Update(id, func(m *Message) { m.MergeParts(parts) }) {
		stub := c.newStub(id)
		stub.MergeParts(parts)
		c.store.Append(stub)
	}
	c.emitState()
	c.refreshActivity()
}

// StartRPCFallback arms the fallback timer. If no delta or part event
// cancels it within the delay, onFallback fires exactly once so the caller
// can pull the finished message directly.
func (c *StreamingCoordinator) StartRPCFallback(onFallback func()) {
	c.mu.Lock()
	c.cancelFallbackLocked()
	gen := c.fallbackGen
	c.fallbackTimer = time.AfterFunc(c.fallbackDelay, func() {
		c.mu.Lock()
		if gen != c.fallbackGen {
			c.mu.Unlock()
			return
		}
		c.fallbackTimer = nil
		c.mu.Unlock()
		onFallback()
	})
	c.mu.Unlock()
}

// AbortStreaming resets all streaming state. Used when the user cancels
// generation.
func (c *StreamingCoordinator) AbortStreaming() {
	c.ClearLocalStreamingState()
}

// ClearLocalStreamingState cancels every outstanding timer, clears the
// active streaming ID, forces idle and empties the activity category.
// Used on session switch and abort.
func (c *StreamingCoordinator) ClearLocalStreamingState() {
	c.mu.Lock()
	c.cancelFallbackLocked()
	c.cancelSettleLocked()
	c.cancelCategoryLocked()
	c.streamingMessageID = ""
	c.active = false
	c.category = ""
	c.mu.Unlock()
	c.emitState()
}

// ClearPartialText empties the in-progress accumulation text of the
// message currently streaming. Called on reconnect, when replayed events
// may re-deliver deltas already applied.
func (c *StreamingCoordinator) ClearPartialText() {
	c.mu.Lock()
	id := c.streamingMessageID
	c.mu.Unlock()
	if id == "" {
		return
	}
	c.store.Update(id, func(m *Message) { m.ClearPartialText() })
}

func (c *StreamingCoordinator) applyDelta(id, delta string) {
	if c.store.Update(id, func(m *Message) { m.AppendTextDelta(delta) }) {
		return
	}
	stub := c.newStub(id)
	stub.AppendTextDelta(delta)
	c.store.Append(stub)
}

// newStub creates the provisional assistant message a streamed response
// accumulates into before its final completion event arrives.
func (c *StreamingCoordinator) newStub(id string) *Message {
	return &Message{
		ID:        id,
		SessionID: c.store.SessionID(),
		Role:      RoleAssistant,
		Time:      &TimeRange{Start: c.now().UnixMilli()},
	}
}

// caller must hold c.mu
func (c *StreamingCoordinator) armSettleLocked() {
	c.cancelSettleLocked()
	gen := c.settleGen
	c.settleTimer = time.AfterFunc(c.settleDelay, func() {
		c.mu.Lock()
		if gen != c.settleGen || c.streamingMessageID != "" {
			// A new delta arrived while settling; stay streaming.
			c.mu.Unlock()
			return
		}
		c.settleTimer = nil
		c.active = false
		c.mu.Unlock()
		c.emitState()
		c.refreshActivity()
	})
}

// caller must hold c.mu
func (c *StreamingCoordinator) cancelSettleLocked() {
	c.settleGen++
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

// caller must hold c.mu
func (c *StreamingCoordinator) cancelFallbackLocked() {
	c.fallbackGen++
	if c.fallbackTimer != nil {
		c.fallbackTimer.Stop()
		c.fallbackTimer = nil
	}
}

// caller must hold c.mu
func (c *StreamingCoordinator) cancelCategoryLocked() {
	c.categoryGen++
	if c.categoryTimer != nil {
		c.categoryTimer.Stop()
		c.categoryTimer = nil
	}
}

// refreshActivity recomputes the activity category from current store
// state and applies it, rate-limited to one change per interval. A change
// landing inside the interval is deferred to a timer that recomputes from
// fresh state when it fires, never from a captured value.
func (c *StreamingCoordinator) refreshActivity() {
	snapshot := c.store.Snapshot()

	c.mu.Lock()
	cat := deriveCategory(snapshot, c.active)
	if cat == c.category {
		c.mu.Unlock()
		return
	}
	now := c.now()
	elapsed := now.Sub(c.lastCategoryChange)
	if elapsed >= c.categoryInterval {
		c.cancelCategoryLocked()
		c.category = cat
		c.lastCategoryChange = now
		c.mu.Unlock()
		c.emitState()
		return
	}
	if c.categoryTimer != nil {
		// Already deferred; the timer recomputes when it fires.
		c.mu.Unlock()
		return
	}
	gen := c.categoryGen
	c.categoryTimer = time.AfterFunc(c.categoryInterval-elapsed, func() {
		c.mu.Lock()
		if gen != c.categoryGen {
			c.mu.Unlock()
			return
		}
		c.categoryTimer = nil
		c.mu.Unlock()
		c.refreshActivity()
	})
	c.mu.Unlock()
}

func (c *StreamingCoordinator) emitState() {
	c.mu.Lock()
	fn := c.onState
	state := StreamingState{Active: c.active, MessageID: c.streamingMessageID, Category: c.category}
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// deriveCategory scans the most recent assistant message's parts from the
// end and maps the first meaningful part to a category.
func deriveCategory(messages []*Message, active bool) string {
	if !active {
		return ActivityIdle
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != RoleAssistant {
			continue
		}
		for j := len(m.Parts) - 1; j >= 0; j-- {
			p := &m.Parts[j]
			switch p.Type {
			case PartTypeTool:
				return toolCategory(p.Tool)
			case PartTypeReasoning:
				if p.Time == nil || p.Time.End == nil {
					return ActivityThinking
				}
				return ActivityReasoning
			case PartTypeStepStart:
				return ActivityThinking
			case PartTypeText:
				if p.Text != "" {
					return ActivityThinking
				}
			}
		}
		break
	}
	return ActivityThinking
}

// toolCategory maps a tool name to a user-facing category
func toolCategory(tool string) string {
	switch strings.ToLower(tool) {
	case "bash", "shell":
		return ActivityBash
	case "grep", "glob", "list", "websearch", "webfetch":
		return ActivitySearch
	case "edit", "write", "patch", "multiedit":
		return ActivityEdit
	case "":
		return ActivityThinking
	default:
		return strings.ToLower(tool)
	}
}
