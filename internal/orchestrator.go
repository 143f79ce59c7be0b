package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier carries the observer callbacks consumed by presentation code.
// Unset callbacks are skipped. Callbacks run on whatever goroutine the
// triggering event arrived on and must not block.
type Notifier struct {
	// OnStreaming reports streaming-state and activity-category changes
	OnStreaming func(StreamingState)
	// OnReconnect fires after the event channel reconnects; buffered
	// partial state has been cleared and visual replay may follow
	OnReconnect func()
	// OnSession receives session lifecycle notifications
	OnSession func(SessionNotification)
	// OnPermission receives permission request notifications
	OnPermission func(Notification)
	// OnQuestion receives question notifications
	OnQuestion func(Notification)
	// OnFile receives file change notifications
	OnFile func(Notification)
	// OnTodo receives todo list notifications
	OnTodo func(Notification)
	// OnPartDelta receives fine-grained field patches
	OnPartDelta func(sessionID, messageID, partID, field, delta string)
	// OnWarning receives dismissible user-facing warnings
	OnWarning func(string)
	// OnChange fires when loading state or the last error changes
	OnChange func()
}

// Orchestrator composes the sync engine: connection manager, event
// router, streaming coordinator and message store. It owns cross-cutting
// concerns (loading counter, last-error capture, active-session
// switching, optimistic local messages, cancellation of in-flight loads)
// and is the single interface consumed by presentation code.
type Orchestrator struct {
	mu sync.Mutex

	client *Client
	state  *StateStore // nil when persistence is unavailable

	store  *MessageStore
	coord  *StreamingCoordinator
	router *EventRouter
	stream *EventStream

	notifier Notifier

	activeProject string
	activeSession string
	directory     string

	loading int
	lastErr error

	loadCancel context.CancelFunc

	pendingOptimisticID string
	lastReplyID         string
}

// NewOrchestrator wires the engine's object graph. state may be nil, in
// which case no identifiers are persisted or restored.
func NewOrchestrator(client *Client, state *StateStore, pageSize int) *Orchestrator {
	o := &Orchestrator{
		client: client,
		state:  state,
	}
	o.store = NewMessageStore(client, pageSize)
	o.coord = NewStreamingCoordinator(o.store)
	o.router = NewEventRouter(o)
	o.stream = NewEventStream(client, o)
	o.coord.SetStateHandler(func(s StreamingState) {
		if fn := o.notifierFn(); fn != nil {
			fn(s)
		}
	})
	return o
}

func (o *Orchestrator) notifierFn() func(StreamingState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.notifier.OnStreaming
}

// SetNotifier registers the observer callbacks
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.mu.Lock()
	o.notifier = n
	o.mu.Unlock()
}

// Store exposes the message store for read access and subscriptions
func (o *Orchestrator) Store() *MessageStore {
	return o.store
}

// Streaming returns the current streaming state
func (o *Orchestrator) Streaming() StreamingState {
	return o.coord.State()
}

// ActiveSession returns the currently active session ID
func (o *Orchestrator) ActiveSession() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeSession
}

// ActiveProject returns the currently active project ID
func (o *Orchestrator) ActiveProject() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeProject
}

// Loading reports whether any operation is in flight. The counter is
// reentrant, so overlapping operations keep it true until all finish.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading > 0
}

// LastError returns the most recent user-initiated operation failure
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// ClearLastError resets the last-error slot
func (o *Orchestrator) ClearLastError() {
	o.mu.Lock()
	o.lastErr = nil
	o.mu.Unlock()
	o.notifyChange()
}

// Dispose tears the engine down; the orchestrator is unusable afterwards
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	if o.loadCancel != nil {
		o.loadCancel()
		o.loadCancel = nil
	}
	o.mu.Unlock()
	o.stream.Dispose()
	o.coord.ClearLocalStreamingState()
}

// SelectProject switches the engine to a project, retargeting the event
// channel to its workspace directory.
func (o *Orchestrator) SelectProject(projectID, directory string) {
	o.mu.Lock()
	o.activeProject = projectID
	o.directory = directory
	o.mu.Unlock()

	o.router.SetTarget(directory)
	o.stream.Connect(directory)

	if o.state != nil && projectID != "" {
		if err := o.state.SetLastProject(projectID); err != nil {
			LogWarn("failed to persist last project: %v", err)
		}
	}
}

// SelectSession makes sessionID the active session: clears streaming
// state, resets the store and loads the newest message page. Starting a
// new load cancels any in-flight load for the previous session, so a slow
// stale load cannot clobber the newer session's data.
func (o *Orchestrator) SelectSession(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	if o.loadCancel != nil {
		o.loadCancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	o.loadCancel = cancel
	o.activeSession = sessionID
	o.pendingOptimisticID = ""
	o.lastReplyID = ""
	o.mu.Unlock()

	o.coord.ClearLocalStreamingState()
	o.store.SetSession(sessionID)

	o.beginLoading()
	defer o.endLoading()

	if err := o.store.LoadMessages(loadCtx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		o.setError(err)
		return err
	}

	if o.state != nil && sessionID != "" {
		if err := o.state.SetLastSession(sessionID); err != nil {
			LogWarn("failed to persist last session: %v", err)
		}
	}
	return nil
}

// LoadOlderMessages pulls the previous history page for the active
// session. No-op when no older history exists.
func (o *Orchestrator) LoadOlderMessages(ctx context.Context) error {
	o.beginLoading()
	defer o.endLoading()
	if err := o.store.LoadOlderMessages(ctx); err != nil {
		o.setError(err)
		return err
	}
	return nil
}

// SendMessage sends a user message to the active session. A local
// stand-in message is pushed immediately and reconciled against whichever
// of the event channel or the request result arrives first; it is removed
// only when the request fails.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	sessionID := o.ActiveSession()
	if sessionID == "" {
		err := fmt.Errorf("no active session")
		o.setError(err)
		return err
	}

	optimistic := NewUserMessage("local-"+uuid.NewString(), sessionID, text)
	o.mu.Lock()
	o.pendingOptimisticID = optimistic.ID
	o.lastReplyID = ""
	o.mu.Unlock()
	o.store.Push(optimistic)

	o.coord.StartRPCFallback(func() {
		o.runFallback(sessionID)
	})

	o.beginLoading()
	defer o.endLoading()

	reply, err := o.client.CreateMessage(ctx, sessionID, optimistic.Parts)
	if err != nil {
		o.store.Remove(optimistic.ID)
		o.mu.Lock()
		if o.pendingOptimisticID == optimistic.ID {
			o.pendingOptimisticID = ""
		}
		o.mu.Unlock()
		o.setError(err)
		return err
	}

	o.mu.Lock()
	o.lastReplyID = reply.ID
	o.mu.Unlock()

	// Reconcile against whatever the event channel already delivered; the
	// store dedupes by ID, so the losing path is a no-op.
	if o.ActiveSession() == sessionID {
		o.store.Append(reply)
	}
	return nil
}

// Abort cancels generation for the active session, locally and on the
// backend.
func (o *Orchestrator) Abort(ctx context.Context) error {
	sessionID := o.ActiveSession()
	o.coord.AbortStreaming()
	if sessionID == "" {
		return nil
	}
	if err := o.client.AbortSession(ctx, sessionID); err != nil {
		LogWarn("abort request failed: %v", err)
		return err
	}
	return nil
}

// Restore attempts to resume the last active project and session from
// persisted identifiers. A failure is surfaced to the user as a warning
// rather than merely logged, and the stale identifier is cleared so the
// failure does not repeat on every startup.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.state == nil {
		return nil
	}

	projectID, err := o.state.LastProject()
	if err != nil {
		LogWarn("failed to read persisted project: %v", err)
	}
	if projectID != "" {
		proj, err := o.client.GetProject(ctx, projectID)
		if err != nil {
			rerr := &RestoreError{Kind: "project", ID: projectID, Err: err}
			o.warn(fmt.Sprintf("Could not restore last project %s; it may have been removed.", projectID))
			_ = o.state.ClearLastProject()
			_ = o.state.ClearLastSession()
			return rerr
		}
		o.SelectProject(proj.ID, proj.Worktree)
	}

	sessionID, err := o.state.LastSession()
	if err != nil {
		LogWarn("failed to read persisted session: %v", err)
	}
	if sessionID != "" {
		if _, err := o.client.GetSession(ctx, sessionID); err != nil {
			rerr := &RestoreError{Kind: "session", ID: sessionID, Err: err}
			o.warn(fmt.Sprintf("Could not restore last session %s; it may have been deleted.", sessionID))
			_ = o.state.ClearLastSession()
			return rerr
		}
		if err := o.SelectSession(ctx, sessionID); err != nil {
			rerr := &RestoreError{Kind: "session", ID: sessionID, Err: err}
			o.warn(fmt.Sprintf("Could not load last session %s.", sessionID))
			_ = o.state.ClearLastSession()
			return rerr
		}
	}
	return nil
}

// HandleEvent implements StreamHandler
func (o *Orchestrator) HandleEvent(data []byte) {
	o.router.Route(data)
}

// HandleReconnect implements StreamHandler. Replayed events may
// re-deliver deltas already applied, so the in-progress accumulation text
// is cleared before new deltas arrive.
func (o *Orchestrator) HandleReconnect() {
	LogInfo("event channel reconnected; clearing partial streaming text")
	o.coord.ClearPartialText()
	o.mu.Lock()
	fn := o.notifier.OnReconnect
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnSessionEvent implements Sink
func (o *Orchestrator) OnSessionEvent(n SessionNotification) {
	if n.Type == "session.deleted" && n.Info != nil && n.Info.ID == o.ActiveSession() {
		o.mu.Lock()
		o.activeSession = ""
		o.mu.Unlock()
		o.coord.ClearLocalStreamingState()
		o.store.SetSession("")
		if o.state != nil {
			_ = o.state.ClearLastSession()
		}
	}
	o.mu.Lock()
	fn := o.notifier.OnSession
	o.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// OnMessageEvent implements Sink
func (o *Orchestrator) OnMessageEvent(n MessageNotification) {
	// Late events for a session that is no longer active are ignored.
	if n.SessionID != "" && n.SessionID != o.ActiveSession() {
		LogDebug("ignoring %s for inactive session %s", n.Type, n.SessionID)
		return
	}

	switch n.Type {
	case EventMessageUpdated:
		o.applyCompletion(n)
	case EventMessagePartUpdated:
		if n.Part != nil {
			o.coord.UpdateStreamingMessageParts(n.MessageID, []Part{*n.Part})
		}
	case EventMessageRemoved:
		o.store.Remove(n.MessageID)
	case EventMessagePartRemoved:
		o.store.Update(n.MessageID, func(m *Message) { m.RemovePart(n.PartID) })
	}
}

// applyCompletion ingests a whole-message update. When the router bridged
// a provisional streaming ID, the stub is replaced in place rather than
// duplicated.
func (o *Orchestrator) applyCompletion(n MessageNotification) {
	msg := n.Message
	if msg == nil {
		return
	}

	if msg.Role == RoleUser {
		o.mu.Lock()
		opt := o.pendingOptimisticID
		o.pendingOptimisticID = ""
		o.mu.Unlock()
		if opt != "" && opt != msg.ID && o.store.Replace(opt, msg) {
			return
		}
		if idx := o.store.FindIndex(msg.ID); idx >= 0 {
			o.store.SetAt(idx, msg)
			return
		}
		o.store.Append(msg)
		return
	}

	switch {
	case n.PreviousMessageID != "" && o.store.Replace(n.PreviousMessageID, msg):
		// Provisional stub replaced with the final message.
	default:
		if idx := o.store.FindIndex(msg.ID); idx >= 0 {
			o.store.SetAt(idx, msg)
		} else {
			o.store.Append(msg)
		}
	}

	if msg.Completed() {
		o.coord.UpdateStreamingMessage(msg.ID, "", true)
	} else {
		o.coord.UpdateStreamingMessage(msg.ID, "", false)
	}
}

// OnMessagePartDelta implements Sink
func (o *Orchestrator) OnMessagePartDelta(sessionID, messageID, partID, field, delta string) {
	if sessionID != "" && sessionID != o.ActiveSession() {
		return
	}
	if field == "text" {
		o.coord.UpdateStreamingMessage(messageID, delta, false)
	}
	o.mu.Lock()
	fn := o.notifier.OnPartDelta
	o.mu.Unlock()
	if fn != nil {
		fn(sessionID, messageID, partID, field, delta)
	}
}

// OnPermissionEvent implements Sink
func (o *Orchestrator) OnPermissionEvent(n Notification) {
	o.mu.Lock()
	fn := o.notifier.OnPermission
	o.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// OnQuestionEvent implements Sink
func (o *Orchestrator) OnQuestionEvent(n Notification) {
	o.mu.Lock()
	fn := o.notifier.OnQuestion
	o.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// OnFileEvent implements Sink
func (o *Orchestrator) OnFileEvent(n Notification) {
	o.mu.Lock()
	fn := o.notifier.OnFile
	o.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// OnTodoEvent implements Sink
func (o *Orchestrator) OnTodoEvent(n Notification) {
	o.mu.Lock()
	fn := o.notifier.OnTodo
	o.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// runFallback is the pull half of the push/pull race: fetch the finished
// reply by ID and insert it if the event channel never delivered it.
func (o *Orchestrator) runFallback(sessionID string) {
	o.mu.Lock()
	id := o.lastReplyID
	o.mu.Unlock()
	if id == "" {
		LogDebug("fallback fired before the reply ID was known; skipping")
		return
	}
	if o.ActiveSession() != sessionID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := o.client.GetMessage(ctx, sessionID, id)
	if err != nil {
		// The optimistic/stub message stays as-is.
		LogWarn("%v", &FallbackError{SessionID: sessionID, MessageID: id, Err: err})
		return
	}
	if o.ActiveSession() != sessionID {
		return
	}
	if o.store.Append(msg) {
		LogInfo("fallback reconciliation inserted message %s", msg.ID)
	}
	if msg.Completed() {
		o.coord.UpdateStreamingMessage(msg.ID, "", true)
	}
}

func (o *Orchestrator) beginLoading() {
	o.mu.Lock()
	o.loading++
	o.mu.Unlock()
	o.notifyChange()
}

func (o *Orchestrator) endLoading() {
	o.mu.Lock()
	if o.loading > 0 {
		o.loading--
	}
	o.mu.Unlock()
	o.notifyChange()
}

func (o *Orchestrator) setError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	o.notifyChange()
}

func (o *Orchestrator) notifyChange() {
	o.mu.Lock()
	fn := o.notifier.OnChange
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (o *Orchestrator) warn(msg string) {
	o.mu.Lock()
	fn := o.notifier.OnWarning
	o.mu.Unlock()
	if fn != nil {
		fn(msg)
	} else {
		LogWarn("%s", msg)
	}
}
