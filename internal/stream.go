package internal

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Default backoff bounds for the event channel
const (
	ReconnectInitialDelay = 1 * time.Second
	ReconnectMaxDelay     = 30 * time.Second
)

// StreamHandler consumes the event channel
type StreamHandler interface {
	// HandleEvent receives one raw frame payload
	HandleEvent(data []byte)
	// HandleReconnect fires after a successful reconnect that followed at
	// least one failed attempt. Replayed events may re-deliver deltas the
	// consumer already applied, so it should clear in-progress accumulation
	// text before new deltas arrive.
	HandleReconnect()
}

// ReconnectDelay computes the backoff delay for the given attempt count:
// min(initial * 2^attempts, max).
func ReconnectDelay(attempts int, initial, max time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 2^attempts overflows long before this; the cap applies anyway.
	if attempts > 30 {
		return max
	}
	delay := initial << uint(attempts)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// EventStream owns the lifecycle of one outbound event-channel connection
// per workspace directory, reconnecting on any stream-level failure with
// exponential backoff. A scheduled reconnect captures the target it was
// created for and is a no-op once the stream has moved to another target.
type EventStream struct {
	mu sync.Mutex

	client    *Client
	transport *http.Client
	handler   StreamHandler

	directory string
	connected bool
	attempts  int
	timer     *time.Timer
	cancel    context.CancelFunc
	disposed  bool

	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewEventStream creates an event stream delivering frames to handler.
// Nothing connects until Connect is called.
func NewEventStream(client *Client, handler StreamHandler) *EventStream {
	return &EventStream{
		client:       client,
		transport:    &http.Client{}, // no timeout: the stream is long-lived
		handler:      handler,
		initialDelay: ReconnectInitialDelay,
		maxDelay:     ReconnectMaxDelay,
	}
}

// Connect opens the event channel for a workspace directory. It is
// idempotent while already targeting the same directory; any existing
// connection to another directory is torn down first.
func (s *EventStream) Connect(directory string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || directory == "" {
		return
	}
	if s.directory == directory && (s.connected || s.cancel != nil || s.timer != nil) {
		return
	}
	s.teardownLocked()
	s.directory = directory
	s.attempts = 0
	s.connected = false
	s.startLocked(directory)
}

// Disconnect tears down the channel, cancels any pending reconnect and
// resets the attempt counter.
func (s *EventStream) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.directory = ""
	s.attempts = 0
	s.connected = false
}

// Dispose is terminal: it disconnects and makes all later Connect calls
// no-ops.
func (s *EventStream) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.teardownLocked()
	s.directory = ""
	s.connected = false
}

// Connected reports whether the channel is currently open
func (s *EventStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Attempts returns the current failed-attempt count
func (s *EventStream) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// caller must hold s.mu
func (s *EventStream) startLocked(directory string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, directory)
}

// caller must hold s.mu
func (s *EventStream) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *EventStream) run(ctx context.Context, directory string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.EventURL(directory), nil)
	if err != nil {
		s.onStreamFailure(directory, &ConnectionError{Directory: directory, Op: "connect", Err: err})
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.transport.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.onStreamFailure(directory, &ConnectionError{Directory: directory, Op: "connect", Err: err})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		s.onStreamFailure(directory, &ConnectionError{
			Directory: directory,
			Op:        "connect",
			Err:       &RequestError{Method: http.MethodGet, Path: "/event", Status: resp.StatusCode},
		})
		return
	}

	s.mu.Lock()
	if s.disposed || s.directory != directory {
		s.mu.Unlock()
		return
	}
	wasRetry := s.attempts > 0
	s.connected = true
	s.attempts = 0
	s.mu.Unlock()

	LogDebug("event channel open for %s", directory)
	if wasRetry {
		s.handler.HandleReconnect()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				payload := strings.Join(data, "\n")
				data = data[:0]
				if payload != "[DONE]" {
					s.handler.HandleEvent([]byte(payload))
				}
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields and comments carry nothing we route on
		}
	}

	if ctx.Err() != nil {
		return
	}
	// A clean server-side close lands here with a nil scanner error; it is
	// retried the same as a mid-stream failure.
	s.onStreamFailure(directory, &ConnectionError{Directory: directory, Op: "read", Err: scanner.Err()})
}

func (s *EventStream) onStreamFailure(directory string, err *ConnectionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.directory != directory {
		return
	}
	s.connected = false
	if s.cancel != nil {
		// The run goroutine has already returned; release its context.
		s.cancel()
		s.cancel = nil
	}

	delay := ReconnectDelay(s.attempts, s.initialDelay, s.maxDelay)
	s.attempts++
	LogWarn("event channel lost (%v); reconnecting in %s (attempt %d)", err, delay, s.attempts)

	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.disposed || s.directory != directory {
			// Stale timer for an abandoned target.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.startLocked(directory)
		s.mu.Unlock()
	})
}
