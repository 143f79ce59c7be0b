package internal

import (
	"context"
	"sync"
)

// DefaultPageSize is the message page size used when none is configured
const DefaultPageSize = 50

// MessageStore is the authoritative ordered, deduplicated collection of
// transcript messages for the active session. Order reflects arrival
// order. Every mutating operation fires the change listeners with a
// snapshot of the current list.
type MessageStore struct {
	mu sync.Mutex

	client    *Client
	sessionID string
	messages  []*Message

	pageSize int
	hasMore  bool
	cursor   string // ID of the oldest loaded message

	listeners map[int]func([]*Message)
	nextID    int
}

// NewMessageStore creates an empty message store backed by client for
// pagination fetches.
func NewMessageStore(client *Client, pageSize int) *MessageStore {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MessageStore{
		client:    client,
		pageSize:  pageSize,
		listeners: make(map[int]func([]*Message)),
	}
}

// Subscribe registers a change listener and returns an unsubscribe func.
// Listeners receive a snapshot after every mutating operation.
func (s *MessageStore) Subscribe(fn func([]*Message)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SessionID returns the session the store currently holds messages for
func (s *MessageStore) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SetSession switches the store to a new session, destroying all held
// messages and pagination state.
func (s *MessageStore) SetSession(sessionID string) {
	s.mu.Lock()
	s.sessionID = sessionID
	s.messages = nil
	s.hasMore = false
	s.cursor = ""
	s.mu.Unlock()
	s.notify()
}

// Clear destroys all held messages without changing the session
func (s *MessageStore) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.hasMore = false
	s.cursor = ""
	s.mu.Unlock()
	s.notify()
}

// Append adds a message unless its ID is already present. It reports
// whether the message was inserted, making ingestion idempotent: the push
// and pull reconciliation paths race, and whichever loses is a no-op.
func (s *MessageStore) Append(m *Message) bool {
	s.mu.Lock()
	if s.indexLocked(m.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.notify()
	return true
}

// Push adds a message unconditionally. Used for optimistic local entries
// that have no backend-confirmed ID yet.
func (s *MessageStore) Push(m *Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.notify()
}

// Remove deletes a message by ID and reports whether it was present
func (s *MessageStore) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.mu.Unlock()
	s.notify()
	return true
}

// Replace swaps the message with the given ID for m, keeping its position.
// It reports whether a message with that ID was present.
func (s *MessageStore) Replace(id string, m *Message) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[i] = m
	s.mu.Unlock()
	s.notify()
	return true
}

// Update applies fn to the message with the given ID while holding the
// store's lock, so concurrent readers never observe a partial mutation.
// It reports whether a message with that ID was present. fn must not call
// back into the store.
func (s *MessageStore) Update(id string, fn func(*Message)) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	fn(s.messages[i])
	s.mu.Unlock()
	s.notify()
	return true
}

// FindIndex returns the index of the message with the given ID, or -1
func (s *MessageStore) FindIndex(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id)
}

// GetAt returns a copy of the message at index i, or nil when out of
// range. Held messages mutate under the store's lock; writes go through
// Update or SetAt.
func (s *MessageStore) GetAt(i int) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.messages) {
		return nil
	}
	return s.messages[i].Clone()
}

// SetAt replaces the message at index i and fires the change listeners.
// Out-of-range indexes are ignored.
func (s *MessageStore) SetAt(i int, m *Message) {
	s.mu.Lock()
	if i < 0 || i >= len(s.messages) {
		s.mu.Unlock()
		return
	}
	s.messages[i] = m
	s.mu.Unlock()
	s.notify()
}

// Len returns the number of held messages
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Snapshot returns a copy of the current message list. The messages are
// cloned, so the snapshot stays stable while the store keeps mutating.
func (s *MessageStore) Snapshot() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// HasMore reports whether older history may exist beyond the oldest
// loaded message.
func (s *MessageStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// LoadMessages replaces the whole list with a fresh newest page from the
// backend. A full page implies more (older) history may exist; the cursor
// is derived from the oldest loaded message.
func (s *MessageStore) LoadMessages(ctx context.Context) error {
	s.mu.Lock()
	sessionID := s.sessionID
	pageSize := s.pageSize
	s.mu.Unlock()

	page, err := s.client.ListMessages(ctx, sessionID, pageSize, "")
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// A superseded load must not clobber newer session data.
		return ctx.Err()
	}

	s.mu.Lock()
	if s.sessionID != sessionID {
		s.mu.Unlock()
		return nil
	}
	s.messages = page
	s.applyPageLocked(page)
	s.mu.Unlock()
	s.notify()
	return nil
}

// LoadOlderMessages prepends the previous page using the stored cursor.
// It is a no-op when no older history exists.
func (s *MessageStore) LoadOlderMessages(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	sessionID := s.sessionID
	pageSize := s.pageSize
	cursor := s.cursor
	s.mu.Unlock()

	page, err := s.client.ListMessages(ctx, sessionID, pageSize, cursor)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	if s.sessionID != sessionID {
		s.mu.Unlock()
		return nil
	}
	s.messages = append(page, s.messages...)
	s.applyPageLocked(page)
	s.mu.Unlock()
	s.notify()
	return nil
}

// caller must hold s.mu
func (s *MessageStore) applyPageLocked(page []*Message) {
	s.hasMore = len(page) == s.pageSize
	if len(page) > 0 {
		s.cursor = page[0].ID
	} else {
		s.cursor = ""
	}
}

// caller must hold s.mu
func (s *MessageStore) indexLocked(id string) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// caller must hold s.mu
func (s *MessageStore) snapshotLocked() []*Message {
	out := make([]*Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// notify fires all listeners with a snapshot, outside the lock
func (s *MessageStore) notify() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	fns := make([]func([]*Message), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}
