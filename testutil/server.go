package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// EventServer is a scriptable fake backend for engine tests. It serves
// the event channel at /event as Server-Sent Events and delegates every
// other path to a mux the test configures.
type EventServer struct {
	Server *httptest.Server
	Mux    *http.ServeMux

	mu           sync.Mutex
	conns        map[chan string]struct{}
	connectCount int
	failNext     int
}

// NewEventServer starts a fake backend. It is shut down automatically
// when the test finishes.
func NewEventServer(t *testing.T) *EventServer {
	t.Helper()
	s := &EventServer{
		Mux:   http.NewServeMux(),
		conns: make(map[chan string]struct{}),
	}
	s.Mux.HandleFunc("/event", s.handleEvent)
	s.Server = httptest.NewServer(s.Mux)
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the backend base URL
func (s *EventServer) URL() string {
	return s.Server.URL
}

// FailNextConnects makes the next n event-channel connects fail with a
// 500 response.
func (s *EventServer) FailNextConnects(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// ConnectCount returns how many event-channel connects were attempted
func (s *EventServer) ConnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectCount
}

// Emit broadcasts one event frame payload to all connected clients
func (s *EventServer) Emit(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.conns {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Drop closes all active event-channel connections, forcing clients to
// reconnect.
func (s *EventServer) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.conns {
		close(ch)
		delete(s.conns, ch)
	}
}

// ActiveConnections returns the number of open event channels
func (s *EventServer) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *EventServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.connectCount++
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}
	ch := make(chan string, 64)
	s.conns[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.conns[ch]; ok {
			close(ch)
			delete(s.conns, ch)
		}
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()

	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
