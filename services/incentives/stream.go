// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package incentives

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream event types.
const (
	EventStatus = "status"
	EventNode   = "node"
	EventError  = "error"
)

// StreamEvent is one progress notification on a session's SSE stream.
type StreamEvent struct {
	Id             string            `json:"id"`
	Type           string            `json:"type"`
	SessionId      string            `json:"session_id"`
	Status         string            `json:"status,omitempty"`
	CurrentStep    string            `json:"current_step,omitempty"`
	Node           string            `json:"node,omitempty"`
	ProgramsFound  int               `json:"programs_found,omitempty"`
	SearchProgress map[string]string `json:"search_progress,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      int64             `json:"created_at"`
}

// statusEventLocked builds a status snapshot event. Caller holds s.mu.
func (s *Session) statusEventLocked() StreamEvent {
	progress := make(map[string]string, len(s.progress))
	for k, v := range s.progress {
		progress[k] = v
	}
	return StreamEvent{
		Type:           EventStatus,
		SessionId:      s.id,
		Status:         s.status,
		CurrentStep:    s.phase,
		ProgramsFound:  s.programsFoundLocked(),
		SearchProgress: progress,
	}
}

// Subscribe registers an SSE listener on the session. The returned
// cancel function must be called when the client disconnects. Sends are
// non-blocking; a slow consumer drops events rather than stalling the
// pipeline.
func (s *Session) Subscribe() (<-chan StreamEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan StreamEvent, 32)
	s.subscribers[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish fans an event out to every subscriber.
func (s *Session) publish(ev StreamEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SSEWriter writes Server-Sent Events in the wire format
// "event: type\ndata: json\n\n", flushing after every write.
//
// # Thread Safety
//
// Safe for concurrent use; the session runner and the keepalive ticker
// may write from different goroutines.
type SSEWriter struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps a ResponseWriter for SSE output. Fails if the
// writer does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &SSEWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent assigns the event an id and timestamp, serializes it, and
// writes it to the stream.
func (w *SSEWriter) WriteEvent(event StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteKeepAlive sends an SSE comment to keep the connection alive
// through load balancers with idle timeouts. Comments are ignored by
// clients.
func (w *SSEWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response headers for SSE streaming. Must
// be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
