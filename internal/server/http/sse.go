package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zwennaf/dhaniverse/internal/rooms"
)

// sseWriter frames room events as Server-Sent Events:
//
//	id: <event id>
//	event: <kind>
//	data: <payload JSON>
//
// The event id doubles as the client's replay cursor via Last-Event-ID.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by connection")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, f: f}, nil
}

// WriteRetry emits the reconnection delay hint.
func (s *sseWriter) WriteRetry(ms int) {
	fmt.Fprintf(s.w, "retry: %d\n\n", ms)
	s.f.Flush()
}

// WriteEvent frames and flushes one event.
func (s *sseWriter) WriteEvent(ev rooms.Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = []byte("{}")
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// WriteSnapshot frames an event without an id line, so it does not
// advance the client's replay cursor.
func (s *sseWriter) WriteSnapshot(kind rooms.EventKind, payload []byte) error {
	if payload == nil {
		payload = []byte("{}")
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// WriteComment emits a comment line, used as a keepalive.
func (s *sseWriter) WriteComment(c string) {
	fmt.Fprintf(s.w, ": %s\n\n", c)
	s.f.Flush()
}
