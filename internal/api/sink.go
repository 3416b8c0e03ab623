package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSinkClosed is returned by a stream sink after its client went away.
var ErrSinkClosed = errors.New("stream closed")

// streamSink writes reply fragments to a plain text response and flushes
// after each one so the client sees them immediately.
type streamSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	closed  bool
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	return &streamSink{w: w, rc: http.NewResponseController(w)}
}

func (s *streamSink) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
}

func (s *streamSink) Send(ctx context.Context, fragment string) error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		s.closed = true
		return fmt.Errorf("%w: %w", ErrSinkClosed, err)
	}

	s.start()
	if _, err := io.WriteString(s.w, fragment); err != nil {
		s.closed = true
		return fmt.Errorf("%w: %w", ErrSinkClosed, err)
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.closed = true
		return fmt.Errorf("%w: %w", ErrSinkClosed, err)
	}
	return nil
}
