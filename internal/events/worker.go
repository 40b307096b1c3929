package events

import (
	"context"
	"errors"
	"log/slog"
)

// ErrQueueFull is returned by Worker.Publish when the inbox is saturated.
// Callers treat sink errors as best-effort, so a full queue drops the event
// rather than stalling the request path.
var ErrQueueFull = errors.New("event queue full")

// Worker decouples sink delivery from the request path: Publish enqueues and
// returns immediately, Run drains the inbox into the wrapped sink. It
// satisfies Sink so the recorder does not know whether delivery is inline or
// queued.
type Worker struct {
	sink   Sink
	inbox  chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, buffer int, logger *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: make(chan Event, buffer), logger: logger}
}

// Publish enqueues the event for background delivery.
func (w *Worker) Publish(_ context.Context, event Event) error {
	select {
	case w.inbox <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the inbox until ctx is cancelled. Delivery failures are logged
// and skipped; the in-process log already holds the event.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.Warn("event delivery failed",
					"type", string(event.Type),
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}

func (w *Worker) Close() error {
	return w.sink.Close()
}
