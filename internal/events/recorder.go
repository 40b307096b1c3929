package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "namereg/pkg/domain"
	"namereg/pkg/requestcontext"
)

// Recorder is what domain services hold. It stamps events with request
// context, appends them to the store (fail-closed: the calling operation must
// abort if the log write fails), and best-effort publishes to the sink.
type Recorder struct {
	store  Store
	sink   Sink
	logger *slog.Logger
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithSink attaches a downstream sink (Kafka).
func WithSink(sink Sink) Option {
	return func(r *Recorder) { r.sink = sink }
}

// WithLogger sets a logger for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder builds a recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Emit appends one event to the log. The store write is synchronous and its
// failure propagates; sink delivery is asynchronous with respect to
// correctness (the store is the source of truth).
func (r *Recorder) Emit(ctx context.Context, typ Type, caller id.Address, fields map[string]string) error {
	event := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: requestcontext.Now(ctx),
		Caller:    caller,
		RequestID: requestcontext.RequestID(ctx),
		Fields:    fields,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := r.store.Append(ctx, event); err != nil {
		return err
	}
	if r.sink != nil {
		if err := r.sink.Publish(ctx, event); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "event sink publish failed",
				"type", string(typ),
				"event_id", event.ID,
				"error", err,
			)
		}
	}
	return nil
}
