package circuitflow

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/impromptu-ai/circuitflow/event"
	"github.com/impromptu-ai/circuitflow/sse"
)

// ErrStreamInterrupted is surfaced when the event stream ends before the
// backend sent its end-of-stream marker, typically a dropped connection.
var ErrStreamInterrupted = errors.New("pipeline stream ended unexpectedly")

// Run is one execution of the pipeline. It owns the stream-consumption loop:
// a single goroutine decodes frames, interprets them and applies the
// resulting actions to the store, so actions are applied exactly in arrival
// order with no locking.
type Run struct {
	id    string
	store *Store

	ctx    context.Context
	cancel context.CancelFunc

	snapshots chan Snapshot
	done      chan struct{}
	err       error

	logger *slog.Logger
}

func newRun(ctx context.Context, id string, stages []Stage, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:        id,
		store:     NewStore(stages, logger),
		ctx:       runCtx,
		cancel:    cancel,
		snapshots: make(chan Snapshot, 64),
		done:      make(chan struct{}),
		logger:    logger.With("run", id),
	}
	r.store.Observe(r.push)
	return r
}

// ID returns the client-generated run id.
func (r *Run) ID() string { return r.id }

// Next returns the channel on which a full snapshot is delivered after every
// applied action. The channel is closed when the run finishes. Slow readers
// only ever miss intermediate snapshots: under backpressure the oldest
// buffered snapshot is dropped, never the newest, and stage timing does not
// depend on any snapshot being observed.
func (r *Run) Next() <-chan Snapshot { return r.snapshots }

// Snapshot returns the current state of the run. Safe to call only after the
// run has finished; live observation goes through Next.
func (r *Run) Snapshot() Snapshot { return r.store.Snapshot() }

// Cancel abandons the run and tears down the stream.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the consumption loop has exited and returns the run's
// terminal error, if any.
func (r *Run) Wait() error {
	<-r.done
	return r.err
}

// Err returns the terminal error after the run has finished.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// consume is the single-writer loop: bytes from body flow through the decoder
// and interpreter into the store. The body is released on every exit path.
func (r *Run) consume(body io.ReadCloser) {
	defer close(r.done)
	defer close(r.snapshots)
	defer body.Close()

	r.store.Begin()
	r.push(r.store.Snapshot())

	dec := sse.NewDecoder(body, r.logger)
	graceful := false
	for {
		raw, err := dec.Next()
		if err != nil {
			if err == io.EOF && graceful {
				r.store.End()
				r.logger.Debug("pipeline stream complete")
				return
			}
			if err != io.EOF && r.ctx.Err() != nil {
				err = r.ctx.Err()
			} else if err == io.EOF {
				err = ErrStreamInterrupted
			}
			r.fail(err)
			return
		}

		if event.IsStreamEnd(raw) {
			graceful = true
			continue
		}
		if action, ok := event.Interpret(raw); ok {
			r.store.Apply(action)
		}
	}
}

// fail records the terminal error and forces still-running stages to error.
// Pending stages are left untouched so the partial history stays inspectable.
func (r *Run) fail(err error) {
	r.err = err
	r.store.AbortRunning()
	r.logger.Error("pipeline stream failed", "error", err)
}

// push forwards a snapshot to the observer channel without ever blocking the
// consumption loop.
func (r *Run) push(snap Snapshot) {
	for {
		select {
		case r.snapshots <- snap:
			return
		default:
			// Full: drop the oldest snapshot to make room.
			select {
			case <-r.snapshots:
			default:
			}
		}
	}
}
