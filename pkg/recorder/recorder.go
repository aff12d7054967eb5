package recorder

import (
	"context"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

const (
	defaultBuffer = 1024
	maxBatch      = 128
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithBuffer sets how many frames may wait for the writer. Frames observed
// while the buffer is full are dropped and counted.
func WithBuffer(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Recorder is a transport.FrameObserver that writes frames to a Store from
// a background goroutine.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	buffer int

	mu      sync.RWMutex
	closed  bool
	frames  chan Frame
	dropped atomic.Uint64
	failed  atomic.Uint64
	done    chan struct{}

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

var _ transport.FrameObserver = (*Recorder)(nil)

// New starts a Recorder writing to store.
func New(store *Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  slog.Default(),
		buffer:  defaultBuffer,
		done:    make(chan struct{}),
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recorder")
	r.frames = make(chan Frame, r.buffer)
	go r.run()
	return r
}

// ObserveFrame implements transport.FrameObserver. It never blocks.
func (r *Recorder) ObserveFrame(dir transport.Direction, data []byte) {
	id, now := r.newID()
	f := Frame{
		ID:         id,
		Direction:  dir,
		RecordedAt: now,
		Data:       append([]byte(nil), data...),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.frames <- f:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of frames discarded because the buffer was
// full or the recorder was closed.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Failed returns the number of frames lost to write errors.
func (r *Recorder) Failed() uint64 {
	return r.failed.Load()
}

// Close stops accepting frames and waits until buffered frames are
// written or ctx is done. It does not close the Store.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.frames)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	batch := make([]Frame, 0, maxBatch)
	for f := range r.frames {
		batch = append(batch[:0], f)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-r.frames:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		r.write(batch)
	}
}

func (r *Recorder) write(batch []Frame) {
	for i := range batch {
		batch[i].Classify()
	}
	if err := r.store.Record(context.Background(), batch...); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.logger.Error("record frames failed", "count", len(batch), "error", err)
	}
}

// newID reads the clock under the entropy lock so ids sort in observation
// order.
func (r *Recorder) newID() (string, time.Time) {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	now := time.Now()
	return ulid.MustNew(ulid.Timestamp(now), r.entropy).String(), now
}
