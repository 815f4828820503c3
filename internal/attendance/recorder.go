package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
)

var ErrRecorderClosed = errors.New("attendance recorder is closed")

type opKind int

const (
	opJoin opKind = iota
	opLeave
)

type op struct {
	kind opKind
	key  Key
	at   time.Time
}

// Recorder applies attendance writes on a single goroutine so the realtime
// path never waits on the store. Writes for one key are applied in the
// order they were submitted. A failed write is retried once unless it
// timed out.
type Recorder struct {
	store Store
	log   logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan op
	done   chan struct{}

	retryDelay     time.Duration
	enqueueTimeout time.Duration
	writeTimeout   time.Duration
}

type RecorderOption func(*Recorder)

// WithRetryDelay sets the pause before the single retry of a failed write.
func WithRetryDelay(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.retryDelay = d }
}

// WithEnqueueTimeout bounds how long Join and Leave wait on a full queue.
func WithEnqueueTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.enqueueTimeout = d }
}

func NewRecorder(store Store, size int, log logger.Logger, opts ...RecorderOption) *Recorder {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = logger.Nop{}
	}
	r := &Recorder{
		store:          store,
		log:            log,
		queue:          make(chan op, size),
		done:           make(chan struct{}),
		retryDelay:     time.Second,
		enqueueTimeout: time.Second,
		writeTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.writeLoop()
	return r
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for o := range r.queue {
		err := r.apply(o)
		if errors.Is(err, context.DeadlineExceeded) {
			// the write may have committed; a retry could open or close a
			// second interval
			r.log.Error("[ATTENDANCE] write timed out, not retrying", o.key, err)
			continue
		}
		if err != nil {
			r.log.Warn("[ATTENDANCE] write failed, retrying", err)
			time.Sleep(r.retryDelay)
			err = r.apply(o)
			if err != nil {
				r.log.Error("[ATTENDANCE] write failed after retry", err)
			}
		}
	}
}

func (r *Recorder) apply(o op) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	switch o.kind {
	case opJoin:
		return r.store.RecordJoin(ctx, o.key, o.at)
	case opLeave:
		_, err := r.store.RecordLeave(ctx, o.key, o.at)
		return err
	}
	return nil
}

func (r *Recorder) submit(o op) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- o:
		return nil
	default:
	}
	t := time.NewTimer(r.enqueueTimeout)
	defer t.Stop()
	select {
	case r.queue <- o:
		return nil
	case <-t.C:
		return errors.New("attendance queue full")
	}
}

// Join queues an interval open. Errors are logged.
func (r *Recorder) Join(k Key, at time.Time) {
	if err := r.submit(op{kind: opJoin, key: k, at: at}); err != nil {
		r.log.Error("[ATTENDANCE] dropped join", k, err)
	}
}

// Leave queues an interval close. Errors are logged.
func (r *Recorder) Leave(k Key, at time.Time) {
	if err := r.submit(op{kind: opLeave, key: k, at: at}); err != nil {
		r.log.Error("[ATTENDANCE] dropped leave", k, err)
	}
}

// Close stops accepting writes and waits for the queue to drain or ctx to
// expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
