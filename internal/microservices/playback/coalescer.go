package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/workerpool"

	"go.uber.org/zap"
)

// DefaultWindow matches the player's five second save delay.
const DefaultWindow = 5 * time.Second

var ErrCoalescerClosed = errors.New("coalescer is closed")

// Key identifies one learner watching one lesson.
type Key struct {
	UserID   string
	LessonID string
}

func KeyOf(u dto.PositionUpdate) Key {
	return Key{UserID: u.UserID, LessonID: u.LessonID}
}

// FlushFunc persists one coalesced position update.
type FlushFunc func(ctx context.Context, update dto.PositionUpdate) error

type entry struct {
	update dto.PositionUpdate
	seq    uint64
	timer  *time.Timer
}

// flight serializes writes for a key and remembers the newest sequence
// written, so a slower older write never lands after a newer one.
type flight struct {
	mu      sync.Mutex
	refs    int
	lastSeq uint64 // guarded by Coalescer.mu
}

// Coalescer buffers the latest position per key and writes it at most once per window.
// The first update of a window arms the timer; later updates only replace the buffered value.
type Coalescer struct {
	window time.Duration
	flush  FlushFunc
	pool   *workerpool.WorkerPool
	logger *zap.Logger

	mu       sync.Mutex
	seq      uint64
	pending  map[Key]*entry
	inflight map[Key]*flight
	closed   bool
}

type Option func(*Coalescer)

// WithPool runs timer-triggered writes on pool instead of the timer goroutine.
func WithPool(pool *workerpool.WorkerPool) Option {
	return func(c *Coalescer) { c.pool = pool }
}

func NewCoalescer(window time.Duration, flush FlushFunc, logger *zap.Logger, opts ...Option) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coalescer{
		window:   window,
		flush:    flush,
		logger:   logger,
		pending:  make(map[Key]*entry),
		inflight: make(map[Key]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit buffers update as the latest value for its key.
func (c *Coalescer) Submit(update dto.PositionUpdate) error {
	k := KeyOf(update)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCoalescerClosed
	}

	c.seq++
	if e, ok := c.pending[k]; ok {
		e.update = update
		e.seq = c.seq
		return nil
	}

	e := &entry{update: update, seq: c.seq}
	e.timer = time.AfterFunc(c.window, func() { c.fire(k, e) })
	c.pending[k] = e
	return nil
}

// Flush writes the buffered value for key now. With nothing buffered it waits
// for any write of that key already in progress.
func (c *Coalescer) Flush(ctx context.Context, k Key) error {
	c.mu.Lock()
	e, ok := c.pending[k]
	if !ok {
		f, busy := c.inflight[k]
		if !busy {
			c.mu.Unlock()
			return nil
		}
		f.refs++
		c.mu.Unlock()

		f.mu.Lock()
		f.mu.Unlock()
		c.release(k, f)
		return nil
	}
	e.timer.Stop()
	delete(c.pending, k)
	f := c.acquire(k)
	update, seq := e.update, e.seq
	c.mu.Unlock()

	return c.write(ctx, k, f, seq, update)
}

// Discard drops the buffered value for key and invalidates queued writes of it.
func (c *Coalescer) Discard(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pending[k]; ok {
		e.timer.Stop()
		delete(c.pending, k)
	}
	c.seq++
	if f, ok := c.inflight[k]; ok {
		f.lastSeq = c.seq
	}
}

// Pending reports how many keys have a buffered update.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops accepting updates and flushes every buffered key.
func (c *Coalescer) Close(ctx context.Context) error {
	type job struct {
		key    Key
		f      *flight
		seq    uint64
		update dto.PositionUpdate
	}

	c.mu.Lock()
	c.closed = true
	jobs := make([]job, 0, len(c.pending))
	for k, e := range c.pending {
		e.timer.Stop()
		delete(c.pending, k)
		jobs = append(jobs, job{key: k, f: c.acquire(k), seq: e.seq, update: e.update})
	}
	c.mu.Unlock()

	var errs []error
	for _, j := range jobs {
		if err := c.write(ctx, j.key, j.f, j.seq, j.update); err != nil {
			errs = append(errs, err)
		}
	}
	if len(jobs) > 0 {
		c.logger.Info("coalescer_closed", zap.Int("flushed", len(jobs)-len(errs)), zap.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}

// fire runs when a window expires. The entry is removed before the write starts
// so a failed write leaves no stale state behind.
func (c *Coalescer) fire(k Key, e *entry) {
	c.mu.Lock()
	if c.pending[k] != e {
		c.mu.Unlock()
		return
	}
	delete(c.pending, k)
	f := c.acquire(k)
	update, seq := e.update, e.seq
	c.mu.Unlock()

	task := func(ctx context.Context) error {
		return c.write(ctx, k, f, seq, update)
	}
	if c.pool != nil && c.pool.Submit(task) {
		return
	}
	if err := task(context.Background()); err != nil {
		c.logger.Debug("coalesced_write_failed", zap.String("user_id", k.UserID), zap.String("lesson_id", k.LessonID), zap.Error(err))
	}
}

// acquire must be called with c.mu held.
func (c *Coalescer) acquire(k Key) *flight {
	f, ok := c.inflight[k]
	if !ok {
		f = &flight{}
		c.inflight[k] = f
	}
	f.refs++
	return f
}

func (c *Coalescer) release(k Key, f *flight) {
	c.mu.Lock()
	f.refs--
	if f.refs == 0 {
		delete(c.inflight, k)
	}
	c.mu.Unlock()
}

func (c *Coalescer) write(ctx context.Context, k Key, f *flight, seq uint64, update dto.PositionUpdate) error {
	defer c.release(k, f)

	f.mu.Lock()
	defer f.mu.Unlock()

	c.mu.Lock()
	stale := seq <= f.lastSeq
	if !stale {
		f.lastSeq = seq
	}
	c.mu.Unlock()

	if stale {
		c.logger.Debug("coalesced_write_superseded", zap.String("user_id", k.UserID), zap.String("lesson_id", k.LessonID))
		return nil
	}
	return c.flush(ctx, update)
}
