// Package repeater runs one worker on a fixed, self-correcting interval.
//
// Each tick measures how long the worker took and sleeps only for the
// remainder of the interval. A tick that overruns is followed immediately by
// the next one; missed ticks are never replayed. Sleeping is interruptible,
// so a stop request is observed without waiting out the interval.
package repeater

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"dittoload/internal/eventbus"
	logx "dittoload/pkg/logx"
)

// ErrNotIdle is returned when Run/Start is called on a repeater that already ran.
var ErrNotIdle = errors.New("repeater: already started or stopped")

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Worker performs one tick. A returned error is logged and the loop goes on,
// unless the fatal predicate claims it.
type Worker func(ctx context.Context) error

// TickEvent is the Data of tick events published on the bus.
type TickEvent struct {
	Task     string
	Tick     uint64
	Duration time.Duration
	Err      string
}

// Snapshot is a point-in-time view of a repeater.
type Snapshot struct {
	Name          string        `json:"name"`
	State         string        `json:"state"`
	Interval      time.Duration `json:"interval"`
	Ticks         uint64        `json:"ticks"`
	Failures      uint64        `json:"failures"`
	Panics        uint64        `json:"panics"`
	Overruns      uint64        `json:"overruns"`
	LastStartAt   time.Time     `json:"last_start_at"`
	LastDuration  time.Duration `json:"last_duration"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorTime time.Time     `json:"last_error_at"`
}

type Repeater struct {
	name     string
	interval time.Duration
	worker   Worker

	log   logx.Logger
	bus   eventbus.Bus
	fatal func(error) bool

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	runErr   error

	mu    sync.Mutex
	stats Snapshot
}

type Option func(*Repeater)

func WithLogger(l logx.Logger) Option {
	return func(r *Repeater) { r.log = l }
}

// WithBus publishes tick.finished / tick.failed events after every tick.
func WithBus(b eventbus.Bus) Option {
	return func(r *Repeater) { r.bus = b }
}

// WithFatal makes worker errors matching fn end the loop; Run returns them.
func WithFatal(fn func(error) bool) Option {
	return func(r *Repeater) { r.fatal = fn }
}

func New(name string, interval time.Duration, worker Worker, opts ...Option) (*Repeater, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("repeater %q: interval must be > 0, got %s", name, interval)
	}
	if worker == nil {
		return nil, fmt.Errorf("repeater %q: worker required", name)
	}
	r := &Repeater{
		name:     name,
		interval: interval,
		worker:   worker,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("task", name))
	r.stats.Name = name
	r.stats.Interval = interval
	return r, nil
}

func (r *Repeater) Name() string            { return r.name }
func (r *Repeater) Interval() time.Duration { return r.interval }
func (r *Repeater) State() State            { return State(r.state.Load()) }

// Done is closed once the repeater reached StateStopped.
func (r *Repeater) Done() <-chan struct{} { return r.done }

// Err returns the fatal error that ended the loop, if any. Valid after Done.
func (r *Repeater) Err() error {
	select {
	case <-r.done:
		return r.runErr
	default:
		return nil
	}
}

// Run blocks until ctx is cancelled, RequestStop is called or a fatal worker
// error occurs. Only the first Run/Start succeeds.
func (r *Repeater) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrNotIdle
	}
	return r.loop(ctx)
}

// Start runs the loop in its own goroutine.
func (r *Repeater) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrNotIdle
	}
	go func() { _ = r.loop(ctx) }()
	return nil
}

// RequestStop is idempotent and never blocks. An idle repeater goes straight
// to StateStopped; a running one stops before its next tick.
func (r *Repeater) RequestStop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(r.done)
	}
}

// Wait blocks until the loop has exited or ctx is done.
func (r *Repeater) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Repeater) Snapshot() Snapshot {
	r.mu.Lock()
	s := r.stats
	r.mu.Unlock()
	s.State = r.State().String()
	return s
}

func (r *Repeater) stopping(ctx context.Context) bool {
	select {
	case <-r.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Repeater) loop(ctx context.Context) (err error) {
	defer func() {
		r.runErr = err
		r.state.Store(int32(StateStopped))
		close(r.done)
		r.log.Debug("task stopped", logx.Uint64("ticks", r.Snapshot().Ticks))
	}()
	r.log.Debug("task started", logx.Duration("interval", r.interval))

	for {
		if r.stopping(ctx) {
			return nil
		}

		start := time.Now()
		werr := r.tick(ctx)
		elapsed := time.Since(start)
		r.record(start, elapsed, werr)

		if werr != nil {
			if r.fatal != nil && r.fatal(werr) {
				r.log.Error("task failed fatally", logx.Err(werr))
				return werr
			}
			r.log.Warn("tick failed", logx.Err(werr), logx.Duration("took", elapsed))
		}

		wait := r.interval - elapsed
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-r.stopCh:
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (r *Repeater) tick(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.mu.Lock()
			r.stats.Panics++
			r.mu.Unlock()
			r.log.Error("tick panicked", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.worker(ctx)
}

func (r *Repeater) record(start time.Time, elapsed time.Duration, err error) {
	r.mu.Lock()
	r.stats.Ticks++
	n := r.stats.Ticks
	r.stats.LastStartAt = start
	r.stats.LastDuration = elapsed
	if elapsed > r.interval {
		r.stats.Overruns++
	}
	if err != nil {
		r.stats.Failures++
		r.stats.LastError = err.Error()
		r.stats.LastErrorTime = time.Now()
	}
	r.mu.Unlock()

	if r.bus == nil {
		return
	}
	ev := eventbus.Event{Type: eventbus.TypeTickFinished, Data: TickEvent{Task: r.name, Tick: n, Duration: elapsed}}
	if err != nil {
		ev.Type = eventbus.TypeTickFailed
		ev.Data = TickEvent{Task: r.name, Tick: n, Duration: elapsed, Err: err.Error()}
	}
	r.bus.Publish(ev)
}
