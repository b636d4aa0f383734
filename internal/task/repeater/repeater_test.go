package repeater

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dittoload/internal/eventbus"
)

func TestNewRejectsBadArgs(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	if _, err := New("t", 0, ok); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := New("t", -time.Second, ok); err == nil {
		t.Fatal("expected error for negative interval")
	}
	if _, err := New("t", time.Second, nil); err == nil {
		t.Fatal("expected error for nil worker")
	}
}

func TestFailingWorkerKeepsTicking(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	r, err := New("failing", 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("remote unavailable")
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("worker ran %d times, want >= 3", calls.Load())
	}
	if r.State() != StateRunning {
		t.Fatalf("state = %s, want running", r.State())
	}

	r.RequestStop()
	wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
	defer wcancel()
	if err := r.Wait(wctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	snap := r.Snapshot()
	if snap.State != "stopped" || snap.Failures != snap.Ticks || snap.LastError != "remote unavailable" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStopInterruptsSleep(t *testing.T) {
	t.Parallel()
	ran := make(chan struct{}, 1)
	r, _ := New("sleepy", time.Hour, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	go func() { _ = r.Run(context.Background()) }()
	<-ran

	start := time.Now()
	r.RequestStop()
	r.RequestStop()
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("repeater did not stop while sleeping")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("stop latency %s", time.Since(start))
	}
	if r.Snapshot().Ticks != 1 {
		t.Fatalf("ticks = %d, want 1", r.Snapshot().Ticks)
	}
}

func TestContextCancelStops(t *testing.T) {
	t.Parallel()
	r, _ := New("ctx", time.Hour, func(context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStopBeforeStartNeverTicks(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	r, _ := New("idle", time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	r.RequestStop()
	if r.State() != StateStopped {
		t.Fatalf("state = %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("Run = %v, want ErrNotIdle", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("worker ran %d times", calls.Load())
	}
}

func TestSecondStartIsRejected(t *testing.T) {
	t.Parallel()
	r, _ := New("once", time.Hour, func(context.Context) error { return nil })
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.RequestStop()
	if err := r.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("second Start = %v", err)
	}
}

func TestSlowWorkerRunsBackToBack(t *testing.T) {
	t.Parallel()
	var starts []time.Time
	done := make(chan struct{})
	r, _ := New("slow", 20*time.Millisecond, func(context.Context) error {
		starts = append(starts, time.Now())
		if len(starts) == 3 {
			close(done)
		}
		time.Sleep(40 * time.Millisecond)
		return nil
	})
	go func() { _ = r.Run(context.Background()) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow worker did not tick three times")
	}
	r.RequestStop()
	<-r.Done()

	for i := 1; i < 3; i++ {
		gap := starts[i].Sub(starts[i-1])
		// the gap is the worker's own runtime; no extra interval is added
		if gap >= 40*time.Millisecond+20*time.Millisecond+15*time.Millisecond {
			t.Fatalf("gap %d = %s, expected back-to-back ticks", i, gap)
		}
	}
	if r.Snapshot().Overruns == 0 {
		t.Fatal("expected overruns to be counted")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	r, _ := New("panicky", 5*time.Millisecond, func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.Start(ctx)
	for calls.Load() < 2 && ctx.Err() == nil {
		time.Sleep(2 * time.Millisecond)
	}
	r.RequestStop()
	if err := r.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	snap := r.Snapshot()
	if snap.Panics != 1 || calls.Load() < 2 {
		t.Fatalf("panics=%d calls=%d", snap.Panics, calls.Load())
	}
	if r.Err() != nil {
		t.Fatalf("Err = %v, panics are not fatal", r.Err())
	}
}

func TestFatalErrorEndsRun(t *testing.T) {
	t.Parallel()
	errConfig := errors.New("missing credentials")
	var calls atomic.Int64
	r, _ := New("fatal", time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errConfig
	}, WithFatal(func(err error) bool { return errors.Is(err, errConfig) }))

	err := r.Run(context.Background())
	if !errors.Is(err, errConfig) {
		t.Fatalf("Run = %v, want config error", err)
	}
	if calls.Load() != 1 || !errors.Is(r.Err(), errConfig) || r.State() != StateStopped {
		t.Fatalf("calls=%d err=%v state=%s", calls.Load(), r.Err(), r.State())
	}
}

func TestTickEventsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	var n atomic.Int64
	r, _ := New("events", time.Millisecond, func(context.Context) error {
		if n.Add(1) == 2 {
			return errors.New("nope")
		}
		return nil
	}, WithBus(bus))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.Start(ctx)

	var got []eventbus.Event
	for len(got) < 2 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}
	r.RequestStop()

	if got[0].Type != eventbus.TypeTickFinished || got[1].Type != eventbus.TypeTickFailed {
		t.Fatalf("types = %s, %s", got[0].Type, got[1].Type)
	}
	te, ok := got[1].Data.(TickEvent)
	if !ok || te.Task != "events" || te.Tick != 2 || te.Err != "nope" {
		t.Fatalf("data = %+v", got[1].Data)
	}
}
