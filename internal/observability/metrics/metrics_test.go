package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dittoload/internal/eventbus"
	"dittoload/internal/sender"
	"dittoload/internal/task/repeater"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePush(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObservePush(sender.Result{Outcome: sender.OutcomeOK, Duration: time.Millisecond})
	m.ObservePush(sender.Result{Outcome: sender.OutcomeOK})
	m.ObservePush(sender.Result{Outcome: sender.OutcomeHTTPError})
	m.ObservePush(sender.Result{Outcome: sender.OutcomeDryRun})

	if got := testutil.ToFloat64(m.pushes.WithLabelValues("ok")); got != 2 {
		t.Fatalf("ok pushes = %v", got)
	}
	tot := m.Totals()
	if tot.Pushes != 4 || tot.PushFailures != 1 {
		t.Fatalf("totals = %+v", tot)
	}
}

func TestConsumeTickEvents(t *testing.T) {
	t.Parallel()
	m := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	run := m.Consume(bus)
	for i := 0; i < 3; i++ {
		bus.Publish(eventbus.Event{Type: eventbus.TypeTickFinished, Data: repeater.TickEvent{Task: "buses", Duration: time.Millisecond}})
	}
	done := make(chan struct{})
	go func() {
		run(ctx)
		close(done)
	}()
	bus.Publish(eventbus.Event{Type: eventbus.TypeTickFailed, Data: repeater.TickEvent{Task: "buses", Err: "x"}})
	bus.Publish(eventbus.Event{Type: "other", Data: "ignored"})

	deadline := time.Now().Add(2 * time.Second)
	for m.Totals().TickFailures < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if tot := m.Totals(); tot.TickFailures != 1 || tot.Ticks != 4 {
		t.Fatalf("totals = %+v, want 4 ticks with 1 failure", tot)
	}
	if got := testutil.ToFloat64(m.ticks.WithLabelValues("buses", "failed")); got != 1 {
		t.Fatalf("failed ticks = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObservePush(sender.Result{Outcome: sender.OutcomeTransportError})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `dittoload_pushes_total{outcome="transport_error"} 1`) {
		t.Fatalf("metrics output missing push counter:\n%s", body)
	}
}
