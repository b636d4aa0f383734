// Package sender pushes namespaced Thing snapshots to the registry, or
// prints them in dry-run mode.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"dittoload/internal/ditto"
	"dittoload/internal/thing"
	logx "dittoload/pkg/logx"
)

// Transport is the subset of the Ditto client the sender needs.
type Transport interface {
	ReplaceState(ctx context.Context, thingID string, body any) (ditto.Response, error)
}

type Outcome string

const (
	OutcomeDryRun         Outcome = "dry_run"
	OutcomeOK             Outcome = "ok"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeTransportError Outcome = "transport_error"
)

// Result describes one push attempt.
type Result struct {
	ThingID    string
	StatusCode int
	Outcome    Outcome
	At         time.Time
	Duration   time.Duration
	Error      string
}

// Observer is notified after every attempt that produced a Result.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ObservePush(r Result)
}

type ObserverFunc func(Result)

func (f ObserverFunc) ObservePush(r Result) { f(r) }

type Sender struct {
	tr        Transport
	namespace string
	dryRun    bool

	outMu sync.Mutex
	out   io.Writer

	log       logx.Logger
	observers []Observer
}

type Option func(*Sender)

// WithOutput sets where dry-run lines go (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(s *Sender) {
		if w != nil {
			s.out = w
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(s *Sender) { s.log = l }
}

func WithObserver(o Observer) Option {
	return func(s *Sender) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// New builds a Sender. tr may be nil in dry-run mode.
func New(tr Transport, namespace string, dryRun bool, opts ...Option) *Sender {
	s := &Sender{tr: tr, namespace: namespace, dryRun: dryRun, out: os.Stdout}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Sender) DryRun() bool      { return s.dryRun }
func (s *Sender) Namespace() string { return s.namespace }

// IsConfigError reports errors that no later tick can fix.
func IsConfigError(err error) bool {
	return errors.Is(err, ditto.ErrMissingAuth)
}

// Send rewrites body.ThingID to "<namespace>:<localID>" and pushes it.
//
// Remote failures (non-2xx, network errors, timeouts) are logged and
// reported through Result only; the returned error is reserved for
// configuration problems.
func (s *Sender) Send(ctx context.Context, localID string, body *thing.Thing) (Result, error) {
	if body == nil {
		body = &thing.Thing{}
	}
	id := thing.Namespaced(s.namespace, localID)
	body.ThingID = id

	start := time.Now()
	res := Result{ThingID: id, At: start}

	if s.dryRun {
		res.Outcome = OutcomeDryRun
		if err := s.printDry(id, body); err != nil {
			s.log.Warn("dry run write failed", logx.String("thing", id), logx.Err(err))
		}
		res.Duration = time.Since(start)
		s.notify(res)
		return res, nil
	}

	if s.tr == nil {
		return res, errors.New("sender: no transport configured for live mode")
	}

	resp, err := s.tr.ReplaceState(ctx, id, body)
	res.Duration = time.Since(start)
	if err != nil {
		if IsConfigError(err) {
			return res, err
		}
		res.Outcome = OutcomeTransportError
		res.Error = err.Error()
		s.log.Warn("push failed", logx.String("thing", id), logx.Err(err), logx.Duration("took", res.Duration))
		s.notify(res)
		return res, nil
	}

	res.StatusCode = resp.StatusCode
	if resp.OK() {
		res.Outcome = OutcomeOK
	} else {
		res.Outcome = OutcomeHTTPError
		res.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}

	msg := fmt.Sprintf("PUT %s -> %d", id, resp.StatusCode)
	fields := []logx.Field{logx.String("thing", id), logx.Int("status", resp.StatusCode), logx.Duration("took", res.Duration)}
	var decoded any
	if resp.Decode(&decoded) == nil {
		fields = append(fields, logx.Any("body", decoded))
	} else if txt := resp.Text(); txt != "" {
		fields = append(fields, logx.String("body", txt))
	}
	if res.Outcome == OutcomeOK {
		s.log.Info(msg, fields...)
	} else {
		s.log.Warn(msg, fields...)
	}
	s.notify(res)
	return res, nil
}

func (s *Sender) printDry(id string, body *thing.Thing) error {
	b, err := body.JSON()
	if err != nil {
		return err
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintf(s.out, "DRY RUN -> PUT /api/2/things/%s\n", id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.out, "%s\n", b)
	return err
}

func (s *Sender) notify(r Result) {
	for _, o := range s.observers {
		o.ObservePush(r)
	}
}
