package ditto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type seenRequest struct {
	Method      string
	Path        string
	Auth        string
	Accept      string
	ContentType string
	Body        string
}

func recorder(t *testing.T, status int, reply string) (*httptest.Server, func() []seenRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{
			Method:      r.Method,
			Path:        r.URL.EscapedPath(),
			Auth:        r.Header.Get("Authorization"),
			Accept:      r.Header.Get("Accept"),
			ContentType: r.Header.Get("Content-Type"),
			Body:        string(b),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func TestAuthHeader(t *testing.T) {
	t.Parallel()
	basic := func(s string) string { return "Basic " + base64.StdEncoding.EncodeToString([]byte(s)) }
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "token wins", cfg: Config{AuthBasic: "dG9rZW4=", Username: "u", Password: "p"}, want: "Basic dG9rZW4="},
		{name: "username and password", cfg: Config{Username: "ditto", Password: "ditto"}, want: basic("ditto:ditto")},
		{name: "empty password allowed", cfg: Config{Username: "ditto"}, want: basic("ditto:")},
		{name: "nothing", cfg: Config{}, want: ""},
		{name: "password alone is not enough", cfg: Config{Password: "p"}, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := authHeader(tt.cfg); got != tt.want {
				t.Fatalf("authHeader = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplaceStateSendsPut(t *testing.T) {
	t.Parallel()
	srv, seen := recorder(t, http.StatusCreated, `{"thingId":"org.example:S0001"}`)
	c := New(Config{BaseURL: srv.URL + "/", Username: "ditto", Password: "ditto"})

	resp, err := c.ReplaceState(context.Background(), "org.example:S0001", map[string]any{"thingId": "org.example:S0001"})
	if err != nil {
		t.Fatalf("ReplaceState: %v", err)
	}
	if !resp.OK() || resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]any
	if err := resp.Decode(&out); err != nil || out["thingId"] != "org.example:S0001" {
		t.Fatalf("decode = %v, %v", out, err)
	}

	got := seen()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	r := got[0]
	if r.Method != http.MethodPut || r.Path != "/api/2/things/org.example:S0001" {
		t.Fatalf("unexpected request %s %s", r.Method, r.Path)
	}
	if r.Accept != "application/json" || r.ContentType != "application/json" {
		t.Fatalf("headers accept=%q content-type=%q", r.Accept, r.ContentType)
	}
	if r.Auth != "Basic "+base64.StdEncoding.EncodeToString([]byte("ditto:ditto")) {
		t.Fatalf("auth = %q", r.Auth)
	}
	if r.Body != `{"thingId":"org.example:S0001"}` {
		t.Fatalf("body = %s", r.Body)
	}
}

func TestOperationsRouting(t *testing.T) {
	t.Parallel()
	srv, seen := recorder(t, http.StatusNoContent, "")
	c := New(Config{BaseURL: srv.URL, AuthBasic: "eDp5"})
	ctx := context.Background()
	id := "ns:bus-1"

	if _, err := c.GetState(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ApplyPatch(ctx, id, []PatchOp{{Op: "replace", Path: "/attributes/model", Value: "Line 2"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReplaceFeatures(ctx, id, map[string]any{"status": map[string]any{"properties": map[string]int{"count": 3}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.DeleteState(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListThings(ctx); err != nil {
		t.Fatal(err)
	}

	want := []struct{ method, path, ctype string }{
		{http.MethodGet, "/api/2/things/ns:bus-1", "application/json"},
		{http.MethodPatch, "/api/2/things/ns:bus-1", "application/json-patch+json"},
		{http.MethodPut, "/api/2/things/ns:bus-1/features", "application/json"},
		{http.MethodDelete, "/api/2/things/ns:bus-1", "application/json"},
		{http.MethodGet, "/api/2/things", "application/json"},
	}
	got := seen()
	if len(got) != len(want) {
		t.Fatalf("requests = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Method != w.method || got[i].Path != w.path || got[i].ContentType != w.ctype {
			t.Fatalf("request %d = %s %s (%s), want %s %s (%s)",
				i, got[i].Method, got[i].Path, got[i].ContentType, w.method, w.path, w.ctype)
		}
		if got[i].Auth != "Basic eDp5" {
			t.Fatalf("request %d auth = %q", i, got[i].Auth)
		}
	}

	var ops []PatchOp
	if err := json.Unmarshal([]byte(got[1].Body), &ops); err != nil || len(ops) != 1 || ops[0].Op != "replace" {
		t.Fatalf("patch body = %s (%v)", got[1].Body, err)
	}
}

func TestMissingAuthReportedAtFirstRequest(t *testing.T) {
	t.Parallel()
	srv, seen := recorder(t, http.StatusOK, "")
	c := New(Config{BaseURL: srv.URL})
	if c == nil {
		t.Fatal("New returned nil without credentials")
	}
	_, err := c.ReplaceState(context.Background(), "x:y", map[string]any{})
	if !errors.Is(err, ErrMissingAuth) {
		t.Fatalf("err = %v, want ErrMissingAuth", err)
	}
	if n := len(seen()); n != 0 {
		t.Fatalf("server saw %d requests", n)
	}
}

func TestNon2xxIsNotAnError(t *testing.T) {
	t.Parallel()
	srv, _ := recorder(t, http.StatusBadRequest, "not json")
	c := New(Config{BaseURL: srv.URL, Username: "u"})
	resp, err := c.ReplaceState(context.Background(), "a:b", map[string]any{})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if resp.OK() || resp.StatusCode != http.StatusBadRequest || resp.Text() != "not json" {
		t.Fatalf("resp = %+v", resp)
	}
	var v any
	if resp.Decode(&v) == nil {
		t.Fatal("expected decode error for non-JSON body")
	}
}

func TestTimeoutIsTransportError(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	c := New(Config{BaseURL: srv.URL, Username: "u", Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.GetState(context.Background(), "a:b")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errors.Is(err, ErrMissingAuth) {
		t.Fatalf("unexpected auth error: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not honored: %s", time.Since(start))
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	c := New(Config{})
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("base = %q", c.BaseURL())
	}
	if c.hc.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %s", c.hc.Timeout)
	}
	if c.limiter != nil {
		t.Fatal("limiter should be off by default")
	}
	if New(Config{RatePerSec: 0.5}).limiter == nil {
		t.Fatal("fractional rate should still install a limiter")
	}
}
