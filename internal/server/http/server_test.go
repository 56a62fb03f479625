package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/evbus/internal/authz"
	cfgpkg "github.com/rzbill/evbus/internal/config"
	"github.com/rzbill/evbus/internal/runtime"
	"github.com/rzbill/evbus/internal/server/http/controllers"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	logpkg "github.com/rzbill/evbus/pkg/log"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, authEnabled bool) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Auth.Enabled = authEnabled
	cfg.Events.WaitTimeoutMs = 50
	cfg.Events.PollSliceMs = 5
	cfg.Auth.Users = []cfgpkg.User{
		{Name: "root", Password: "root", Permissions: []string{"*"}},
		{Name: "mon", Password: "secret", Permissions: []string{"events/CheckResult"}},
	}
	rt, err := runtime.Open(runtime.Options{
		Config:           cfg,
		DataDir:          t.TempDir(),
		Fsync:            pebblestore.FsyncModeNever,
		Logger:           logpkg.NewNopLogger(),
		UserStoreOptions: []authz.StoreOption{authz.WithBcryptCost(bcrypt.MinCost)},
	})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text", Outputs: []string{"null"}})
	return New(rt, logger), rt
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var body struct {
		Error  int    `json:"error"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return body.Error, body.Status
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	s, _ := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id: %q", got)
	}
}

func TestEventsRequiresCredentials(t *testing.T) {
	s, _ := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/v1/events?types=CheckResult&queue=q1", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("WWW-Authenticate"), `realm="evbus"`) {
		t.Fatalf("missing challenge: %q", w.Header().Get("WWW-Authenticate"))
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/events?types=CheckResult&queue=q1", nil)
	req.SetBasicAuth("mon", "wrong")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status: %d", w.Code)
	}
}

func TestEventsValidation(t *testing.T) {
	s, rt := newTestServer(t, true)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		http10 bool
		user   string
		pass   string
		code   int
		status string
	}{
		{"method", http.MethodGet, "/v1/events?types=CheckResult&queue=q1", "", false, "root", "root", http.StatusMethodNotAllowed, "Method not allowed"},
		{"missing types", http.MethodPost, "/v1/events?queue=q1", "", false, "root", "root", http.StatusBadRequest, "'types' parameter is required"},
		{"missing queue", http.MethodPost, "/v1/events?types=CheckResult", "", false, "root", "root", http.StatusBadRequest, "'queue' parameter is required"},
		{"http 1.0", http.MethodPost, "/v1/events?types=CheckResult&queue=q1", "", true, "root", "root", http.StatusBadRequest, "HTTP/1.0 not supported for event streams"},
		{"http 1.0 bad body", http.MethodPost, "/v1/events", `{"types":`, true, "root", "root", http.StatusBadRequest, "HTTP/1.0 not supported for event streams"},
		{"permission", http.MethodPost, "/v1/events?types=StateChange&queue=q1", "", false, "mon", "secret", http.StatusBadRequest, "missing permission: events/StateChange"},
		{"filter", http.MethodPost, "/v1/events", `{"types":["CheckResult"],"queue":"q1","filter":"event.host =="}`, false, "root", "root", http.StatusBadRequest, "invalid filter"},
		{"body", http.MethodPost, "/v1/events", `{"types":`, false, "root", "root", http.StatusBadRequest, "Invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			} else {
				req = httptest.NewRequest(tc.method, tc.target, nil)
			}
			if tc.http10 {
				req.Proto, req.ProtoMajor, req.ProtoMinor = "HTTP/1.0", 1, 0
			}
			req.SetBasicAuth(tc.user, tc.pass)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != tc.code {
				t.Fatalf("status: %d body %s", w.Code, w.Body.String())
			}
			code, status := decodeError(t, w)
			if code != tc.code || status != tc.status {
				t.Fatalf("error body: %d %q", code, status)
			}
			if len(rt.Registry().GetAll()) != 0 {
				t.Fatalf("validation failure created a queue")
			}
		})
	}
}

func TestEventStreamOverHTTP(t *testing.T) {
	s, rt := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	body := `{"types":["CheckResult"],"queue":"q1","filter":"event.host == \"a\""}`
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/v1/events", strings.NewReader(body))
	req.SetBasicAuth("mon", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != controllers.StreamContentType {
		t.Fatalf("content type: %q", ct)
	}
	if q := rt.Registry().GetByName("q1"); q == nil || q.ClientCount() != 1 {
		t.Fatalf("subscriber must be registered before the response starts")
	}

	publish := func(payload string) {
		preq, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/events/publish", strings.NewReader(payload))
		preq.SetBasicAuth("root", "root")
		presp, err := http.DefaultClient.Do(preq)
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		presp.Body.Close()
		if presp.StatusCode != http.StatusAccepted {
			t.Fatalf("publish status: %d", presp.StatusCode)
		}
	}
	publish(`{"type":"CheckResult","host":"b"}`)
	publish(`[{"type":"StateChange","host":"a"},{"type":"CheckResult","host":"a"}]`)

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(resp.Body).ReadString('\n')
		lines <- line
	}()
	select {
	case line := <-lines:
		if line != "{\"type\":\"CheckResult\",\"host\":\"a\"}\n" {
			t.Fatalf("line: %q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	deadline := time.Now().Add(3 * time.Second)
	for rt.Registry().GetByName("q1") != nil {
		if time.Now().After(deadline) {
			t.Fatal("queue not unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishRequiresScope(t *testing.T) {
	s, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/publish", strings.NewReader(`{"type":"CheckResult"}`))
	req.SetBasicAuth("mon", "secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/events/publish", strings.NewReader(`{"host":"a"}`))
	req.SetBasicAuth("root", "root")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing type status: %d", w.Code)
	}
}

func TestQueuesListing(t *testing.T) {
	s, rt := newTestServer(t, false)
	rt.Registry().Acquire("q1", rt.NextClientID(), []string{"CheckResult"}, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/queues", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var list struct {
		Queues []struct {
			Name        string   `json:"name"`
			Types       []string `json:"types"`
			Subscribers int      `json:"subscribers"`
		} `json:"queues"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Queues) != 1 || list.Queues[0].Name != "q1" || list.Queues[0].Subscribers != 1 {
		t.Fatalf("unexpected listing: %+v", list)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/queues/q1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status: %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/queues/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing queue status: %d", w.Code)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
