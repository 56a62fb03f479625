package eventsvc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/evbus/internal/authz"
	cfgpkg "github.com/rzbill/evbus/internal/config"
	"github.com/rzbill/evbus/internal/events"
	"github.com/rzbill/evbus/internal/runtime"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	logpkg "github.com/rzbill/evbus/pkg/log"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Events.WaitTimeoutMs = 30
	cfg.Events.PollSliceMs = 5
	cfg.Events.MaxFilterLength = 64
	rt, err := runtime.Open(runtime.Options{
		Config:  cfg,
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Logger:  logpkg.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt), rt
}

type fakeSink struct {
	ctx     context.Context
	out     chan *events.Event
	starts  int
	flushes int
	mu      sync.Mutex

	startErr error
	sendErr  error
}

func newFakeSink(ctx context.Context) *fakeSink {
	return &fakeSink{ctx: ctx, out: make(chan *events.Event, 16)}
}

func (f *fakeSink) Context() context.Context { return f.ctx }

func (f *fakeSink) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeSink) Send(ev *events.Event) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.out <- ev
	return nil
}

func (f *fakeSink) Flush() error {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func waitForSubscribers(t *testing.T, rt *runtime.Runtime, queue string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		q := rt.Registry().GetByName(queue)
		return q != nil && q.ClientCount() == n
	}, 2*time.Second, 2*time.Millisecond)
}

func TestSubscribe_validation(t *testing.T) {
	svc, rt := newTestService(t)
	limited := &authz.User{Name: "mon", Permissions: []string{"events/CheckResult"}}

	cases := []struct {
		name string
		user *authz.User
		req  SubscribeRequest
		want string
	}{
		{"legacy protocol", authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}, Queue: "q", LegacyProtocol: true}, "HTTP/1.0"},
		{"missing types", authz.Anonymous, SubscribeRequest{Queue: "q"}, "'types'"},
		{"empty type", authz.Anonymous, SubscribeRequest{Types: []string{""}, Queue: "q"}, "'types'"},
		{"permission", limited, SubscribeRequest{Types: []string{"CheckResult", "StateChange"}, Queue: "q"}, "events/StateChange"},
		{"missing queue", authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}}, "'queue'"},
		{"filter too long", authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}, Queue: "q", Filter: strings.Repeat("x", 65)}, "exceeds 64"},
		{"bad filter", authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}, Queue: "q", Filter: "event.host =="}, "invalid filter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := newFakeSink(context.Background())
			err := svc.Subscribe(tc.user, tc.req, sink)

			var re *RequestError
			require.ErrorAs(t, err, &re)
			require.Equal(t, http.StatusBadRequest, re.Status)
			require.Contains(t, err.Error(), tc.want)
			require.Equal(t, http.StatusBadRequest, StatusOf(err))
			require.Equal(t, 0, sink.startCount(), "no response may be started on validation failure")
			require.Empty(t, rt.Registry().GetAll(), "validation must not create queues")
		})
	}
}

func TestSubscribe_permissionErrorWrapsDenied(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Subscribe(&authz.User{Name: "none"}, SubscribeRequest{Types: []string{"X"}, Queue: "q"}, newFakeSink(context.Background()))
	require.ErrorIs(t, err, authz.ErrPermissionDenied)
}

func TestSubscribe_streamsFilteredEventsAndCleansUp(t *testing.T) {
	svc, rt := newTestService(t)
	var mu sync.Mutex
	var states []State
	svc.onState = func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := newFakeSink(ctx)
	done := make(chan error, 1)
	go func() {
		done <- svc.Subscribe(authz.Anonymous, SubscribeRequest{
			Types:  []string{"CheckResult"},
			Queue:  "q1",
			Filter: `event.host == "a"`,
		}, sink)
	}()
	waitForSubscribers(t, rt, "q1", 1)

	// Let at least one empty wait expire so the retry path runs.
	time.Sleep(50 * time.Millisecond)

	b := rt.Broadcaster()
	b.Publish(context.Background(), events.MustNew("CheckResult", events.F("host", "a")))
	b.Publish(context.Background(), events.MustNew("CheckResult", events.F("host", "b")))
	b.Publish(context.Background(), events.MustNew("StateChange", events.F("host", "a")))

	select {
	case ev := <-sink.out:
		line, err := events.EncodeLine(ev)
		require.NoError(t, err)
		require.Equal(t, "{\"type\":\"CheckResult\",\"host\":\"a\"}\n", string(line))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-sink.out:
		t.Fatalf("unexpected event %s", ev)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after disconnect")
	}

	require.Nil(t, rt.Registry().GetByName("q1"))
	require.Equal(t, 1, sink.startCount())
	mu.Lock()
	require.Equal(t, []State{StateValidating, StateProvisioning, StateStreaming, StateTerminated}, states)
	mu.Unlock()
}

func TestSubscribe_sinkFailuresStillCleanUp(t *testing.T) {
	svc, rt := newTestService(t)

	startFail := newFakeSink(context.Background())
	startFail.startErr = errors.New("peer gone")
	err := svc.Subscribe(authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}, Queue: "q1"}, startFail)
	require.EqualError(t, err, "peer gone")
	require.Nil(t, rt.Registry().GetByName("q1"))

	sendFail := newFakeSink(context.Background())
	sendFail.sendErr = errors.New("broken pipe")
	done := make(chan error, 1)
	go func() {
		done <- svc.Subscribe(authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}, Queue: "q1"}, sendFail)
	}()
	waitForSubscribers(t, rt, "q1", 1)
	rt.Broadcaster().Publish(context.Background(), events.MustNew("CheckResult"))

	select {
	case err := <-done:
		require.EqualError(t, err, "broken pipe")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after write failure")
	}
	require.Nil(t, rt.Registry().GetByName("q1"))
}

func TestSubscribe_twoSubscribersShareQueue(t *testing.T) {
	svc, rt := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinks := []*fakeSink{newFakeSink(ctx), newFakeSink(ctx)}
	var wg sync.WaitGroup
	for _, s := range sinks {
		wg.Add(1)
		go func(s *fakeSink) {
			defer wg.Done()
			_ = svc.Subscribe(authz.Anonymous, SubscribeRequest{Types: []string{"CheckResult"}, Queue: "shared"}, s)
		}(s)
	}
	waitForSubscribers(t, rt, "shared", 2)

	for _, h := range []string{"a", "b"} {
		rt.Broadcaster().Publish(context.Background(), events.MustNew("CheckResult", events.F("host", h)))
	}
	for _, s := range sinks {
		for _, want := range []string{"a", "b"} {
			select {
			case ev := <-s.out:
				got, _ := ev.Get("host")
				require.Equal(t, want, got)
			case <-time.After(2 * time.Second):
				t.Fatal("subscriber starved")
			}
		}
	}
	cancel()
	wg.Wait()
	require.Nil(t, rt.Registry().GetByName("shared"))
}

func TestPublish(t *testing.T) {
	svc, rt := newTestService(t)
	cid := rt.NextClientID()
	q := rt.Registry().Acquire("q1", cid, []string{"CheckResult"}, nil)

	n, err := svc.Publish(context.Background(), authz.Anonymous, []byte(`[{"type":"CheckResult"},{"type":"CheckResult"}]`))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, q.Pending(cid))

	_, err = svc.Publish(context.Background(), authz.Anonymous, []byte(`{"host":"a"}`))
	require.Equal(t, http.StatusBadRequest, StatusOf(err))
	require.ErrorIs(t, err, events.ErrMissingType)

	producer := &authz.User{Name: "p", Permissions: []string{"publish/StateChange"}}
	_, err = svc.Publish(context.Background(), producer, []byte(`[{"type":"StateChange"},{"type":"CheckResult"}]`))
	require.Equal(t, http.StatusForbidden, StatusOf(err))
	require.Equal(t, 2, q.Pending(cid), "a denied batch publishes nothing")

	require.NoError(t, svc.PublishEvent(context.Background(), authz.Anonymous, events.MustNew("CheckResult")))
	require.Equal(t, 3, q.Pending(cid))
}

func TestListQueues(t *testing.T) {
	svc, rt := newTestService(t)
	rt.Registry().Acquire("b", rt.NextClientID(), []string{"StateChange"}, nil)
	rt.Registry().Acquire("a", rt.NextClientID(), []string{"CheckResult"}, nil)

	infos, err := svc.ListQueues(authz.Anonymous)
	require.NoError(t, err)
	require.Equal(t, []QueueInfo{
		{Name: "a", Types: []string{"CheckResult"}, Subscribers: 1},
		{Name: "b", Types: []string{"StateChange"}, Subscribers: 1},
	}, infos)

	info, err := svc.GetQueue(authz.Anonymous, "a")
	require.NoError(t, err)
	require.Equal(t, "a", info.Name)

	_, err = svc.GetQueue(authz.Anonymous, "zzz")
	require.ErrorIs(t, err, ErrQueueNotFound)
	require.Equal(t, http.StatusNotFound, StatusOf(err))

	_, err = svc.ListQueues(&authz.User{Name: "x"})
	require.Equal(t, http.StatusForbidden, StatusOf(err))
	require.Equal(t, "missing permission: queues/list", MessageOf(err))
}
