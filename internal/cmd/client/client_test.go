package client

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/evbus/internal/authz"
	cfgpkg "github.com/rzbill/evbus/internal/config"
	"github.com/rzbill/evbus/internal/runtime"
	grpcserver "github.com/rzbill/evbus/internal/server/grpc"
	httpserver "github.com/rzbill/evbus/internal/server/http"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	logpkg "github.com/rzbill/evbus/pkg/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	rt       *runtime.Runtime
	httpURL  string
	grpcAddr string
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Events.WaitTimeoutMs = 50
	cfg.Events.PollSliceMs = 5
	cfg.Server.ShutdownTimeoutMs = 200
	cfg.Auth.Users = []cfgpkg.User{{Name: "root", Password: "root", Permissions: []string{"*"}}}
	rt, err := runtime.Open(runtime.Options{
		Config:           cfg,
		DataDir:          t.TempDir(),
		Fsync:            pebblestore.FsyncModeNever,
		Logger:           logpkg.NewNopLogger(),
		UserStoreOptions: []authz.StoreOption{authz.WithBcryptCost(bcrypt.MinCost)},
	})
	require.NoError(t, err)

	hs := httptest.NewServer(httpserver.New(rt, logpkg.NewNopLogger()).Handler())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	gdone := make(chan struct{})
	go func() {
		_ = grpcserver.New(rt, logpkg.NewNopLogger()).Serve(ctx, lis)
		close(gdone)
	}()

	t.Cleanup(func() {
		cancel()
		<-gdone
		hs.Close()
		_ = rt.Close()
	})
	return &testServer{rt: rt, httpURL: hs.URL, grpcAddr: lis.Addr().String()}
}

func (s *testServer) endpoint(transport string) EndpointFunc {
	return func() Endpoint {
		return Endpoint{HTTPURL: s.httpURL, GRPCAddr: s.grpcAddr, Transport: transport, User: "root", Password: "root"}
	}
}

func (s *testServer) waitForSubscriber(t *testing.T, queue string) {
	t.Helper()
	require.Eventually(t, func() bool {
		q := s.rt.Registry().GetByName(queue)
		return q != nil && q.ClientCount() > 0
	}, 5*time.Second, 5*time.Millisecond)
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestSubscribeAndPublish(t *testing.T) {
	for _, transport := range []string{"http", "grpc"} {
		t.Run(transport, func(t *testing.T) {
			srv := startServer(t)
			ep := srv.endpoint(transport)

			sub := NewSubscribeCommand(ep)
			out := &bytes.Buffer{}
			sub.SetOut(out)
			errCh := make(chan error, 1)
			go func() {
				errCh <- runCmd(t, sub, "--types", "CheckResult", "--queue", "cli", "--filter", `event.host == "a"`, "--limit", "2")
			}()
			srv.waitForSubscriber(t, "cli")

			pub := NewPublishCommand(ep)
			pubOut := &bytes.Buffer{}
			pub.SetOut(pubOut)
			require.NoError(t, runCmd(t, pub, "--data",
				`[{"type":"CheckResult","host":"a","n":1},{"type":"CheckResult","host":"b"},{"type":"StateChange","host":"a"},{"type":"CheckResult","host":"a","n":2}]`))
			require.Equal(t, "published: 4\n", pubOut.String())

			select {
			case err := <-errCh:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("subscribe did not stop after --limit")
			}
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, 2)
			require.Contains(t, lines[0], `"host":"a"`)
			require.Contains(t, lines[0], `"n":1`)
			require.Contains(t, lines[1], `"n":2`)
		})
	}
}

func TestSubscribeRequiresFlags(t *testing.T) {
	ep := func() Endpoint { return Endpoint{HTTPURL: "http://127.0.0.1:1"} }
	require.Error(t, runCmd(t, NewSubscribeCommand(ep), "--queue", "q"))
	require.Error(t, runCmd(t, NewSubscribeCommand(ep), "--types", "CheckResult"))
}

func TestSubscribeRejectedByServer(t *testing.T) {
	srv := startServer(t)
	cmd := NewSubscribeCommand(srv.endpoint("http"))
	err := runCmd(t, cmd, "--types", "CheckResult", "--queue", "q", "--filter", "event.host ==")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestWrongCredentials(t *testing.T) {
	srv := startServer(t)
	ep := func() Endpoint {
		return Endpoint{HTTPURL: srv.httpURL, User: "root", Password: "nope"}
	}
	err := runCmd(t, NewPublishCommand(ep), "--data", `{"type":"CheckResult"}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestPublishFromStdin(t *testing.T) {
	srv := startServer(t)
	cmd := NewPublishCommand(srv.endpoint("http"))
	cmd.SetIn(strings.NewReader(`{"type":"CheckResult","host":"a"}`))
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	require.NoError(t, runCmd(t, cmd, "--data", "-"))
	require.Equal(t, "published: 1\n", out.String())
}

func TestQueuesCommand(t *testing.T) {
	srv := startServer(t)
	sub := NewSubscribeCommand(srv.endpoint("http"))
	sub.SetOut(&bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		sub.SetArgs([]string{"--types", "CheckResult", "--queue", "ops"})
		errCh <- sub.ExecuteContext(ctx)
	}()
	srv.waitForSubscriber(t, "ops")

	cmd := NewQueuesCommand(srv.endpoint("http"))
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	require.NoError(t, runCmd(t, cmd))
	require.Contains(t, out.String(), `"ops"`)

	out.Reset()
	require.NoError(t, runCmd(t, cmd, "ops"))
	require.Contains(t, out.String(), `"CheckResult"`)

	require.Error(t, runCmd(t, cmd, "missing"))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not stop on cancel")
	}
}

func TestUserCommands(t *testing.T) {
	dir := t.TempDir()
	dataDir := func() string { return dir }

	add := NewUserCommand(dataDir)
	out := &bytes.Buffer{}
	add.SetOut(out)
	require.NoError(t, runCmd(t, add, "add", "--name", "mon", "--password", "secret", "--permission", "events/*", "--permission", "publish/CheckResult"))
	require.Contains(t, out.String(), "user mon saved (2 permissions)")

	list := NewUserCommand(dataDir)
	out.Reset()
	list.SetOut(out)
	require.NoError(t, runCmd(t, list, "list"))
	require.Contains(t, out.String(), `"name":"mon"`)
	require.NotContains(t, out.String(), "password_hash")

	rm := NewUserCommand(dataDir)
	out.Reset()
	rm.SetOut(out)
	require.NoError(t, runCmd(t, rm, "remove", "--name", "mon"))
	require.Error(t, runCmd(t, NewUserCommand(dataDir), "remove", "--name", "mon"))
}

func TestUnknownTransport(t *testing.T) {
	_, err := getTransport(Endpoint{Transport: "carrier-pigeon"})
	require.Error(t, err)
}
