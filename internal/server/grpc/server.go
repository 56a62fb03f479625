package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/rzbill/evbus/internal/runtime"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
	logpkg "github.com/rzbill/evbus/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	svc    *eventsvc.Service
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	logger logpkg.Logger

	// streams is cancelled when Serve's ctx is done; every stream context
	// derives from it as well as from its peer.
	streams       context.Context
	cancelStreams context.CancelFunc
}

// New constructs a gRPC server and registers the events and health
// services. A nil logger uses the runtime logger.
func New(rt *runtime.Runtime, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	logger = logger.WithComponent("grpc")
	auth := rt.Auth()
	streams, cancelStreams := context.WithCancel(context.Background())
	opts = append(opts,
		grpc.ChainUnaryInterceptor(unaryAuth(auth)),
		grpc.ChainStreamInterceptor(streamShutdown(streams), streamAuth(auth)),
	)
	s := &Server{
		rt:            rt,
		svc:           eventsvc.NewWithLogger(rt, logger),
		grpc:          grpc.NewServer(opts...),
		health:        newHealth(context.Background(), rt),
		logger:        logger,
		streams:       streams,
		cancelStreams: cancelStreams,
	}
	RegisterEventsServer(s.grpc, &eventsSvc{svc: s.svc})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done. Open subscriptions are cancelled
// before the graceful stop.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("grpc server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.cancelStreams()
		s.stop()
		return nil
	case err := <-errCh:
		return err
	}
}

// stop drains the server. GracefulStop is bounded by the shutdown timeout
// and followed by a hard Stop.
func (s *Server) stop() {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	timeout := s.rt.Config().Server.ShutdownTimeout()
	if timeout <= 0 {
		s.grpc.Stop()
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.grpc.Stop()
		<-done
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	s.cancelStreams()
	if s.grpc != nil {
		s.grpc.Stop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// shutdownStream carries a context cancelled by either the peer or the
// server's shutdown.
type shutdownStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *shutdownStream) Context() context.Context { return s.ctx }

func streamShutdown(streams context.Context) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, cancel := context.WithCancel(ss.Context())
		defer cancel()
		stop := context.AfterFunc(streams, cancel)
		defer stop()
		return handler(srv, &shutdownStream{ServerStream: ss, ctx: ctx})
	}
}
