package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/evbus/internal/authz"
	"github.com/rzbill/evbus/internal/runtime"
	"github.com/rzbill/evbus/internal/server/http/controllers"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
	logpkg "github.com/rzbill/evbus/pkg/log"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	svc    *eventsvc.Service
	logger logpkg.Logger
}

// New builds the HTTP API server. A nil logger uses the runtime logger.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	logger = logger.WithComponent("http")
	svc := eventsvc.NewWithLogger(rt, logger)
	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt, svc, logger).RegisterAllRoutes(mux)

	s := &Server{rt: rt, svc: svc, logger: logger}
	handler := s.authenticate(mux)
	handler = cors(rt.Config().Server.CORSAllowedOrigin, handler)
	handler = requestID(handler)
	s.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logpkg.ToStdLogger(logger, logpkg.WarnLevel),
	}
	return s
}

// Handler exposes the root handler, including middleware.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. Open event streams end when their requests are cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		timeout := s.rt.Config().Server.ShutdownTimeout()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		cctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID propagates or assigns a request id and stores it in the
// request context for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(logpkg.ContextWithRequestID(r.Context(), rid)))
	})
}

// authenticate resolves the API user from HTTP Basic credentials. The
// health endpoint is exempt.
func (s *Server) authenticate(next http.Handler) http.Handler {
	auth := s.rt.Auth()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		name, password, present := r.BasicAuth()
		user, err := auth.Authenticate(name, password, present)
		if err != nil {
			s.logger.WithContext(r.Context()).Debug("authentication failed",
				logpkg.Str("user", name), logpkg.Str("path", r.URL.Path), logpkg.Err(err))
			w.Header().Set("WWW-Authenticate", `Basic realm="`+auth.Realm()+`"`)
			controllers.WriteError(w, http.StatusUnauthorized, "Unauthorized. Please check your user credentials.")
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithUser(r.Context(), user)))
	})
}
