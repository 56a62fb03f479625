package grpcserver

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rzbill/evbus/internal/authz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthPrefix = "/grpc.health.v1.Health/"

// basicCredentials extracts "Basic <base64(user:pass)>" from the
// authorization metadata.
func basicCredentials(ctx context.Context) (name, password string, ok bool) {
	md, found := metadata.FromIncomingContext(ctx)
	if !found {
		return "", "", false
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", "", false
	}
	enc, found := strings.CutPrefix(vals[0], "Basic ")
	if !found {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", "", false
	}
	name, password, ok = strings.Cut(string(raw), ":")
	return name, password, ok
}

// BasicAuth returns per-RPC credentials for clients.
func BasicAuth(name, password string) grpc.CallOption {
	return grpc.PerRPCCredsCallOption{Creds: basicCreds{
		header: "Basic " + base64.StdEncoding.EncodeToString([]byte(name+":"+password)),
	}}
}

type basicCreds struct{ header string }

func (c basicCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": c.header}, nil
}

func (basicCreds) RequireTransportSecurity() bool { return false }

func authenticate(ctx context.Context, auth *authz.Authenticator) (context.Context, error) {
	name, password, present := basicCredentials(ctx)
	user, err := auth.Authenticate(name, password, present)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	return authz.ContextWithUser(ctx, user), nil
}

func unaryAuth(auth *authz.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}
		ctx, err := authenticate(ctx, auth)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func streamAuth(auth *authz.Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), auth)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}
