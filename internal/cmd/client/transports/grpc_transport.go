package transports

import (
	"context"
	"errors"
	"io"

	"github.com/rzbill/evbus/internal/events"
	grpcserver "github.com/rzbill/evbus/internal/server/grpc"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GrpcTransport implements EventsTransport over gRPC.
type GrpcTransport struct {
	dial  func(ctx context.Context) (*grpc.ClientConn, error)
	creds Credentials
}

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error), creds Credentials) *GrpcTransport {
	return &GrpcTransport{dial: dial, creds: creds}
}

func (t *GrpcTransport) withClient(ctx context.Context, fn func(cli *grpcserver.EventsClient, opts []grpc.CallOption) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	var opts []grpc.CallOption
	if t.creds.Name != "" {
		opts = append(opts, grpcserver.BasicAuth(t.creds.Name, t.creds.Password))
	}
	return fn(grpcserver.NewEventsClient(conn), opts)
}

// Subscribe streams events and invokes onEvent for each item.
func (t *GrpcTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEvent func([]byte) error) error {
	msg, err := grpcserver.SubscribeRequestToStruct(eventsvc.SubscribeRequest{Types: req.Types, Queue: req.Queue, Filter: req.Filter})
	if err != nil {
		return err
	}
	cb := counted(req.Limit, onEvent)
	return t.withClient(ctx, func(cli *grpcserver.EventsClient, opts []grpc.CallOption) error {
		stream, err := cli.Subscribe(ctx, msg, opts...)
		if err != nil {
			return err
		}
		for {
			m, err := stream.Recv()
			if err != nil {
				if err == io.EOF || status.Code(err) == codes.Canceled {
					return nil
				}
				return err
			}
			ev, err := grpcserver.StructToEvent(m)
			if err != nil {
				return err
			}
			line, err := ev.MarshalJSON()
			if err != nil {
				return err
			}
			if err := cb(line); err != nil {
				if errors.Is(err, errStop) {
					return nil
				}
				return err
			}
		}
	})
}

// Publish sends each event of data with one Publish call.
func (t *GrpcTransport) Publish(ctx context.Context, data []byte) (int, error) {
	evs, err := events.DecodeMany(data)
	if err != nil {
		return 0, err
	}
	n := 0
	err = t.withClient(ctx, func(cli *grpcserver.EventsClient, opts []grpc.CallOption) error {
		for _, ev := range evs {
			msg, err := grpcserver.EventToStruct(ev)
			if err != nil {
				return err
			}
			if _, err := cli.Publish(ctx, msg, opts...); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
