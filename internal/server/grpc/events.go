package grpcserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/rzbill/evbus/internal/authz"
	"github.com/rzbill/evbus/internal/events"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type eventsSvc struct {
	svc *eventsvc.Service
}

func (s *eventsSvc) Publish(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	ev, err := StructToEvent(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.svc.PublishEvent(ctx, authz.UserFromContext(ctx), ev); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *eventsSvc) Subscribe(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	req := subscribeRequestFromStruct(in)
	sink := &grpcSink{stream: stream, queue: req.Queue}
	return toStatus(s.svc.Subscribe(authz.UserFromContext(stream.Context()), req, sink))
}

// grpcSink sends events as Struct messages.
type grpcSink struct {
	stream grpc.ServerStreamingServer[structpb.Struct]
	queue  string
}

func (s *grpcSink) Context() context.Context { return s.stream.Context() }

func (s *grpcSink) Start() error {
	return s.stream.SendHeader(metadata.Pairs("x-evbus-queue", s.queue))
}

func (s *grpcSink) Send(ev *events.Event) error {
	msg, err := EventToStruct(ev)
	if err != nil {
		return err
	}
	return s.stream.Send(msg)
}

// Flush is a no-op; gRPC sends each message as it is written.
func (s *grpcSink) Flush() error { return nil }

// toStatus maps service errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, authz.ErrPermissionDenied) {
		return status.Error(codes.PermissionDenied, eventsvc.MessageOf(err))
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	switch eventsvc.StatusOf(err) {
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, eventsvc.MessageOf(err))
	case http.StatusForbidden:
		return status.Error(codes.PermissionDenied, eventsvc.MessageOf(err))
	case http.StatusNotFound:
		return status.Error(codes.NotFound, eventsvc.MessageOf(err))
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
