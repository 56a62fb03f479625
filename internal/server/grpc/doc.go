// Package grpcserver hosts the gRPC server for evbus. It registers the
// evbus.v1.Events service (Publish, server-streaming Subscribe) on
// well-known protobuf types together with the standard health service,
// and delegates to the shared events service layer.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":5666")
package grpcserver
