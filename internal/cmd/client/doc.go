// Package client provides the `evbus` command-line client.
//
// The CLI talks to the evbus HTTP and gRPC endpoints to subscribe to and
// publish events from a terminal. It is primarily intended for developers
// and operators.
//
// # Address configuration
//
// The embedding application supplies an EndpointFunc. The evbus binary
// reads --server (default http://127.0.0.1:5665), --grpc-server (default
// 127.0.0.1:5666), --transport, --user and --password, or the matching
// EVBUS_SERVER, EVBUS_GRPC_SERVER, EVBUS_TRANSPORT, EVBUS_USER and
// EVBUS_PASSWORD environment variables.
//
// Usage
//
//	evbus subscribe --types CheckResult,StateChange --queue ops \
//	    --filter 'event.host == "web-1"'
//
//	evbus publish --data '{"type":"CheckResult","host":"web-1"}'
//	echo '[{"type":"CheckResult"}]' | evbus publish --data -
//	evbus --transport grpc publish --data @event.json
//
//	evbus queues
//	evbus queues ops
//
//	# user commands edit the local data directory; stop the server first
//	evbus user add --name mon --password secret --permission 'events/*'
//	evbus user list
//	evbus user remove --name mon
//
// Notes
//
//   - subscribe prints one JSON event per line and runs until interrupted
//     or --limit events were received.
//   - queues uses the HTTP API regardless of --transport.
package client
