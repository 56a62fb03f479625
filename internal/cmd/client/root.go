package client

import (
	"github.com/spf13/cobra"
)

// Endpoint locates an evbus server and the credentials to use.
type Endpoint struct {
	// HTTPURL is the HTTP API base URL, e.g. http://127.0.0.1:5665.
	HTTPURL string
	// GRPCAddr is the gRPC address, e.g. 127.0.0.1:5666.
	GRPCAddr string
	// Transport selects "http" (default) or "grpc".
	Transport string
	User      string
	Password  string
}

// EndpointFunc provides the Endpoint at command execution time (e.g. from
// flags, env or a config file).
type EndpointFunc func() Endpoint

// DataDirFunc provides the local data directory for offline commands.
type DataDirFunc func() string

// NewRoot constructs a root Cobra command for the evbus client.
// It registers the subscribe, publish, queues and user commands.
func NewRoot(endpoint EndpointFunc, dataDir DataDirFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "evbus",
		Short: "evbus client commands",
	}
	AddCommands(root, endpoint, dataDir)
	return root
}

// AddCommands attaches the client commands to parent.
func AddCommands(parent *cobra.Command, endpoint EndpointFunc, dataDir DataDirFunc) {
	parent.AddCommand(
		NewSubscribeCommand(endpoint),
		NewPublishCommand(endpoint),
		NewQueuesCommand(endpoint),
		NewUserCommand(dataDir),
	)
}
