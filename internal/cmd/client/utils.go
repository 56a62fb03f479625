package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	transports "github.com/rzbill/evbus/internal/cmd/client/transports"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// dialGRPC returns a dialer for addr with insecure transport for local/dev.
func dialGRPC(addr string) func(context.Context) (*grpc.ClientConn, error) {
	return func(context.Context) (*grpc.ClientConn, error) {
		return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func credentials(ep Endpoint) transports.Credentials {
	return transports.Credentials{Name: ep.User, Password: ep.Password}
}

// getTransport picks the transport named by ep.Transport.
func getTransport(ep Endpoint) (transports.EventsTransport, error) {
	switch strings.ToLower(ep.Transport) {
	case "", "http":
		return transports.NewHTTPTransport(ep.HTTPURL, nil, credentials(ep)), nil
	case "grpc":
		return transports.NewGrpcTransport(dialGRPC(ep.GRPCAddr), credentials(ep)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q; use http|grpc", ep.Transport)
	}
}

// readData resolves --data: "-" reads stdin, "@path" reads a file,
// anything else is used as is.
func readData(cmd *cobra.Command, data string) ([]byte, error) {
	switch {
	case data == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(data, "@"):
		return os.ReadFile(strings.TrimPrefix(data, "@"))
	case data == "":
		return nil, fmt.Errorf("--data is required")
	default:
		return []byte(data), nil
	}
}
