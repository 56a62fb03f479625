package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	transports "github.com/rzbill/evbus/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewSubscribeCommand constructs the `subscribe` command. It prints one
// JSON event per line until interrupted or --limit is reached.
func NewSubscribeCommand(endpoint EndpointFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Stream events from a named queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, _ := cmd.Flags().GetStringSlice("types")
			queue, _ := cmd.Flags().GetString("queue")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			if len(types) == 0 {
				return fmt.Errorf("--types is required")
			}
			if queue == "" {
				return fmt.Errorf("--queue is required")
			}
			t, err := getTransport(endpoint())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return t.Subscribe(cmd.Context(), transports.SubscribeRequest{
				Types:  types,
				Queue:  queue,
				Filter: filter,
				Limit:  limit,
			}, func(line []byte) error {
				if _, err := out.Write(line); err != nil {
					return err
				}
				_, err := out.Write([]byte{'\n'})
				return err
			})
		},
	}
	cmd.Flags().StringSlice("types", nil, "Event types (repeatable or comma separated)")
	cmd.Flags().String("queue", "", "Queue name")
	cmd.Flags().String("filter", "", "CEL filter over `event` (server-side)")
	cmd.Flags().Int("limit", 0, "Stop after N events (0 = infinite)")
	return cmd
}

// NewPublishCommand constructs the `publish` command.
func NewPublishCommand(endpoint EndpointFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one event or a JSON array of events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, _ := cmd.Flags().GetString("data")
			body, err := readData(cmd, data)
			if err != nil {
				return err
			}
			t, err := getTransport(endpoint())
			if err != nil {
				return err
			}
			n, err := t.Publish(cmd.Context(), body)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "published:", n)
			return nil
		},
	}
	cmd.Flags().String("data", "", `Event JSON, "-" for stdin or "@file"`)
	return cmd
}

// NewQueuesCommand constructs the `queues` command (HTTP only).
func NewQueuesCommand(endpoint EndpointFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queues [name]",
		Short: "List active event queues or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep := endpoint()
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			raw, err := transports.NewHTTPTransport(ep.HTTPURL, nil, credentials(ep)).Queues(cmd.Context(), name)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				buf.Reset()
				buf.Write(raw)
			}
			buf.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	}
	return cmd
}
