package client

import (
	"encoding/json"
	"fmt"

	"github.com/rzbill/evbus/internal/authz"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	"github.com/spf13/cobra"
)

// withUserStore opens the local store. The server must not hold the
// data directory open.
func withUserStore(dataDir string, fn func(*authz.Store) error) error {
	if dataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dataDir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		return fmt.Errorf("open store %s: %w", dataDir, err)
	}
	defer func() { _ = db.Close() }()
	return fn(authz.NewStore(db))
}

// NewUserCommand constructs the `user` command group. It edits API users
// directly in the local data directory.
func NewUserCommand(dataDir DataDirFunc) *cobra.Command {
	userCmd := &cobra.Command{Use: "user", Short: "API user operations (offline)"}
	userCmd.AddCommand(
		newUserAddCommand(dataDir),
		newUserListCommand(dataDir),
		newUserRemoveCommand(dataDir),
	)
	return userCmd
}

func newUserAddCommand(dataDir DataDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			perms, _ := cmd.Flags().GetStringSlice("permission")
			return withUserStore(dataDir(), func(s *authz.Store) error {
				u, err := s.Put(authz.Spec{Name: name, Password: password, Permissions: perms})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user %s saved (%d permissions)\n", u.Name, len(u.Permissions))
				return nil
			})
		},
	}
	cmd.Flags().String("name", "", "User name")
	cmd.Flags().String("password", "", "Password")
	cmd.Flags().StringSlice("permission", nil, `Permission glob, e.g. "events/*" (repeatable)`)
	return cmd
}

func newUserListCommand(dataDir DataDirFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUserStore(dataDir(), func(s *authz.Store) error {
				users, err := s.List()
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, u := range users {
					if err := enc.Encode(u); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newUserRemoveCommand(dataDir DataDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			return withUserStore(dataDir(), func(s *authz.Store) error {
				if err := s.Remove(name); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "user", name, "removed")
				return nil
			})
		},
	}
	cmd.Flags().String("name", "", "User name")
	return cmd
}
