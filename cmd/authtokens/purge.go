package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authtokens"
	"github.com/MrEthical07/authtokens/store"
)

func newPurgeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh sessions from Postgres",
		Long:  "Reads ignore expired rows already; purge only reclaims space. Redis expires keys on its own.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Backend != authtokens.StoragePostgres {
				return errors.New("purge requires storage.backend postgres")
			}

			db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			s, err := store.NewPostgresStore(db, cfg.Storage.Postgres.Table, cfg.Tokens.RefreshTokenMaxAge)
			if err != nil {
				return err
			}
			n, err := s.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			root.logger().Info("purged expired sessions", "rows", n)
			cmd.Printf("Purged %d expired session(s).\n", n)
			return nil
		},
	}
}
