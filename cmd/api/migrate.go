package main

import (
	"errors"
	"os"

	"instafund/internal/db"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(os.Getenv("APP_MODE"), zerolog.InfoLevel)
			if dsn == "" {
				dsn = os.Getenv("DB_DSN")
			}
			if dsn == "" {
				return errors.New("missing required env: DB_DSN")
			}
			pool, err := db.NewPool(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info().Msg("migrations up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (defaults to DB_DSN)")
	return cmd
}
