package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"whatsapp-autoresponder/internal/config"
	"whatsapp-autoresponder/internal/database"
	"whatsapp-autoresponder/internal/logging"
	"whatsapp-autoresponder/internal/store"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate_data",
		Short: "Copy the responder document between storage backends",
	}
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

type endpoint struct {
	kind string
	file string
	db   string
}

func newMigrateCmd() *cobra.Command {
	var from, to endpoint
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Load the document from one backend and save it into another",
		Long: "Legacy data.json files are detected and converted while loading. " +
			"Postgres connection settings come from the DB_* environment variables.",
		Example: "  migrate_data migrate --from file --from-file data.json --to sqlite --to-db autoresponder.db",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.LogPretty)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return migrate(ctx, cfg, from, to, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&from.kind, "from", config.BackendFile, "source backend (file, sqlite, postgres)")
	f.StringVar(&from.file, "from-file", "data.json", "source document for the file backend")
	f.StringVar(&from.db, "from-db", "autoresponder.db", "source database path for the sqlite backend")
	f.StringVar(&to.kind, "to", config.BackendSQLite, "destination backend (file, sqlite, postgres)")
	f.StringVar(&to.file, "to-file", "data.json", "destination document for the file backend")
	f.StringVar(&to.db, "to-db", "autoresponder.db", "destination database path for the sqlite backend")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit")
	return cmd
}

func migrate(ctx context.Context, cfg config.Config, from, to endpoint, logger zerolog.Logger) error {
	if from == to {
		return errors.New("source and destination are the same")
	}

	src, closeSrc, err := openEndpoint(cfg, from)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeSrc()
	dst, closeDst, err := openEndpoint(cfg, to)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer closeDst()

	doc, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", from.kind, err)
	}
	doc.Normalize()
	if err := dst.Save(ctx, doc); err != nil {
		return fmt.Errorf("save %s: %w", to.kind, err)
	}

	logger.Info().
		Str("from", from.kind).
		Str("to", to.kind).
		Int("options", len(doc.MenuOptions)).
		Int("scheduled", len(doc.ScheduledMessages)).
		Int("logs", len(doc.MessageLog)).
		Msg("migration complete")
	return nil
}

func openEndpoint(cfg config.Config, e endpoint) (store.Backend, func(), error) {
	switch e.kind {
	case config.BackendFile:
		return store.NewFileBackend(e.file), func() {}, nil
	case config.BackendSQLite, config.BackendPostgres:
		cfg.StoreBackend = e.kind
		cfg.DBPath = e.db
		db, err := database.Open(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewGormBackend(db), closer(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", e.kind)
	}
}

func closer(db *gorm.DB) func() {
	return func() { _ = database.Close(db) }
}
