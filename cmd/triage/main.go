package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fieldtriage/internal/config"
	"github.com/ehr/fieldtriage/internal/domain/assessment"
	"github.com/ehr/fieldtriage/internal/platform/badgerdb"
	"github.com/ehr/fieldtriage/internal/platform/identity"
	"github.com/ehr/fieldtriage/internal/platform/telemetry"
	"github.com/ehr/fieldtriage/internal/termui"
	"github.com/ehr/fieldtriage/internal/transport"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		termui.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var author string
	root := &cobra.Command{
		Use:           "triage",
		Short:         "Field triage assessment records with offline reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&author, "author", "", "Name recorded on edits (defaults to AUTHOR_NAME)")

	root.AddCommand(deviceCmd())
	root.AddCommand(newCmd(&author))
	root.AddCommand(editCmd(&author))
	root.AddCommand(outcomeCmd(&author))
	root.AddCommand(showCmd())
	root.AddCommand(listCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(followUpsCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(importCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	return root
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

// app is the device-local wiring shared by every command.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	db       *badgerdb.DB
	deviceID string
	table    *assessment.FieldTable
	metrics  *telemetry.Metrics
	svc      *assessment.Service
	codec    *transport.Codec
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Logs go to stderr so command output stays pipeable.
	logger := newLogger(cfg, os.Stderr)

	table := assessment.DefaultFieldTable()
	if cfg.TrackedFieldsFile != "" {
		overrides, err := assessment.LoadFieldOverrides(cfg.TrackedFieldsFile)
		if err != nil {
			return nil, err
		}
		if table, err = table.WithOverrides(overrides); err != nil {
			return nil, err
		}
	}
	detector, err := assessment.NewDetector(table)
	if err != nil {
		return nil, err
	}

	db, err := badgerdb.Open(badgerdb.DefaultConfig(filepath.Join(cfg.DataDir, "store")), logger)
	if err != nil {
		return nil, err
	}
	deviceID, err := identity.DeviceID(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger = logger.With().Str("device", deviceID).Logger()

	metrics := telemetry.NewMetrics()
	svc := assessment.NewService(assessment.NewBadgerStore(db), detector, logger)
	svc.SetRecorder(metrics)
	svc.SetFollowUpAfter(cfg.FollowUpAfter)

	codec := &transport.Codec{
		OnDecodeFailure: func(k transport.Kind) {
			metrics.DecodeFailure(string(k))
			logger.Warn().Str("kind", string(k)).Msg("rejected transport blob")
		},
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		deviceID: deviceID,
		table:    table,
		metrics:  metrics,
		svc:      svc,
		codec:    codec,
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// session attributes writes to the --author flag or AUTHOR_NAME.
func (a *app) session(flagAuthor string) (assessment.Session, error) {
	author := strings.TrimSpace(flagAuthor)
	if author == "" {
		author = a.cfg.AuthorName
	}
	if author == "" {
		return assessment.Session{}, fmt.Errorf("no author: pass --author or set AUTHOR_NAME")
	}
	return assessment.Session{Author: author, DeviceID: a.deviceID}, nil
}

// withApp opens the app for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func deviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Print this device's identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.deviceID)
				return nil
			})
		},
	}
}
