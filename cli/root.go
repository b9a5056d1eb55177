/*
Package cli implements the clinic command-line tool.

PURPOSE:
  Thin cobra commands over the record store and the caller services. Every
  command prints indented JSON on stdout; logs go to stderr.

CONFIGURATION ORDER (later wins):
  1. built-in defaults
  2. environment (CLINIC_*), including a .env file loaded by the binary
  3. persistent flags: --backend, --data-dir, --db, --catalog, -v

COMMANDS:
  records   raw table access (list, next-id)
  patient   register, search, show, deactivate
  bill      catalog listing and appointment quotes
  invoice   create, show, pay, list
  report    patients, appointments, financial, departments
  auth      verify a staff login
  migrate   copy a JSON data directory into the relational store

SEE ALSO:
  - config: environment and settings document
  - cmd/clinic/main.go: entry point
*/
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/config"
	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/store/file"
	"github.com/warp/clinic-core/store/sqlite"
)

// RootOptions holds global flags and the state resolved from them.
type RootOptions struct {
	Backend     string
	DataDir     string
	DBPath      string
	CatalogFile string
	Verbose     bool

	cfg      *config.Config
	settings *config.Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewRootCommand creates the root command for the clinic CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{now: time.Now})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Clinic records and billing",
		Long: `Manage clinic records and billing from the command line.

Data lives either in a directory of JSON files (--backend file) or in a
SQLite database (--backend sqlite, the default).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend (file|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory for the file backend")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path")
	cmd.PersistentFlags().StringVar(&opts.CatalogFile, "catalog", "", "YAML settings file (catalog, seed_users)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewPatientCommand(opts))
	cmd.AddCommand(NewBillCommand(opts))
	cmd.AddCommand(NewInvoiceCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// resolve merges environment and flags, then loads the settings document.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg := config.Load()
	if o.Backend != "" {
		cfg.Backend = strings.ToLower(o.Backend)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
		if o.DBPath == "" && os.Getenv("CLINIC_DB_PATH") == "" {
			cfg.DBPath = filepath.Join(o.DataDir, "hospital.db")
		}
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.CatalogFile != "" {
		cfg.CatalogFile = o.CatalogFile
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	lvl, _ := cfg.Level()
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))

	settings, err := config.LoadSettings(cfg.CatalogFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	o.cfg, o.settings = cfg, settings
	if o.now == nil {
		o.now = time.Now
	}
	o.logger.Debug("configuration resolved", "backend", cfg.Backend, "data_dir", cfg.DataDir, "db", cfg.DBPath)
	return nil
}

// storeCloser is a record store that owns resources.
type storeCloser interface {
	record.Store
	Close() error
}

func (o *RootOptions) seedUsers() []record.Record {
	if !o.cfg.SeedUsers {
		return nil
	}
	return o.settings.SeedUsers
}

// openStore opens the configured backend, seeding an empty users table.
func (o *RootOptions) openStore() (storeCloser, error) {
	switch o.cfg.Backend {
	case config.BackendFile:
		s, err := file.New(o.cfg.DataDir, file.Options{SeedUsers: o.seedUsers(), Logger: o.logger})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open data directory", err)
		}
		return s, nil
	case config.BackendSQLite:
		return o.openSQLite(o.cfg.DBPath)
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", o.cfg.Backend))
}

func (o *RootOptions) openSQLite(path string) (*sqlite.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	}
	s, err := sqlite.New(path, sqlite.Options{SeedUsers: o.seedUsers(), Logger: o.logger})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return s, nil
}
