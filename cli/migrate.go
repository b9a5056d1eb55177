package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/migrate"
	"github.com/warp/clinic-core/store/file"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	From string
	To   string
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy a JSON data directory into the SQLite database",
		Long: `Copy users, patients, appointments and billing from a directory of JSON
table files into the SQLite database.

Records whose id already exists in the database are skipped, and users are
skipped entirely when the database already has accounts, so the command is
safe to run twice. The source directory is never modified.

Examples:
  clinic migrate
  clinic migrate --from ./legacy-data --to ./data/hospital.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "source data directory (default --data-dir)")
	cmd.Flags().StringVar(&opts.To, "to", "", "destination database (default --db)")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	from, to := opts.From, opts.To
	if from == "" {
		from = opts.cfg.DataDir
	}
	if to == "" {
		to = opts.cfg.DBPath
	}

	dst, err := opts.openSQLite(to)
	if err != nil {
		return err
	}
	defer dst.Close()

	info, err := os.Stat(from)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		opts.logger.Info("no source data directory, database initialised only", "from", from, "to", to)
		return writeJSON(cmd, migrate.Result{Tables: []migrate.TableResult{}})
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to inspect source directory", err)
	case !info.IsDir():
		return NewExitError(ExitCommandError, from+" is not a directory")
	}

	src, err := file.New(from, file.Options{Logger: opts.logger})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open source directory", err)
	}
	defer src.Close()

	res, err := migrate.Run(cmd.Context(), src, dst, migrate.WithLogger(opts.logger))
	if err != nil {
		return WrapExitError(ExitFailure, "migration interrupted", err)
	}
	opts.logger.Info("migration complete", "migrated", res.Migrated(), "failed", res.Failed(), "database", to)
	return writeJSON(cmd, res)
}
