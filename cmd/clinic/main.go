/*
main.go - clinic command-line entry point

PURPOSE:
  Runs the clinic CLI: record inspection, patient registration, billing,
  reports and the JSON-to-SQLite migration.

STARTUP SEQUENCE:
  1. Load a .env file from the working directory, if present
  2. Install SIGINT/SIGTERM handling on the command context
  3. Resolve configuration (defaults, CLINIC_* environment, flags)
  4. Open the selected store and run the command

ENVIRONMENT:
  CLINIC_BACKEND       file | sqlite (default sqlite)
  CLINIC_DATA_DIR      JSON data directory (default data)
  CLINIC_DB_PATH       SQLite database (default <data dir>/hospital.db)
  CLINIC_CATALOG_FILE  YAML settings overriding the catalog and seed users
  CLINIC_LOG_LEVEL     debug | info | warn | error (default info)
  CLINIC_TAX_PERCENT   default tax on new invoices (default 0)
  CLINIC_SEED_USERS    seed staff accounts into an empty users table (default true)
  CLINIC_BCRYPT_COST   cost for password hashes written by the tool

INTERRUPTS:
  On SIGINT/SIGTERM the command context is cancelled. A running migration
  stops between tables; every write already made is kept.

EXAMPLES:
  clinic records list patients --where gender=Female
  clinic invoice create --patient PAT001 --name "Ada Lovelace" --service consultation
  clinic report financial --from 2025-01-01 --to 2025-03-31
  clinic --backend file --data-dir ./data migrate --to ./data/hospital.db

SEE ALSO:
  - cli/root.go: command tree and configuration order
  - config/config.go: environment variables
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/warp/clinic-core/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
