package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/expjudge/expjudge/internal/config"
	"github.com/expjudge/expjudge/internal/source"
)

var importDB string

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import a CSV event dump into a SQLite database",
	Long: `Load raw events from a CSV file into a local SQLite database, so the
server and analyze commands can read them without re-parsing the dump.

Example:
  expjudge import events.csv --db ./events.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDB, "db", "", "destination database path (defaults to the configured sqlite path)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := importDB
	if dbPath == "" {
		if cfg.Source.Kind != config.SourceSQLite || cfg.Source.Path == "" {
			return fmt.Errorf("no destination database: pass --db or configure a sqlite source")
		}
		dbPath = cfg.Source.Path
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	events, err := source.DecodeCSV(f)
	if err != nil {
		return fmt.Errorf("failed to parse csv: %w", err)
	}

	db, err := source.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.ImportEvents(cmd.Context(), events); err != nil {
		return fmt.Errorf("failed to import events: %w", err)
	}

	total, err := db.CountEvents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}

	fmt.Printf("Imported %d events (%d total in %s)\n", len(events), total, dbPath)
	return nil
}
