package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/expjudge/expjudge/internal/pipeline"
)

var (
	exportFormat string
	exportDay    string
)

var exportCmd = &cobra.Command{
	Use:   "export [experiment]",
	Short: "Export labeled outcomes",
	Long: `Run the attribution pipeline and export the labeled outcome rows in
CSV or JSON format. Without an experiment argument every experiment is
exported.

Examples:
  expjudge export exp-14 --format csv > exp-14.csv
  expjudge export --format json > outcomes.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVar(&exportDay, "day", "", "restrict to exposures on this day (YYYY-MM-DD or YYYY-MM-DD HH)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	day, err := parseDay(exportDay)
	if err != nil {
		return err
	}

	src, err := buildSource(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	events, err := src.Events(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	pipe := buildPipeline(cfg)

	var outcomes []pipeline.Outcome
	if len(args) == 1 {
		outcomes = pipe.LabelExperiment(events, args[0], day, cfg.Pipeline.SameDay)
	} else {
		outcomes = pipe.Label(events)
	}

	if exportFormat == "csv" {
		return exportCSV(outcomes)
	}
	return exportJSON(outcomes)
}

func exportCSV(outcomes []pipeline.Outcome) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"event_name", "experiment", "variant", "user_id", "attempts", "purchases", "with_purchase"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, o := range outcomes {
		row := []string{
			o.EventName,
			o.Experiment,
			o.Variant,
			o.UserID,
			strconv.Itoa(o.Attempts),
			strconv.Itoa(o.Purchases),
			strconv.FormatBool(o.WithPurchase),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Outcomes []jsonOutcome `json:"outcomes"`
}

type jsonOutcome struct {
	EventName    string `json:"event_name"`
	Experiment   string `json:"experiment"`
	Variant      string `json:"variant"`
	UserID       string `json:"user_id"`
	Attempts     int    `json:"attempts"`
	Purchases    int    `json:"purchases"`
	WithPurchase bool   `json:"with_purchase"`
}

func exportJSON(outcomes []pipeline.Outcome) error {
	export := jsonExport{
		Outcomes: make([]jsonOutcome, len(outcomes)),
	}

	for i, o := range outcomes {
		export.Outcomes[i] = jsonOutcome{
			EventName:    o.EventName,
			Experiment:   o.Experiment,
			Variant:      o.Variant,
			UserID:       o.UserID,
			Attempts:     o.Attempts,
			Purchases:    o.Purchases,
			WithPurchase: o.WithPurchase,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
