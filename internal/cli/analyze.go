package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/expjudge/expjudge/internal/checks"
	"github.com/expjudge/expjudge/internal/decision"
	"github.com/expjudge/expjudge/internal/pipeline"
	"github.com/expjudge/expjudge/internal/report"
	"github.com/expjudge/expjudge/internal/stats"
)

var (
	analyzeDay     string
	analyzeSameDay bool
	analyzeJSON    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [experiment]",
	Short: "Analyze an experiment and print the winner",
	Long: `Attribute purchases to exposures, run the validity checks, and print
the winning variant with its statistical evidence.

Without an experiment argument an interactive picker lists every
experiment found in the source.

Examples:
  expjudge analyze exp-14 --day "2023-05-01 00"
  expjudge analyze --same-day exp-14`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDay, "day", "", "restrict to exposures on this day (YYYY-MM-DD or YYYY-MM-DD HH)")
	analyzeCmd.Flags().BoolVar(&analyzeSameDay, "same-day", false, "drop purchases outside the analysis day entirely")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result document as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if analyzeSameDay {
		cfg.Pipeline.SameDay = true
	}

	day, err := parseDay(analyzeDay)
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

	experimentID := ""
	if len(args) == 1 {
		experimentID = args[0]
	} else {
		experimentID, err = pickExperiment(pipe.Label(events))
		if err != nil {
			return err
		}
	}

	outcomes := pipe.LabelExperiment(events, experimentID, day, cfg.Pipeline.SameDay)

	bundle := checks.Run(outcomes, checkParams(cfg))
	result, err := decision.DetermineWinner(outcomes)
	if err != nil {
		if err == decision.ErrNoData {
			return fmt.Errorf("experiment '%s' has no data for the requested day", experimentID)
		}
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Build(experimentID, outcomes, bundle, result))
	}

	printResult(experimentID, outcomes, bundle, result)
	return nil
}

// pickExperiment lists the experiments present in the labeled data and
// lets the user select one.
func pickExperiment(outcomes []pipeline.Outcome) (string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, o := range outcomes {
		if _, ok := seen[o.Experiment]; !ok {
			seen[o.Experiment] = struct{}{}
			ids = append(ids, o.Experiment)
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no experiments found in source")
	}
	sort.Strings(ids)

	prompt := promptui.Select{
		Label: "Experiment",
		Items: ids,
		Size:  10,
	}

	_, id, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return id, nil
}

func printResult(id string, outcomes []pipeline.Outcome, bundle checks.Bundle, result *decision.Result) {
	fmt.Printf("EXPERIMENT: %s\n", id)
	fmt.Printf("VARIANTS: %d\n", bundle.NumVariants)
	fmt.Println()

	fmt.Println("VARIANT           N        PURCHASES    RATE     95% CI")
	fmt.Println(strings.Repeat("─", 62))

	for _, row := range summarize(outcomes) {
		indicator := ""
		if row.variant == result.Winner {
			indicator = " ← WINNER"
		}

		ciStr := "N/A"
		if lo, hi, ok := stats.WaldInterval(row.rate, row.n, 0.95); ok {
			ciStr = fmt.Sprintf("[%.1f%%, %.1f%%]", lo*100, hi*100)
		}

		name := row.variant
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Printf("%-16s  %-7d  %-11d  %-7s  %s%s\n",
			name, row.n, row.purchases, formatPercent(row.rate), ciStr, indicator)
	}

	fmt.Println()

	switch result.Branch {
	case decision.Single:
		fmt.Println("Sole variant wins by default; no tests were run.")
	case decision.TwoArm:
		t := result.TwoArm
		if t.Significant {
			fmt.Printf("z-test: \"%s\" wins (z=%.3f, p=%.4f)\n", result.Winner, t.ZStatistic, t.PValue)
		} else {
			fmt.Printf("z-test: no significant difference (z=%.3f, p=%.4f); \"%s\" leads\n", t.ZStatistic, t.PValue, result.Winner)
		}
	case decision.MultiArm:
		t := result.MultiArm
		if t.ChiSquare.Significant {
			fmt.Printf("chi-square: variants differ (chi2=%.3f, p=%.4f); \"%s\" wins\n", t.ChiSquare.Statistic, t.ChiSquare.PValue, result.Winner)
		} else {
			fmt.Printf("chi-square: no significant difference (chi2=%.3f, p=%.4f); \"%s\" leads\n", t.ChiSquare.Statistic, t.ChiSquare.PValue, result.Winner)
		}
	}
}

type variantRow struct {
	variant   string
	n         int
	purchases int
	rate      float64
}

func summarize(outcomes []pipeline.Outcome) []variantRow {
	index := make(map[string]int)
	var rows []variantRow
	for _, o := range outcomes {
		i, ok := index[o.Variant]
		if !ok {
			i = len(rows)
			index[o.Variant] = i
			rows = append(rows, variantRow{variant: o.Variant})
		}
		rows[i].n++
		if o.WithPurchase {
			rows[i].purchases++
		}
	}
	for i := range rows {
		if rows[i].n > 0 {
			rows[i].rate = float64(rows[i].purchases) / float64(rows[i].n)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].variant < rows[j].variant })
	return rows
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
