package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/expjudge/expjudge/internal/checks"
	"github.com/expjudge/expjudge/internal/config"
	"github.com/expjudge/expjudge/internal/pipeline"
	"github.com/expjudge/expjudge/internal/source"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildSource opens the event source named by the configuration. The
// caller owns the returned source and must close it.
func buildSource(ctx context.Context, cfg config.Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceCSV:
		return source.NewCSVSource(cfg.Source.Path), nil
	case config.SourceGCS:
		return source.NewGCSSource(ctx, cfg.Source.Bucket, cfg.Source.Object, cfg.Source.CredentialsFile)
	case config.SourceSQLite:
		return source.OpenSQLite(cfg.Source.Path)
	default:
		return nil, fmt.Errorf("unknown source kind: %s", cfg.Source.Kind)
	}
}

func buildPipeline(cfg config.Config) *pipeline.Pipeline {
	pipe := pipeline.New(cfg.Windows.Product.Std(), cfg.Windows.Search.Std())
	pipe.Mode = pipeline.Mode(cfg.Pipeline.Mode)
	pipe.ExcludeCheckout = cfg.Pipeline.ExcludeCheckout
	return pipe
}

func checkParams(cfg config.Config) checks.Params {
	return checks.Params{
		Alpha:             cfg.Checks.Alpha,
		Power:             cfg.Checks.Power,
		GofEffectSize:     cfg.Checks.GofEffectSize,
		TwoPropEffectSize: cfg.Checks.TwoPropEffectSize,
	}
}

func newLogger() (*zap.Logger, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

// parseDay accepts the analysis day in either the wire format or a
// plain date. An empty string means no day filter.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid day %q, want YYYY-MM-DD or YYYY-MM-DD HH", s)
}
