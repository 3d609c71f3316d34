package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/expjudge/expjudge/internal/server"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP results server",
	Long: `Start the expjudge HTTP server.

The server provides:
  - GET /experiment/{id}/result?day=YYYY-MM-DD HH
  - GET /health

Example:
  expjudge serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 0
	if p := os.Getenv("XPJ_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := buildSource(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	srv := server.New(src, buildPipeline(cfg), checkParams(cfg), cfg.Server.Port, cfg.Pipeline.SameDay, log)
	return srv.Start()
}
