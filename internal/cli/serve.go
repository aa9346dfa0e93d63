package cli

import (
	"github.com/spf13/cobra"

	"github.com/vijayaragavanr18/Vervathon25/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Genavator API server",
	Long: `Start the HTTP API, health checks and the background reconciler.
Configuration is read from $GENAVATOR_HOME/config.toml.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	d, err := daemon.NewWithConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return d.Serve(cmd.Context())
}
