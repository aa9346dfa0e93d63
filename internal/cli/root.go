// Package cli implements the Genavator command-line interface using Cobra.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vijayaragavanr18/Vervathon25/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "genavator",
	Short: "Genavator — learning progression engine",
	Long: `Genavator turns learner activity into XP, levels, streaks and achievements.

Run 'genavator serve' for the HTTP API, or use the subcommands to record
activity and inspect progress against the configured store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	},
}

var (
	envFile    string
	jsonOutput bool

	// openDaemon is replaced in tests.
	openDaemon = func(ctx context.Context) (*daemon.Daemon, error) { return daemon.New(ctx) }
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
