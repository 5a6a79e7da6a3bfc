package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/saftbridge/saftbridge/internal/app"
)

var (
	profileFlag string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "saftbridge",
	Short: "SAF-T export bridge for the finance cloud",
	Long: `saftbridge pulls general ledger data out of the finance cloud,
consolidates opening and closing balances per GL account and business
partner, and renders the Bulgarian SAF-T monthly audit file.

Runs execute either synchronously (saftbridge export) or through the
run registry served by "saftbridge serve" and processed by the worker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "company profile path (defaults to PROFILE_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(exportCmd, serveCmd, profileCmd, jobsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *app.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return app.NewLoggerAt(cfg, level)
}

// resolveProfilePath gives the --profile flag precedence over the
// PROFILE_PATH environment setting.
func resolveProfilePath(cfg *app.Config) string {
	if profileFlag != "" {
		return profileFlag
	}
	if cfg != nil && cfg.ProfilePath != "" {
		return cfg.ProfilePath
	}
	return "profile.yaml"
}
