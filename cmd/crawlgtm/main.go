// Command crawlgtm discovers tag-manager containers from public
// sources, analyzes their payloads, cross-references them against
// reverse-lookup indexes, and optionally repeats on a schedule as a
// background daemon.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ofjaaah-tools/crawlGTM/recon"
	"github.com/ofjaaah-tools/crawlGTM/sched"
)

// Exit codes: 0 success, 1 runtime failure, 2 configuration error.
const (
	exitRuntime = 1
	exitConfig  = 2
)

var (
	outputDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "crawlgtm",
	Short:         "Container discovery and reverse-lookup pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", ".", "output directory for results and history")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(clearHistoryCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(bwLoginCmd)
	rootCmd.AddCommand(fofaSetupCmd)
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, recon.ErrInvalidConfig) || errors.Is(err, sched.ErrInvalidConfig) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
}
