package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blesense",
		Short: "Wearable environmental sensor client",
		Long: `Connects to a paired Bluetooth Low Energy environmental sensor and
streams its temperature, humidity and (optionally) heart rate readings.

- monitor: stream readings until interrupted
- info:    print device information and battery level`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),

		// main() prints clean errors
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Duration("timeout", 0, "Bound for every BLE round trip (overrides monitor.step_timeout)")

	// Add -v as a short flag for --version
	root.Flags().BoolP("version", "v", false, "Show version information")

	root.AddCommand(newMonitorCmd())
	root.AddCommand(newInfoCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
