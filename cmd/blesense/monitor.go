package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/pkg/events"
	"github.com/srg/blesense/pkg/monitor"
)

const exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor <device-address>",
		Short: "Stream temperature and humidity readings",
		Long: fmt.Sprintf(`Connects to a paired environmental sensor and prints every reading it
notifies until interrupted.

Examples:
  # Stream readings until Ctrl+C
  blesense monitor %s

  # Include heart rate, stop after a minute, emit JSON lines
  blesense monitor %s --heart-rate --duration 1m --json`, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.ExactArgs(1),
		RunE: runMonitor,
	}

	cmd.Flags().Bool("heart-rate", false, "Also subscribe to Heart Rate Measurement when available")
	cmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().Bool("json", false, "Print events as JSON lines")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	address := args[0]
	duration, _ := cmd.Flags().GetDuration("duration")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	platform, release, err := PlatformFactory(cfg.Platform, logger)
	if err != nil {
		return err
	}
	defer release()

	m := monitor.New(platform, cfg.Monitor, logger)
	defer m.Close()

	out := newPrinter(cmd.OutOrStdout(), asJSON)
	lost := make(chan struct{}, 1)
	m.Events().SubscribeAll(func(e events.Event) {
		out.Event(e)
		if st, ok := e.(events.ConnectionStatusChanged); ok && !st.IsConnected {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})

	out.Line("Connecting to %s...", address)
	res := m.Connect(ctx, address)
	if res.Err != nil && m.State() != monitor.StatePartial {
		return res.Err
	}
	if res.Err != nil {
		logger.WithError(res.Err).Warn("Sensor set up partially")
	}
	out.Line("Monitoring %s (%s)", res.Name, address)
	started := time.Now()

	var result error
	select {
	case <-ctx.Done():
	case <-lost:
		// the session stays allocated after a platform-side drop
		result = ErrConnectionLost
	}

	shutdown, cancel := context.WithTimeout(context.Background(), cfg.Monitor.StepTimeout)
	defer cancel()
	if err := m.Disconnect(shutdown); err != nil {
		return err
	}
	if result == nil {
		out.Line("Stopped after %s", time.Since(started).Round(time.Second))
	}
	return result
}
