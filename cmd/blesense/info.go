package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/pkg/monitor"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <device-address>",
		Short: "Print device information and battery level",
		Long: fmt.Sprintf(`Connects to a paired environmental sensor, reads the Device Information
and Battery services and disconnects.

Examples:
  blesense info %s
  blesense info %s --json`, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.ExactArgs(1),
		RunE: runInfo,
	}
	cmd.Flags().Bool("json", false, "Print device information as JSON")
	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	address := args[0]
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	platform, release, err := PlatformFactory(cfg.Platform, logger)
	if err != nil {
		return err
	}
	defer release()

	m := monitor.New(platform, cfg.Monitor, logger)
	defer m.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res := m.Connect(ctx, address)
	if res.Err != nil && !res.IsConnected {
		return res.Err
	}

	info := m.DeviceInfo(ctx)
	if err := m.Disconnect(ctx); err != nil {
		return err
	}

	newPrinter(cmd.OutOrStdout(), asJSON).Value(info, func(w io.Writer) {
		printDeviceInfo(w, info)
	})
	return nil
}

func printDeviceInfo(w io.Writer, info monitor.DeviceInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct{ label, value string }{
		{"Device", info.DeviceID},
		{"Name", info.Name},
		{"Manufacturer", info.Manufacturer},
		{"Model", info.ModelNumber},
		{"Serial", info.SerialNumber},
		{"Hardware", info.Hardware},
		{"Firmware", info.Firmware},
		{"Battery", fmt.Sprintf("%d%%", info.BatteryPercent)},
	}
	for _, r := range rows {
		value := r.value
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(tw, "%s:\t%s\n", r.label, value)
	}
	tw.Flush()
}
