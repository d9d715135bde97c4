package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-assistant/internal/log"
	"github.com/teslashibe/go-assistant/pkg/bluetooth"
)

func newLink() (*bluetooth.Link, *bluetooth.Bluetoothctl) {
	ctl := bluetooth.NewBluetoothctl(nil, log.L())
	cfg := bluetooth.DefaultLinkConfig()
	cfg.Logger = log.L()
	return bluetooth.NewLink(ctl, bluetooth.NewPactl(nil, log.L()), cfg), ctl
}

func scanCmd(g *globals) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby Bluetooth devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			link, ctl := newLink()
			if err := link.Initialize(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Scanning for %s...\n", duration)
			found, err := ctl.Scan(cmd.Context(), duration)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Println("No devices found.")
				return nil
			}
			for _, d := range found {
				fmt.Printf("  %s  %s\n", d.Address, d.Name)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "Scan duration")
	return cmd
}

func setupCmd(g *globals) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Find, pair, connect and select the configured speaker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				_, s := g.loadSettings()
				name = s.Bluetooth.SpeakerName
			}
			link, _ := newLink()
			fmt.Printf("Setting up %q...\n", name)
			rec, err := link.SetupTargetSpeaker(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("setup %q: %w", name, err)
			}
			fmt.Printf("Connected to %s (%s)\n", rec.Name, rec.Address)

			fmt.Println("Known devices:")
			for _, r := range link.Records() {
				fmt.Printf("  %s  %-24s %-10s %s\n", r.Address, r.Name, r.Pairing, r.Connection)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Speaker name pattern (default from config)")
	return cmd
}
