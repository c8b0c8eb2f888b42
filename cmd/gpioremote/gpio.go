package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newGPIOCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "gpio <pin> <on|off>",
		Short: "Switch a device pin",
		Long:  "Opens a session, waits until the device is reachable, then publishes one ON or OFF command to <device>/gpio/<pin>/set. The command is recorded in the audit log.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, on, err := parseGPIOArgs(args)
			if err != nil {
				return err
			}
			return runGPIO(cmd, pin, on, wait)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "how long to wait for the device to become reachable")
	return cmd
}

// parseGPIOArgs validates "<pin> <on|off>".
func parseGPIOArgs(args []string) (int, bool, error) {
	pin, err := strconv.Atoi(args[0])
	if err != nil || pin < 0 {
		return 0, false, fmt.Errorf("invalid pin %q", args[0])
	}
	switch strings.ToLower(args[1]) {
	case "on", "1", "high":
		return pin, true, nil
	case "off", "0", "low":
		return pin, false, nil
	default:
		return 0, false, fmt.Errorf("invalid level %q: want on or off", args[1])
	}
}

func runGPIO(cmd *cobra.Command, pin int, on bool, wait time.Duration) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	client, err := openClient(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	waitCtx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()
	if st, err := client.WaitAllowed(waitCtx); err != nil {
		return fmt.Errorf("device not reachable (%s): %w", formatStatus(st), err)
	}

	ack, err := client.SetGPIO(cmd.Context(), pin, on)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s <- %s\n", ack.Topic, ack.Payload)
	return nil
}
