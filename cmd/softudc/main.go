// Command softudc prepares loader images and drives the bootloader gadgets
// against a simulated S5PV210 USB device controller.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ardnew/softudc/dwc2/sim"
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/pkg/prof"
	"github.com/ardnew/softudc/udc/hal"
)

type options struct {
	logLevel   string
	logJSON    bool
	speed      string
	ramBase    string
	ramSize    string
	cpuProfile string
	memProfile string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "softudc",
		Short: "USB bootloader gadgets on a simulated DWC2 controller",
		Long: `softudc builds loader frames from raw binaries or Intel HEX files and runs
the Nanoboot loader and diagnostic gadgets against a simulated board, acting
as the USB host.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.apply(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return prof.Finish(opts.memProfile)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "warn", "minimum log level (debug, info, warn, error)")
	flags.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")
	flags.StringVar(&opts.speed, "speed", "high", "simulated bus speed (high or full)")
	flags.StringVar(&opts.ramBase, "ram-base", "0x20000000", "simulated RAM base address")
	flags.StringVar(&opts.ramSize, "ram-size", "16777216", "simulated RAM size in bytes")
	if prof.Enabled {
		flags.StringVar(&opts.cpuProfile, "cpuprofile", "", "write a CPU profile to file")
		flags.StringVar(&opts.memProfile, "memprofile", "", "write a heap profile to file on exit")
	}

	rootCmd.AddCommand(newFrameCmd(), newSimCmd(opts))
	return rootCmd
}

// apply configures logging to w and starts profiling.
func (o *options) apply(w io.Writer) error {
	level, err := pkg.ParseLogLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	pkg.SetLogLevel(level)
	pkg.SetLogOutput(w)
	if o.logJSON {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	} else {
		pkg.SetLogFormat(pkg.LogFormatText)
	}
	if o.cpuProfile != "" {
		return prof.StartCPU(o.cpuProfile)
	}
	return nil
}

func (o *options) busSpeed() (hal.Speed, error) {
	switch o.speed {
	case "high", "hs":
		return hal.SpeedHigh, nil
	case "full", "fs":
		return hal.SpeedFull, nil
	default:
		return hal.SpeedUnknown, fmt.Errorf("%w: speed %q", pkg.ErrInvalidArgument, o.speed)
	}
}

func (o *options) simConfig() (sim.Config, error) {
	cfg := sim.DefaultConfig()
	base, err := parseAddr(o.ramBase)
	if err != nil {
		return cfg, fmt.Errorf("--ram-base: %w", err)
	}
	size, err := parseAddr(o.ramSize)
	if err != nil {
		return cfg, fmt.Errorf("--ram-size: %w", err)
	}
	cfg.RAMBase, cfg.RAMSize = base, size
	return cfg, nil
}

// parseAddr accepts decimal, 0x hex and 0 octal.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", pkg.ErrInvalidArgument, s)
	}
	return uint32(v), nil
}

func main() {
	err := newRootCmd().Execute()
	prof.StopCPU()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
