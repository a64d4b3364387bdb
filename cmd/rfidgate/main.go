package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rfidgate/internal/app"
	"rfidgate/internal/tag"
)

type rootOptions struct {
	configFile string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "rfidgate",
		Short: "125 kHz proximity card reader and door controller",
		Long: `Proximity card reader for 125 kHz Manchester-coded tags.

Reads blocks of carrier period counts from the reader front end, locates the
start marker, demultiplexes and Manchester-decodes the 44-bit card code and
opens the door for card numbers on the allow list.

Example usage:
  rfidgate run --config /etc/rfidgate/rfidgate.yaml
  rfidgate encode --unique-id 12345 --site-code 42 card.bin
  rfidgate decode card.bin`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDecodeCmd(opts),
		newEncodeCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func loadConfig(opts *rootOptions) (app.Config, error) {
	config, err := app.LoadConfig(opts.configFile)
	if err != nil {
		return app.Config{}, err
	}
	if opts.verbose {
		config.Verbose = true
	}
	return config, nil
}

func newLogger(verbose bool, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		device      string
		replayFile  string
		allow       []uint
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reader until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(opts)
			if err != nil {
				return err
			}

			if device != "" {
				config.Capture.Mode = app.CaptureSerial
				config.Capture.Device = device
			}
			if replayFile != "" {
				config.Capture.Mode = app.CaptureReplay
				config.Capture.ReplayFile = replayFile
			}
			if cmd.Flags().Changed("allow") {
				config.Access.AllowList = allow
			}
			if metricsAddr != "" {
				config.Metrics.Enabled = true
				config.Metrics.Addr = metricsAddr
			}

			return app.NewApplication(config).Start()
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Front end serial device (overrides capture.device)")
	cmd.Flags().StringVarP(&replayFile, "replay", "r", "", "Replay a recorded capture instead of a device")
	cmd.Flags().UintSliceVarP(&allow, "allow", "a", nil, "Allowed unique ids (overrides access.allow_list)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func newDecodeCmd(opts *rootOptions) *cobra.Command {
	var allow []uint

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode every block in a recorded capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("allow") {
				config.Access.AllowList = allow
			}

			r, err := app.OpenReplay(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			logger := newLogger(config.Verbose, cmd.ErrOrStderr())
			out := cmd.OutOrStdout()
			stats, err := app.DecodeReplay(cmd.Context(), r, config, logger, out)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%d blocks: %d decoded, %d no card, %d incomplete, %d corrupt\n",
				stats.Cycles, stats.Decoded, stats.NoCard, stats.Incomplete, stats.Corrupt)
			return nil
		},
	}

	cmd.Flags().UintSliceVarP(&allow, "allow", "a", nil, "Allowed unique ids (overrides access.allow_list)")
	return cmd
}

func newEncodeCmd(opts *rootOptions) *cobra.Command {
	var (
		fields    tag.Fields
		count     int
		appendOut bool
	)

	cmd := &cobra.Command{
		Use:   "encode <file>",
		Short: "Write the capture block a card would produce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("count must be at least 1")
			}
			if err := config.Decoder.Validate(); err != nil {
				return fmt.Errorf("invalid decoder thresholds: %w", err)
			}

			block, err := app.EncodeBlock(fields, config.Decoder.Thresholds())
			if err != nil {
				return err
			}

			flags := os.O_CREATE | os.O_WRONLY
			if appendOut {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			file, err := os.OpenFile(args[0], flags, 0644)
			if err != nil {
				return fmt.Errorf("failed to open output file: %w", err)
			}

			for i := 0; i < count; i++ {
				if _, err := file.Write(block); err != nil {
					file.Close()
					return fmt.Errorf("failed to write block: %w", err)
				}
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("failed to close output file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d block(s) for unique id %d to %s\n", count, fields.UniqueID, args[0])
			return nil
		},
	}

	cmd.Flags().Uint16VarP(&fields.UniqueID, "unique-id", "u", 0, "Card number")
	cmd.Flags().Uint8VarP(&fields.SiteCode, "site-code", "s", 0, "Site (facility) code")
	cmd.Flags().Uint32VarP(&fields.ManufacturerID, "manufacturer-id", "m", 0, "20-bit manufacturer code")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of blocks to write")
	cmd.Flags().BoolVar(&appendOut, "append", false, "Append to the file instead of replacing it")
	_ = cmd.MarkFlagRequired("unique-id")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowVersion(cmd.OutOrStdout())
		},
	}
}
