package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gaugeread/gaugeread/pkg/client"
	"github.com/gaugeread/gaugeread/pkg/picker"
	"github.com/gaugeread/gaugeread/pkg/reading"
)

const defaultAddr = "127.0.0.1:5000"

var (
	logLevel   = "info"
	configPath = "gaugeread.yaml"
	serverAddr = defaultAddr
)

var (
	gReading      = "Reading:"
	gServer       = "Server:"
	commandGroups = []string{
		gReading,
		gServer,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

// envOr lets GAUGEREAD_* variables, possibly from .env, replace flag defaults.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func handleCmdError(err error) {
	var ve *reading.ValidationError
	switch {
	case errors.As(err, &ve):
		fmt.Fprintln(os.Stderr, "\n"+ve.Kind.UserMessage())
	case errors.Is(err, picker.ErrCancelled):
		fmt.Fprintln(os.Stderr, "\nNo file was selected.")
	case errors.Is(err, client.ErrServerNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: reading server is not running")
		fmt.Fprintf(os.Stderr, "Start one with 'gaugeread serve', or point --server at one (currently %s).\n", serverAddr)
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Run 'gaugeread serve' with --socket-mode 0666 to let other users reach the socket")
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaugeread",
		Short: "gaugeread reads analog gauges from photos or simulates readings",
		Long: `gaugeread reads analog gauges.

Give it the labelled min and max of a dial and a photo, and it returns the
reading. Without a photo it simulates a reading inside the range. It also
runs the reading server that mobile clients upload photos to.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", envOr("GAUGEREAD_LOG_LEVEL", logLevel), "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", envOr("GAUGEREAD_CONFIG", configPath), "config file path (.json, .yaml or .yml)")
	globalFlags.StringVar(&serverAddr, "server", envOr("GAUGEREAD_SERVER", serverAddr), "reading server address: host:port, http(s) URL or unix:///path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewVersionCommand(),
		NewEstimateCommand(),
		NewReadCommand(),
		NewPickCommand(),
		NewServeCommand(),
		NewStatusCommand(),
		NewModeCommand(),
		NewWatchCommand(),
	)

	return cmd
}
