package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gaugeread/gaugeread/pkg/config"
	"github.com/gaugeread/gaugeread/pkg/events"
	"github.com/gaugeread/gaugeread/pkg/server"
	"github.com/gaugeread/gaugeread/pkg/version"
)

func NewServeCommand() *cobra.Command {
	var (
		listen     string
		socketMode string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the reading server in the foreground",
		GroupID: gServer,
		Long: `Run the reading server in the foreground.

POST /upload takes a multipart "file" with "min_value" and "max_value" and
answers {"reading": n}. How the reading is produced depends on the "mode" key
of the config file: local analysis, simulation, or proxying to another
inference server. Send SIGHUP to reload the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := strconv.ParseUint(socketMode, 8, 32)
			if err != nil {
				return fmt.Errorf("invalid socket mode %q: %v", socketMode, err)
			}

			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("gaugeread server starting")

			return server.Run(cmd.Context(), server.Options{
				ConfigPath:  configPath,
				Listen:      listen,
				SocketMode:  fs.FileMode(mode),
				WatchConfig: watch,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", envOr("GAUGEREAD_LISTEN", defaultAddr), "address to listen on: host:port or unix:///path")
	f.StringVar(&socketMode, "socket-mode", "0", "octal permissions for a unix socket, 0 keeps the default")
	f.BoolVar(&watch, "watch", true, "reload the config file when it changes")

	return cmd
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gServer,
		Short:   "Get the status of the reading server",
		Long:    `Get the reading server's mode, configuration and most recent readings.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newAPIClient(cmd.Context())

			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			raw, err := c.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			records, err := c.GetRecentReadings(cmd.Context())
			if err != nil {
				return err
			}

			conf := config.NewFileFromConfig(raw, "")

			cmd.Println(bold("Server:"))
			cmd.Printf("  Address: %s\n", c.Addr())
			cmd.Printf("  Healthy: %s\n", bool2Text(health.Status == "ok"))
			cmd.Printf("  Mode: %s\n", bold("%s", conf.Mode()))
			if conf.Mode() == config.ModeProxy {
				cmd.Printf("  Inference server: %s\n", conf.InferenceURL())
			}
			cmd.Printf("  Event subscribers: %d\n", health.Subscribers)
			cmd.Println()

			cmd.Println(bold("Uploads:"))
			cmd.Printf("  Directory: %s\n", conf.UploadDir())
			cmd.Printf("  Size limit: %d bytes\n", conf.MaxUploadBytes())
			cmd.Printf("  Kept for: %s\n", conf.UploadRetention())
			if health.NextCleanup != "" {
				cmd.Printf("  Next cleanup: %s\n", health.NextCleanup)
			}
			cmd.Printf("  Dial scale: %g° to %g°\n", conf.ScaleStartDeg(), conf.ScaleEndDeg())
			cmd.Println()

			cmd.Println(bold("Recent readings:"))
			cmd.Printf("  In the last hour: %d\n", health.ReadingsLastHour)
			if len(records) == 0 {
				cmd.Println("  (none yet)")
			}
			for _, r := range records {
				cmd.Printf("  %s  %-9s %s in %s\n",
					r.Time.Local().Format(time.DateTime),
					r.Source,
					bold("%s", r.Value),
					color.New(color.Faint).Sprint(r.Range.String()),
				)
			}
			return nil
		},
	}
}

func NewModeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "mode <local|simulate|proxy>",
		Short:     "Set how the reading server answers uploads",
		GroupID:   gServer,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(config.ModeLocal), string(config.ModeSimulate), string(config.ModeProxy)},
		Long: `Set how the reading server answers uploads.

local     read the needle from the photo
simulate  ignore the photo and return a random reading inside the range
proxy     forward the upload to the configured inferenceURL`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := config.ParseMode(args[0])
			if !ok {
				return fmt.Errorf("unknown mode %q", args[0])
			}

			ret, err := newAPIClient(cmd.Context()).SetMode(cmd.Context(), m)
			if err != nil {
				return fmt.Errorf("failed to set mode: %w", err)
			}
			if ret != "" {
				logrus.Infof("server responded: %s", ret)
			}
			return nil
		},
	}
}

func NewWatchCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gServer,
		Short:   "Print readings from the reading server as they happen",
		Long: `Print readings from the reading server as they happen.

Both produced readings and rejected uploads are shown. The stream reconnects
when the server restarts; press Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			seen := 0
			for ev := range newAPIClient(ctx).SubscribeEvents(ctx) {
				line, err := formatEvent(ev)
				if err != nil {
					logrus.WithError(err).WithField("event", ev.Name).Warn("skipping malformed event")
					continue
				}
				if line == "" {
					continue
				}
				cmd.Println(line)

				seen++
				if count > 0 && seen >= count {
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many events, 0 streams until interrupted")

	return cmd
}

// formatEvent renders one server event as a status line. Unknown events give
// an empty line.
func formatEvent(ev events.Event) (string, error) {
	switch ev.Name {
	case events.ReadingProduced:
		p, err := events.DecodeAs[events.ReadingProducedEvent](ev)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s  %-9s %s in %s",
			time.Unix(p.Ts, 0).Local().Format(time.DateTime),
			p.Source,
			bold("%.2f", p.Reading),
			color.New(color.Faint).Sprintf("[%g, %g]", p.Min, p.Max),
		), nil
	case events.ReadingRejected:
		p, err := events.DecodeAs[events.ReadingRejectedEvent](ev)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s  %-9s %s %s (%s)",
			time.Unix(p.Ts, 0).Local().Format(time.DateTime),
			p.Source,
			color.New(color.Bold, color.FgRed).Sprint("rejected"),
			p.Message,
			p.Kind,
		), nil
	}
	return "", nil
}
