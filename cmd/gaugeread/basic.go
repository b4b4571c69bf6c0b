package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gaugeread/gaugeread/pkg/gauge"
	"github.com/gaugeread/gaugeread/pkg/picker"
	"github.com/gaugeread/gaugeread/pkg/reading"
	"github.com/gaugeread/gaugeread/pkg/version"
)

// estimator is replaced in tests.
var estimator = reading.Estimator{}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewEstimateCommand() *cobra.Command {
	var (
		minText, maxText string
		remote           bool
	)

	cmd := &cobra.Command{
		Use:     "estimate",
		Short:   "Simulate a reading inside a calibration range",
		GroupID: gReading,
		Long: `Simulate a reading inside a calibration range.

Min and max are read like a form field would read them: leading whitespace is
ignored and trailing text after the number is dropped, so "12psi" is 12.
The result is uniform in [min, max] and rounded to two decimals.`,
		Example: `  gaugeread estimate --min 0 --max 100
  gaugeread estimate --min 0 --max 10 --remote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if remote {
				resp, err := newAPIClient(cmd.Context()).Estimate(cmd.Context(), minText, maxText)
				if err != nil {
					return err
				}
				cmd.Println(resp.Reading.String())
				return nil
			}

			r, err := estimator.Estimate(minText, maxText)
			if err != nil {
				return err
			}
			cmd.Println(r.String())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&minText, "min", "", "labelled minimum of the dial")
	f.StringVar(&maxText, "max", "", "labelled maximum of the dial")
	f.BoolVar(&remote, "remote", false, "ask the reading server instead of simulating locally")

	return cmd
}

type readResult struct {
	Path    string          `json:"path"`
	Reading reading.Reading `json:"reading"`
	Error   string          `json:"error,omitempty"`
}

func NewReadCommand() *cobra.Command {
	var (
		minText, maxText string
		remote, asJSON   bool
		concurrency      int
		scaleStart       float64
		scaleEnd         float64
	)

	cmd := &cobra.Command{
		Use:     "read <image>...",
		Short:   "Read gauges from photos",
		GroupID: gReading,
		Long: `Read gauges from photos.

Each photo is analysed locally, or uploaded to the reading server with
--remote. Photos are processed in parallel; a failed photo does not stop the
others.`,
		Example: `  gaugeread read --min 0 --max 160 boiler.jpg
  gaugeread read --min 0 --max 10 --remote *.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := reading.ParseRange(minText, maxText)
			if err != nil {
				return err
			}

			var readOne func(path string) (reading.Reading, error)
			if remote {
				c := newAPIClient(cmd.Context())
				readOne = func(path string) (reading.Reading, error) {
					return c.UploadFile(cmd.Context(), path, minText, maxText)
				}
			} else {
				a := gauge.NewAnalyzer()
				a.ScaleStartDeg, a.ScaleEndDeg = scaleStart, scaleEnd
				readOne = func(path string) (reading.Reading, error) {
					res, err := a.ReadFile(path, rng)
					if err != nil {
						return 0, err
					}
					logrus.WithFields(logrus.Fields{
						"path":       path,
						"angle":      res.Detection.AngleDeg,
						"confidence": res.Detection.Confidence,
					}).Debug("needle detected")
					return res.Reading, nil
				}
			}

			results := make([]readResult, len(args))
			var failed int
			var mu sync.Mutex

			g, _ := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(concurrency, 1))
			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					results[i].Path = path
					r, err := readOne(path)
					if err != nil {
						results[i].Error = err.Error()
						mu.Lock()
						failed++
						mu.Unlock()
						return nil
					}
					results[i].Reading = r
					return nil
				})
			}
			_ = g.Wait()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					name := filepath.Base(r.Path)
					if r.Error != "" {
						cmd.Printf("%s: %s\n", name, color.RedString(r.Error))
						continue
					}
					cmd.Printf("%s: %s\n", name, bold("%s", r.Reading))
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d photos could not be read", failed, len(args))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&minText, "min", "", "labelled minimum of the dial")
	f.StringVar(&maxText, "max", "", "labelled maximum of the dial")
	f.BoolVar(&remote, "remote", false, "upload to the reading server instead of analysing locally")
	f.BoolVar(&asJSON, "json", false, "print results as JSON")
	f.IntVarP(&concurrency, "concurrency", "j", 4, "photos processed at once")
	f.Float64Var(&scaleStart, "scale-start", 45, "angle of the min mark, degrees clockwise from 6 o'clock")
	f.Float64Var(&scaleEnd, "scale-end", 315, "angle of the max mark, degrees clockwise from 6 o'clock")

	return cmd
}

func NewPickCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "pick [file]",
		Short:   "Show what would be uploaded for a file",
		GroupID: gReading,
		Long: `Show the name, type and size of a file, and whether it can be previewed
as a gauge photo.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			info, err := picker.Inspect(path)
			if err != nil {
				return err
			}

			cmd.Printf("Name: %s\n", bold("%s", info.Name))
			cmd.Printf("Type: %s\n", info.MIME)
			cmd.Printf("Size: %d bytes\n", info.Size)
			cmd.Printf("Image preview: %s\n", bool2Text(info.IsImage))
			if info.IsImage {
				cmd.Printf("Dimensions: %dx%d\n", info.Width, info.Height)
			}
			return nil
		},
	}
}
