package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/reefrhythm/reef-ph/controller"
	"github.com/reefrhythm/reef-ph/controller/modules/ph"
	"github.com/reefrhythm/reef-ph/controller/sensor"
	"github.com/reefrhythm/reef-ph/controller/settings"
	"github.com/reefrhythm/reef-ph/controller/storage"
)

// openPH opens the database without any hardware attached. It fails while a
// daemon holds the database.
func openPH(s *settings.Settings) (*ph.Controller, func() error, error) {
	store, err := storage.New(s.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (is the daemon running? use the HTTP API instead)", err)
	}
	m, err := ph.New(s.PH, sensor.NewMock(nil), controller.New(store, nil))
	if err == nil {
		err = m.Setup()
	}
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return m, store.Close, nil
}

// readPoints parses a calibration file: a mapping of ids to {adc, ph}, as
// YAML or JSON.
func readPoints(r io.Reader) (map[string]ph.CalibrationPoint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var points map[string]ph.CalibrationPoint
	if err := yaml.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("failed to parse calibration points: %w", err)
	}
	return points, nil
}

func printPoints(w io.Writer, points map[string]ph.CalibrationPoint) {
	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return points[ids[i]].Physical < points[ids[j]].Physical })
	fmt.Fprintln(w, bold("%-38s %10s %8s", "ID", "ADC", "PH"))
	for _, id := range ids {
		fmt.Fprintf(w, "%-38s %10.4f %8.2f\n", id, points[id].Raw, points[id].Physical)
	}
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibrate [FILE]",
		Aliases: []string{"calibration"},
		Short:   "Show or replace the stored calibration points",
		Long: `Without FILE, print the stored calibration points. With FILE ("-" for
stdin), replace them. The file maps ids to points:

  buffer-7: {adc: 1.552, ph: 7.0}
  buffer-4: {adc: 2.031, ph: 4.0}

The daemon must be stopped; while it runs use POST /api/ph/calibration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			m, closeStore, err := openPH(s)
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				printPoints(out, m.Points())
				return nil
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			points, err := readPoints(in)
			if err != nil {
				return err
			}
			if err := m.Upload(points); err != nil {
				return fmt.Errorf("calibration rejected: %w", err)
			}
			fmt.Fprintln(out, color.GreenString("Calibration saved."))
			printPoints(out, m.Points())
			return nil
		},
	}
	return cmd
}
