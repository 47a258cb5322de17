package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/reefrhythm/reef-ph/controller/modules/ph"
)

func printCurve(w io.Writer, c *ph.Curve) {
	fmt.Fprintln(w, bold("%10s %8s", "ADC", "PH"))
	for _, p := range c.Points {
		fmt.Fprintf(w, "%10.4f %8.3f\n", p.Raw, p.Physical)
	}
}

func NewCurveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "curve [RAW...]",
		Short: "Print the calibration curve or map raw values through it",
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

			c := m.State().Curve()
			if c == nil {
				return ph.ErrCurveUnavailable
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				printCurve(out, c)
				return nil
			}
			for _, a := range args {
				raw, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("invalid raw value %q", a)
				}
				fmt.Fprintf(out, "%g\t%.4f\n", raw, c.Lookup(raw))
			}
			return nil
		},
	}
}
