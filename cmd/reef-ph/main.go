package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reefrhythm/reef-ph/controller/settings"
)

var (
	logLevel   = ""
	configPath = "/etc/reef-ph.yaml"
)

func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

// loadSettings reads the config file and applies the log level, the flag
// taking precedence over the file.
func loadSettings() (*settings.Settings, error) {
	s, err := settings.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := s.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := setupLogger(level); err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reef-ph",
		Short: "reef-ph samples aquarium pH, TDS and temperature probes",
		Long: `reef-ph samples aquarium pH, TDS and temperature probes, turns raw
pH readings into calibrated values and streams them over HTTP.`,
		SilenceUsage: true,
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")

	cmd.AddCommand(
		NewDaemonCommand(),
		NewCalibrateCommand(),
		NewCurveCommand(),
		NewConfigCommand(),
		NewVersionCommand(),
	)
	return cmd
}
