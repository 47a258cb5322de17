package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reefrhythm/reef-ph/controller/daemon"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sampling daemon and HTTP API in the foreground",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if address != "" {
				s.Address = address
			}
			logrus.WithFields(logrus.Fields{
				"version": Version,
				"commit":  GitCommit,
				"driver":  s.Sensor.Driver,
			}).Info("reef-ph daemon starting")

			d, err := daemon.New(s, nil)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "HTTP listen address, overrides the config file")
	return cmd
}
