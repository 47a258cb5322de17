package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/gorilla/mux"
	"github.com/reef-pi/rpi/i2c"
	"github.com/sirupsen/logrus"

	"github.com/reefrhythm/reef-ph/controller"
	"github.com/reefrhythm/reef-ph/controller/health"
	"github.com/reefrhythm/reef-ph/controller/modules/ph"
	"github.com/reefrhythm/reef-ph/controller/sensor"
	"github.com/reefrhythm/reef-ph/controller/settings"
	"github.com/reefrhythm/reef-ph/controller/storage"
	"github.com/reefrhythm/reef-ph/controller/telemetry"
)

// Daemon wires the store, telemetry, sensor source and subsystems together
// and serves the HTTP API.
type Daemon struct {
	settings *settings.Settings
	store    storage.Store
	t        telemetry.Telemetry
	ph       *ph.Controller
	subs     map[string]controller.Subsystem
	health   *health.Checker
	closers  []io.Closer
	log      *logrus.Entry
}

// New opens the store and builds every subsystem. With a nil src the source
// is built from the sensor settings.
func New(s *settings.Settings, src sensor.Source) (*Daemon, error) {
	d := &Daemon{
		settings: s,
		log:      logrus.WithField("module", "daemon"),
	}
	store, err := storage.New(s.Database)
	if err != nil {
		return nil, err
	}
	d.store = store
	d.closers = append(d.closers, store)

	if src == nil {
		var closer io.Closer
		src, closer, err = BuildSource(s.Sensor)
		if err != nil {
			d.Close()
			return nil, err
		}
		if closer != nil {
			d.closers = append(d.closers, closer)
		}
	}

	d.t = telemetry.New(s.Telemetry)
	c := controller.New(store, d.t)
	d.ph, err = ph.New(s.PH, src, c)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.subs = map[string]controller.Subsystem{"ph": d.ph}
	for name, sub := range d.subs {
		if err := sub.Setup(); err != nil {
			d.Close()
			return nil, fmt.Errorf("%s setup: %w", name, err)
		}
	}
	if s.Health.Enable {
		d.health = health.NewChecker(s.Health.Interval, d.t.Registry())
	}
	return d, nil
}

// BuildSource returns the sensor source selected by cfg and, when the source
// holds a device open, the closer releasing it.
func BuildSource(cfg settings.SensorConfig) (sensor.Source, io.Closer, error) {
	switch cfg.Driver {
	case settings.DriverMock, "":
		return sensor.NewDevMock(), nil, nil
	case settings.DriverSerial:
		s := sensor.NewSerial(cfg.Port, cfg.Baud, cfg.MaxAge)
		return s, s, nil
	case settings.DriverADS1115:
		bus, err := i2c.New()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open i2c bus: %w", err)
		}
		ads := sensor.NewADS1115(bus, byte(cfg.Address), cfg.Inputs)
		r := sensor.Router{}
		for ch := range cfg.Inputs {
			r[ch] = ads
		}
		if cfg.OneWire.Enable {
			r[sensor.ChannelTemperature] = sensor.NewDS18B20(cfg.OneWire.Root, cfg.OneWire.ID)
		}
		return r, bus, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor driver %q", cfg.Driver)
	}
}

// PH returns the pH subsystem.
func (d *Daemon) PH() *ph.Controller { return d.ph }

// Router builds the HTTP routes of every subsystem.
func (d *Daemon) Router() *mux.Router {
	r := mux.NewRouter()
	for _, sub := range d.subs {
		sub.LoadAPI(r)
	}
	if d.settings.Telemetry.Prometheus {
		r.Handle("/metrics", d.t.Handler()).Methods("GET")
	}
	if d.health != nil {
		r.Handle("/api/health", d.health).Methods("GET")
	}
	return r
}

// Run starts the subsystems and serves HTTP until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, sub := range d.subs {
		sub.Start()
		defer sub.Stop()
	}
	if d.health != nil {
		go d.health.Run(ctx)
	}

	srv := &http.Server{
		Addr:              d.settings.Address,
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// streams end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		d.log.Infof("listening on %s", d.settings.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if ok, err := systemd.SdNotify(false, systemd.SdNotifyReady); err != nil {
		d.log.Warnf("failed to notify systemd: %v", err)
	} else if ok {
		d.log.Debug("notified systemd")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	systemd.SdNotify(false, systemd.SdNotifyStopping)
	d.log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

// Close releases telemetry, devices and the store.
func (d *Daemon) Close() error {
	if d.t != nil {
		d.t.Close()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
