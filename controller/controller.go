package controller

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reefrhythm/reef-ph/controller/storage"
	"github.com/reefrhythm/reef-ph/controller/telemetry"
)

// Controller is the handle every subsystem receives at construction time.
type Controller interface {
	Store() storage.Store
	Telemetry() telemetry.Telemetry
	LogError(module, msg string)
}

// Entity is something a subsystem owns and can describe (a probe, a channel).
type Entity interface {
	EName() string
}

// Subsystem is the lifecycle contract of a controller module.
type Subsystem interface {
	Setup() error
	LoadAPI(*mux.Router)
	Start()
	Stop()
	InUse(depType, id string) ([]string, error)
	On(id string, on bool) error
	GetEntity(id string) (Entity, error)
}

type base struct {
	store storage.Store
	t     telemetry.Telemetry
}

// New returns a Controller backed by the given store and telemetry.
func New(store storage.Store, t telemetry.Telemetry) Controller {
	return &base{store: store, t: t}
}

func (c *base) Store() storage.Store           { return c.store }
func (c *base) Telemetry() telemetry.Telemetry { return c.t }

func (c *base) LogError(module, msg string) {
	logrus.WithField("module", module).Error(msg)
}
