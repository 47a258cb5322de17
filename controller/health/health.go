package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// Stats is one host health sample.
type Stats struct {
	Load1         float64 `json:"cpu_load_1"`
	Load5         float64 `json:"cpu_load_5"`
	Load15        float64 `json:"cpu_load_15"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryPercent float64 `json:"memory_used_percent"`
	Memory        string  `json:"memory"`
	Uptime        string  `json:"uptime"`
	Time          int64   `json:"time"`
}

// Checker samples host load and memory on an interval and exposes the latest
// sample as JSON and as prometheus gauges.
type Checker struct {
	interval time.Duration
	sample   func() (Stats, error)
	latest   atomic.Pointer[Stats]
	load     *prometheus.GaugeVec
	memory   prometheus.Gauge
	log      *logrus.Entry
}

func NewChecker(interval time.Duration, reg prometheus.Registerer) *Checker {
	c := &Checker{
		interval: interval,
		sample:   sample,
		load: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reef",
			Subsystem: "health",
			Name:      "cpu_load",
			Help:      "Host load average",
		}, []string{"period"}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reef",
			Subsystem: "health",
			Name:      "memory_used_percent",
			Help:      "Host memory usage",
		}),
		log: logrus.WithField("module", "health"),
	}
	if reg != nil {
		reg.MustRegister(c.load, c.memory)
	}
	return c
}

// Check takes one sample.
func (c *Checker) Check() error {
	s, err := c.sample()
	if err != nil {
		return err
	}
	c.latest.Store(&s)
	c.load.WithLabelValues("1m").Set(s.Load1)
	c.load.WithLabelValues("5m").Set(s.Load5)
	c.load.WithLabelValues("15m").Set(s.Load15)
	c.memory.Set(s.MemoryPercent)
	return nil
}

// Latest returns the last sample or nil.
func (c *Checker) Latest() *Stats { return c.latest.Load() }

// Run samples immediately and then every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Check(); err != nil {
			c.log.Warnf("health check: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := c.Latest()
	if s == nil {
		http.Error(w, "no health sample yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func sample() (Stats, error) {
	avg, err := load.Avg()
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "failed to read load average")
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "failed to read memory usage")
	}
	s := Stats{
		Load1:         avg.Load1,
		Load5:         avg.Load5,
		Load15:        avg.Load15,
		MemoryUsed:    vm.Used,
		MemoryTotal:   vm.Total,
		MemoryPercent: vm.UsedPercent,
		Memory:        humanize.Bytes(vm.Used) + " / " + humanize.Bytes(vm.Total),
		Time:          time.Now().Unix(),
	}
	if up, err := host.Uptime(); err == nil {
		now := time.Now()
		s.Uptime = strings.TrimSpace(humanize.RelTime(now.Add(-time.Duration(up)*time.Second), now, "", ""))
	}
	return s, nil
}
