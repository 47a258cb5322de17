package telemetry

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reef-pi/adafruitio"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Prometheus bool             `yaml:"prometheus" json:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	AdafruitIO AdafruitIOConfig `yaml:"adafruitio" json:"adafruitio"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable" json:"enable"`
	Server   string `yaml:"server" json:"server"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Retained bool   `yaml:"retained" json:"retained"`
}

type AdafruitIOConfig struct {
	Enable bool   `yaml:"enable" json:"enable"`
	User   string `yaml:"user" json:"user"`
	Token  string `yaml:"token" json:"token"`
	Prefix string `yaml:"prefix" json:"prefix"`
}

// Telemetry fans metric values out to prometheus gauges (live) and to the
// push backends (MQTT, adafruit.io) on Report.
type Telemetry interface {
	EmitMetric(module, name string, v float64)
	Report(module, name string, v float64)
	Handler() http.Handler
	Registry() *prometheus.Registry
	Close()
}

// Publisher is the subset of a push backend we need. It is satisfied by the
// MQTT and adafruit.io adapters below and by test doubles.
type Publisher interface {
	Publish(module, name string, v float64) error
}

type telemetry struct {
	cfg        Config
	registry   *prometheus.Registry
	gauges     *prometheus.GaugeVec
	reports    *prometheus.CounterVec
	publishers []Publisher
	mqtt       mqtt.Client
	mu         sync.Mutex
	log        *logrus.Entry
}

var _ Telemetry = (*telemetry)(nil)

// New builds a Telemetry instance. MQTT connection failures are logged and the
// backend is skipped, telemetry is never fatal.
func New(cfg Config, publishers ...Publisher) Telemetry {
	t := &telemetry{
		cfg:        cfg,
		registry:   prometheus.NewRegistry(),
		publishers: publishers,
		log:        logrus.WithField("module", "telemetry"),
	}
	t.gauges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "reef",
			Subsystem: "ph",
			Name:      "metric",
			Help:      "Latest value emitted by a module",
		},
		[]string{"module", "name"},
	)
	t.reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reef",
			Subsystem: "ph",
			Name:      "reports_total",
			Help:      "Total number of values pushed to telemetry backends",
		},
		[]string{"backend", "status"},
	)
	t.registry.MustRegister(t.gauges, t.reports)

	if cfg.MQTT.Enable {
		client, err := newMQTTClient(cfg.MQTT)
		if err != nil {
			t.log.Errorf("mqtt disabled: %v", err)
		} else {
			t.mqtt = client
			t.publishers = append(t.publishers, &mqttPublisher{client: client, cfg: cfg.MQTT})
		}
	}
	if cfg.AdafruitIO.Enable {
		t.publishers = append(t.publishers, &adafruitPublisher{
			client: adafruitio.NewClient(cfg.AdafruitIO.Token),
			cfg:    cfg.AdafruitIO,
		})
	}
	return t
}

func (t *telemetry) EmitMetric(module, name string, v float64) {
	t.gauges.WithLabelValues(module, name).Set(v)
}

func (t *telemetry) Report(module, name string, v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.publishers {
		backend := fmt.Sprintf("%T", p)
		if err := p.Publish(module, name, v); err != nil {
			t.reports.WithLabelValues(backend, "error").Inc()
			t.log.WithFields(logrus.Fields{"metric": name, "source": module}).Warnf("report failed: %v", err)
			continue
		}
		t.reports.WithLabelValues(backend, "ok").Inc()
	}
}

func (t *telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *telemetry) Registry() *prometheus.Registry {
	return t.registry
}

func (t *telemetry) Close() {
	if t.mqtt != nil {
		t.mqtt.Disconnect(250)
	}
}

func newMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Server).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to %s", cfg.Server)
	}
	if err := tok.Error(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", cfg.Server)
	}
	return client, nil
}

type mqttPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
}

func (p *mqttPublisher) Publish(module, name string, v float64) error {
	topic := strings.Trim(strings.Join([]string{p.cfg.Prefix, module, name}, "/"), "/")
	tok := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, fmt.Sprintf("%g", v))
	if !tok.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out publishing %s", topic)
	}
	return tok.Error()
}

type adafruitPublisher struct {
	client *adafruitio.Client
	cfg    AdafruitIOConfig
}

func (p *adafruitPublisher) Publish(module, name string, v float64) error {
	feed := strings.ToLower(p.cfg.Prefix + module + "-" + name)
	return p.client.SubmitData(p.cfg.User, feed, adafruitio.Data{Value: v})
}
