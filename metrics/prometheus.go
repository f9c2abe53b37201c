// Package metrics exports messaging metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/messaging"
)

const namespace = "unitbus"

// PrometheusCollector implements messaging.MetricsCollector on a private registry
type PrometheusCollector struct {
	registry *prometheus.Registry

	MessagesEmitted    *prometheus.CounterVec
	MessagesDispatched *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	HandlerFailures    *prometheus.CounterVec
	CommandOutcomes    *prometheus.CounterVec
	CommandRoundTrip   *prometheus.HistogramVec
	PendingCommands    prometheus.Gauge
	MessagesDropped    *prometheus.CounterVec

	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

var _ messaging.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates a collector with its own registry. Go runtime and
// process collectors are registered too.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newCollector(reg)
}

func newCollector(reg *prometheus.Registry) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		MessagesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_emitted_total",
				Help:      "Messages emitted, by message name and channel type",
			},
			[]string{"message", "channel"},
		),
		MessagesDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dispatched_total",
				Help:      "Messages dispatched to local handlers",
			},
			[]string{"message", "handled"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent running the handlers of a message",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"message"},
		),
		HandlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_failures_total",
				Help:      "Handlers that returned an error or panicked",
			},
			[]string{"message", "filter"},
		),
		CommandOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_outcomes_total",
				Help:      "Terminal outcomes of tracked commands, by fail type",
			},
			[]string{"message", "fail_type"},
		),
		CommandRoundTrip: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_round_trip_seconds",
				Help:      "Time from emitting a command to its terminal outcome",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"message"},
		),
		PendingCommands: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_commands",
				Help:      "Commands waiting for a reply",
			},
		),
		MessagesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dropped_total",
				Help:      "Messages discarded, by reason",
			},
			[]string{"reason"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Successful configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Failed configuration reloads",
			},
		),
	}
}

// Registry returns the registry the metrics are registered with
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *PrometheusCollector) RecordEmit(messageName string, channel contracts.ChannelKind) {
	c.MessagesEmitted.WithLabelValues(messageName, string(channel)).Inc()
}

func (c *PrometheusCollector) RecordDispatch(messageName string, duration time.Duration, handled bool) {
	handledLabel := "false"
	if handled {
		handledLabel = "true"
	}
	c.MessagesDispatched.WithLabelValues(messageName, handledLabel).Inc()
	c.DispatchDuration.WithLabelValues(messageName).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordHandlerFailure(messageName string, filter string) {
	c.HandlerFailures.WithLabelValues(messageName, filter).Inc()
}

func (c *PrometheusCollector) RecordCommandOutcome(messageName string, failType contracts.CommandFailType, duration time.Duration) {
	c.CommandOutcomes.WithLabelValues(messageName, failType.String()).Inc()
	c.CommandRoundTrip.WithLabelValues(messageName).Observe(duration.Seconds())
}

func (c *PrometheusCollector) SetPendingCommands(count int) {
	c.PendingCommands.Set(float64(count))
}

func (c *PrometheusCollector) RecordDropped(reason string) {
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordConfigReload counts a configuration reload attempt
func (c *PrometheusCollector) RecordConfigReload(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
}
