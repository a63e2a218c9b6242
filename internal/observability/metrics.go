package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queuePending   *prometheus.GaugeVec
	enqueueTotal   *prometheus.CounterVec
	batchesTotal   *prometheus.CounterVec
	retiredTotal   *prometheus.CounterVec
	cmdDuration    *prometheus.HistogramVec
	flushErrors    *prometheus.CounterVec
	callbacksFired *prometheus.CounterVec
	commandsLive   prometheus.Gauge
	userSignals    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queuePending: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "clevent_queue_pending",
					Help: "Commands enqueued but not yet flushed, by queue.",
				},
				[]string{"queue"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clevent_commands_enqueued_total",
					Help: "Total commands enqueued by queue.",
				},
				[]string{"queue"},
			),
			batchesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clevent_batches_flushed_total",
					Help: "Total non-empty batches handed to a queue worker.",
				},
				[]string{"queue"},
			),
			retiredTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clevent_commands_retired_total",
					Help: "Total commands reaching a terminal status, by queue and result.",
				},
				[]string{"queue", "result"},
			),
			cmdDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "clevent_command_duration_seconds",
					Help:    "Work item execution duration in seconds by queue.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"queue"},
			),
			flushErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clevent_flush_errors_total",
					Help: "Flushes rejected because the queue worker is gone.",
				},
				[]string{"queue"},
			),
			callbacksFired: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clevent_callbacks_fired_total",
					Help: "Command callbacks invoked, by registered threshold.",
				},
				[]string{"threshold"},
			),
			commandsLive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "clevent_commands_live",
					Help: "Commands created and not yet torn down.",
				},
			),
			userSignals: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clevent_user_signals_total",
					Help: "User command signal attempts by outcome.",
				},
				[]string{"outcome"},
			),
		}

		prometheus.MustRegister(
			m.queuePending,
			m.enqueueTotal,
			m.batchesTotal,
			m.retiredTotal,
			m.cmdDuration,
			m.flushErrors,
			m.callbacksFired,
			m.commandsLive,
			m.userSignals,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordEnqueue(queue string, pending int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(queue).Inc()
	m.queuePending.WithLabelValues(queue).Set(float64(pending))
}

func RecordFlush(queue string, batchSize int) {
	m := getMetrics()
	m.queuePending.WithLabelValues(queue).Set(0)
	if batchSize > 0 {
		m.batchesTotal.WithLabelValues(queue).Inc()
	}
}

func RecordFlushError(queue string) {
	getMetrics().flushErrors.WithLabelValues(queue).Inc()
}

func RecordRetired(queue string, success bool) {
	result := "error"
	if success {
		result = "complete"
	}
	getMetrics().retiredTotal.WithLabelValues(queue, result).Inc()
}

func RecordExecution(queue string, duration time.Duration) {
	getMetrics().cmdDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

func RecordCallback(threshold string) {
	getMetrics().callbacksFired.WithLabelValues(threshold).Inc()
}

func IncLiveCommands() {
	getMetrics().commandsLive.Inc()
}

func DecLiveCommands() {
	getMetrics().commandsLive.Dec()
}

func RecordUserSignal(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	getMetrics().userSignals.WithLabelValues(outcome).Inc()
}
