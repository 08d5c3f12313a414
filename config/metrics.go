package config

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	patchesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csp",
			Subsystem: "realtime",
			Name:      "patches_sent_total",
			Help:      "Total ObjectPatch frames sent by the online engine",
		},
		[]string{"result"},
	)

	patchesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csp",
			Subsystem: "realtime",
			Name:      "patches_dropped_total",
			Help:      "Pending entity sends dropped for not being modifiable",
		},
		[]string{"reason"},
	)

	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csp",
			Subsystem: "realtime",
			Name:      "tick_duration_seconds",
			Help:      "ProcessPendingEntityOperations latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	scriptEvalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csp",
			Subsystem: "realtime",
			Name:      "script_eval_duration_seconds",
			Help:      "entityTick script evaluation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	registerOnce sync.Once
)

// RegisterMetrics registers the package's collectors with the default
// prometheus registry exactly once per process. Called from NewConfig when
// MetricsEnabled is set, mirroring the teacher's init()-time
// prometheus.MustRegister (engine/metrics.go) but deferred to configuration
// time so importing this module has no unconditional global side effect.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(patchesSentTotal, patchesDroppedTotal, tickDuration, scriptEvalDuration)
	})
}

func ObservePatchSent(ok bool) {
	if ok {
		patchesSentTotal.WithLabelValues("ok").Inc()
	} else {
		patchesSentTotal.WithLabelValues("error").Inc()
	}
}

func ObservePatchDropped(reason string) {
	patchesDroppedTotal.WithLabelValues(reason).Inc()
}

func TickTimer(engine string) *prometheus.Timer {
	return prometheus.NewTimer(tickDuration.WithLabelValues(engine))
}

func ScriptEvalTimer(component string) *prometheus.Timer {
	return prometheus.NewTimer(scriptEvalDuration.WithLabelValues(component))
}
