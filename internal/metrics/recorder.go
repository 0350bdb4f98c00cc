// Package metrics exposes Watchboard's Prometheus collectors.
//
// A single [Recorder] implements the observer interfaces of the api, loop
// and push packages, so one value can be handed to each of them.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/watchboard/internal/api"
	"github.com/jpalmerr/watchboard/internal/dispatcher"
)

const namespace = "watchboard"

// Recorder records request, dispatch, push and store activity.
//
// All methods are safe on a nil *Recorder, which records nothing.
type Recorder struct {
	reg *prom.Registry

	requestDuration  *prom.HistogramVec
	requestResults   *prom.CounterVec
	dispatchDuration *prom.HistogramVec
	dispatchErrors   *prom.CounterVec
	pushMessages     *prom.CounterVec
	pushConnected    prom.Gauge
	pushReconnects   prom.Counter
	storeChanges     *prom.CounterVec
}

// NewRecorder creates a [Recorder] with its own registry. Go runtime and
// process collectors are registered alongside.
func NewRecorder() *Recorder {
	reg := prom.NewRegistry()
	r := &Recorder{reg: reg}

	r.requestDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Duration of requests to the monitoring service",
		Buckets:   prom.DefBuckets,
	}, []string{"op"})
	r.requestResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "request_results_total",
		Help:      "Requests to the monitoring service by outcome",
	}, []string{"op", "result"})
	r.dispatchDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent dispatching an intent to the stores",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
	}, []string{"kind"})
	r.dispatchErrors = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_errors_total",
		Help:      "Dispatches that returned a handler error",
	}, []string{"kind"})
	r.pushMessages = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "push_messages_total",
		Help:      "Push messages received by type and outcome",
	}, []string{"type", "outcome"})
	r.pushConnected = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "push_connected",
		Help:      "1 while the push source is connected",
	})
	r.pushReconnects = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "push_reconnects_total",
		Help:      "Times the push source was dialed again after a failure",
	})
	r.storeChanges = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "store_changes_total",
		Help:      "Change notifications emitted by each store",
	}, []string{"store"})

	reg.MustRegister(
		r.requestDuration, r.requestResults,
		r.dispatchDuration, r.dispatchErrors,
		r.pushMessages, r.pushConnected, r.pushReconnects,
		r.storeChanges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the collectors are registered with.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRequest implements api.Observer.
func (r *Recorder) ObserveRequest(op string, latency time.Duration, err error) {
	if r == nil {
		return
	}
	r.requestDuration.WithLabelValues(op).Observe(latency.Seconds())
	r.requestResults.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveDispatch implements loop.Observer.
func (r *Recorder) ObserveDispatch(kind dispatcher.Kind, took time.Duration, err error) {
	if r == nil {
		return
	}
	r.dispatchDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
	if err != nil {
		r.dispatchErrors.WithLabelValues(string(kind)).Inc()
	}
}

// ObservePush implements push.Observer.
func (r *Recorder) ObservePush(msgType, outcome string) {
	if r == nil {
		return
	}
	r.pushMessages.WithLabelValues(msgType, outcome).Inc()
}

// SetPushConnected records whether the push source is connected.
func (r *Recorder) SetPushConnected(connected bool) {
	if r == nil {
		return
	}
	if connected {
		r.pushConnected.Set(1)
	} else {
		r.pushConnected.Set(0)
	}
}

// IncPushReconnect counts a redial of the push source.
func (r *Recorder) IncPushReconnect() {
	if r == nil {
		return
	}
	r.pushReconnects.Inc()
}

// StoreChanged counts a change notification from store.
func (r *Recorder) StoreChanged(store string) {
	if r == nil {
		return
	}
	r.storeChanges.WithLabelValues(store).Inc()
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
// fn must be safe for concurrent use.
func (r *Recorder) GaugeFunc(name, help string, fn func() float64) {
	if r == nil {
		return
	}
	r.reg.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case api.IsConflict(err):
		return "conflict"
	case api.IsValidation(err):
		return "validation"
	case api.IsNetwork(err):
		return "network"
	default:
		return "error"
	}
}
