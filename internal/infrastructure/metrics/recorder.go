// Package metrics exposes lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "offer_lifecycle"

// Recorder implements port.MetricsRecorder. Labels are limited to triggers,
// states and error codes; offer ids never become labels.
type Recorder struct {
	transitions       *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	events            *prometheus.CounterVec
	requestSyncFailed prometheus.Counter
	sweepRuns         prometheus.Counter
	sweepOutcomes     *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
}

// NewRecorder registers the lifecycle collectors on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Successful offer status writes by trigger and states",
		}, []string{"trigger", "from", "to"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_rejections_total",
			Help:      "Transition requests refused by the guard or the store, by error code",
		}, []string{"trigger", "code"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events delivered through the dispatcher",
		}, []string{"type"}),
		requestSyncFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_sync_failures_total",
			Help:      "Failed attempts to mark the originating offer request ready",
		}),
		sweepRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Completed expiry sweep runs",
		}),
		sweepOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_offers_total",
			Help:      "Offers handled by the expiry sweep, by outcome",
		}, []string{"outcome"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of an expiry sweep run",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (r *Recorder) RecordTransition(trigger, from, to string) {
	r.transitions.WithLabelValues(trigger, from, to).Inc()
}

func (r *Recorder) RecordRejection(trigger, code string) {
	if trigger == "" {
		trigger = "unknown"
	}
	r.rejections.WithLabelValues(trigger, code).Inc()
}

func (r *Recorder) RecordRequestSyncFailure() {
	r.requestSyncFailed.Inc()
}

func (r *Recorder) RecordSweep(expired, skipped, failed int, duration time.Duration) {
	r.sweepRuns.Inc()
	r.sweepOutcomes.WithLabelValues("expired").Add(float64(expired))
	r.sweepOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	r.sweepOutcomes.WithLabelValues("failed").Add(float64(failed))
	r.sweepDuration.Observe(duration.Seconds())
}

// Register counts every dispatched event by type
func (r *Recorder) Register(d dispatcher.Dispatcher) {
	d.Subscribe(dispatcher.AnyType, "metrics", func(_ context.Context, evt *event.Event) error {
		r.events.WithLabelValues(evt.Type.String()).Inc()
		return nil
	})
}

var _ port.MetricsRecorder = (*Recorder)(nil)
