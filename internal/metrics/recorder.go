package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recompute modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Recorder owns the recompute telemetry on a private registry. All methods are
// safe on a nil Recorder.
type Recorder struct {
	registry    *prometheus.Registry
	recomputes  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	triggers    *prometheus.CounterVec
	rows        *prometheus.GaugeVec
	gates       *prometheus.CounterVec
	unknown     prometheus.Counter
	lastSuccess *prometheus.GaugeVec
}

// NewRecorder registers the sales portal collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesportal",
			Name:      "recomputes_total",
			Help:      "Recompute passes by mode and result.",
		}, []string{"mode", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salesportal",
			Name:      "recompute_duration_seconds",
			Help:      "Wall time of recompute passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesportal",
			Name:      "recompute_triggers_total",
			Help:      "Recompute requests by trigger source.",
		}, []string{"trigger"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "salesportal",
			Name:      "score_rows",
			Help:      "Score rows written by the last full pass, per campaign and scope.",
		}, []string{"campaign", "scope"}),
		gates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesportal",
			Name:      "unit_gate_decisions_total",
			Help:      "Business unit gate evaluations by parameter and outcome.",
		}, []string{"parameter", "outcome"}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salesportal",
			Name:      "unknown_activity_types_total",
			Help:      "Activity type names seen during recompute with no rule kind.",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "salesportal",
			Name:      "last_full_recompute_timestamp_seconds",
			Help:      "Unix time of the last successful full pass per campaign.",
		}, []string{"campaign"}),
	}
	r.registry.MustRegister(
		r.recomputes,
		r.duration,
		r.triggers,
		r.rows,
		r.gates,
		r.unknown,
		r.lastSuccess,
		collectors.NewGoCollector(),
	)
	return r
}

// ObserveRecompute records one finished pass.
func (r *Recorder) ObserveRecompute(mode string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.recomputes.WithLabelValues(mode, result).Inc()
	r.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveTrigger counts a recompute request from source.
func (r *Recorder) ObserveTrigger(source string) {
	if r == nil {
		return
	}
	r.triggers.WithLabelValues(source).Inc()
}

// SetRows publishes the row count of one committed scope.
func (r *Recorder) SetRows(campaign int64, scope string, n int) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(strconv.FormatInt(campaign, 10), scope).Set(float64(n))
}

// ObserveGate counts a gate evaluation.
func (r *Recorder) ObserveGate(parameter string, zeroed bool) {
	if r == nil {
		return
	}
	outcome := "passed"
	if zeroed {
		outcome = "zeroed"
	}
	r.gates.WithLabelValues(parameter, outcome).Inc()
}

// AddUnknownTypes counts unmapped activity type names.
func (r *Recorder) AddUnknownTypes(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.unknown.Add(float64(n))
}

// MarkFullSuccess stamps the last successful full pass for campaign.
func (r *Recorder) MarkFullSuccess(campaign int64, at time.Time) {
	if r == nil {
		return
	}
	r.lastSuccess.WithLabelValues(strconv.FormatInt(campaign, 10)).Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
