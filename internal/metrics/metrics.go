// Package metrics records run statistics in a Prometheus registry that is
// written out as a node_exporter textfile at the end of a run.
package metrics

import (
	"time"

	"github.com/maheshrc27/reelsync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reelsync"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeQuota   = "quota_exceeded"
	OutcomeDryRun  = "dry_run"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	registry *prometheus.Registry

	posts       *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	retries     prometheus.Counter
	lastRun     prometheus.Gauge
	runDuration prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		posts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_total",
				Help:      "Posts seen, by guard decision",
			},
			[]string{"decision"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Upload engine calls, by outcome",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_retries_total",
			Help:      "Upload attempts beyond the first",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}
	r.registry.MustRegister(r.posts, r.uploads, r.retries, r.lastRun, r.runDuration)
	return r
}

func (r *Recorder) ObservePost(decision models.Decision) {
	if r == nil {
		return
	}
	r.posts.WithLabelValues(string(decision)).Inc()
}

func (r *Recorder) ObserveUpload(res *models.UploadResult) {
	if r == nil || res == nil {
		return
	}
	r.uploads.WithLabelValues(Outcome(res)).Inc()
	if res.Retries > 0 {
		r.retries.Add(float64(res.Retries))
	}
}

func (r *Recorder) RunFinished(finished time.Time, took time.Duration) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(finished.Unix()))
	r.runDuration.Set(took.Seconds())
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

func Outcome(res *models.UploadResult) string {
	switch {
	case res.TestOnly:
		return OutcomeDryRun
	case res.Success:
		return OutcomeSuccess
	case res.QuotaExceeded:
		return OutcomeQuota
	default:
		return OutcomeFailure
	}
}
