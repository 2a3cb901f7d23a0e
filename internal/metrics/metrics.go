package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	SourceTrustAnchors          = "trust_anchors"
	SourceCredentialDescriptors = "credential_descriptors"
)

// Metrics holds the Prometheus metrics describing trust anchor and metadata loading.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TrustAnchors             prometheus.Gauge
	CredentialConfigurations prometheus.Gauge
	FilesSkipped             *prometheus.CounterVec
	Collisions               *prometheus.CounterVec
	Reloads                  *prometheus.CounterVec
	ReloadDuration           prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TrustAnchors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pidissuer_trust_anchors",
			Help: "Number of trust anchors in the currently published registry snapshot",
		}),
		CredentialConfigurations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pidissuer_credential_configurations",
			Help: "Number of credential configurations in the published issuer metadata",
		}),
		FilesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pidissuer_files_skipped_total",
			Help: "Number of files skipped while loading, by source",
		}, []string{"source"}),
		Collisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pidissuer_key_collisions_total",
			Help: "Number of entries overwritten by a later file with the same key, by source",
		}, []string{"source"}),
		Reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pidissuer_reloads_total",
			Help: "Number of configuration reloads, by result",
		}, []string{"result"}),
		ReloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pidissuer_reload_duration_seconds",
			Help:    "Time taken to rebuild the trust anchors and the issuer metadata",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveTrustAnchors(count, skipped, collisions int) {
	if m == nil {
		return
	}
	m.TrustAnchors.Set(float64(count))
	m.FilesSkipped.WithLabelValues(SourceTrustAnchors).Add(float64(skipped))
	m.Collisions.WithLabelValues(SourceTrustAnchors).Add(float64(collisions))
}

func (m *Metrics) ObserveCredentialDescriptors(count, skipped, collisions int) {
	if m == nil {
		return
	}
	m.CredentialConfigurations.Set(float64(count))
	m.FilesSkipped.WithLabelValues(SourceCredentialDescriptors).Add(float64(skipped))
	m.Collisions.WithLabelValues(SourceCredentialDescriptors).Add(float64(collisions))
}

func (m *Metrics) ObserveReload(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Reloads.WithLabelValues(result).Inc()
	m.ReloadDuration.Observe(time.Since(start).Seconds())
}
