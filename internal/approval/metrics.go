package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: сколько операций ушло на апрув
	Requested prometheus.Counter

	// Решения по заявкам
	Resolutions *prometheus.CounterVec // outcome: approved, denied, expired_click, unauthorized_click

	// Отказы по лимитам объема (tier: authorized / unauthorized)
	LimitRejections *prometheus.CounterVec

	// Latency: от создания заявки до решения
	ResolutionSeconds prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики летят в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Requested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "moperator_approvals_requested_total",
			Help: "Total number of write operations submitted for approval.",
		}),

		Resolutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moperator_approval_resolutions_total",
			Help: "Total number of approval interactions by outcome.",
		}, []string{"outcome"}),

		LimitRejections: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moperator_bulk_limit_rejections_total",
			Help: "Total number of operations rejected by volume limits.",
		}, []string{"tier"}),

		ResolutionSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "moperator_approval_resolution_seconds",
			Help:    "Time between approval request and its resolution.",
			Buckets: []float64{1, 5, 15, 60, 300, 600, 1200, 1800},
		}),
	}
}
