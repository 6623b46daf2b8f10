package derivative

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 请求结果标签。
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics 汇总派生图生成相关的 Prometheus 指标。
type Metrics struct {
	Requests      *prometheus.CounterVec
	Generations   prometheus.Counter
	Invalidations prometheus.Counter
	Duration      prometheus.Histogram
	InFlight      prometheus.Gauge
}

// NewMetrics 在 reg 上注册指标；reg 为 nil 时指标不注册，仅在进程内计数。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imghub",
				Subsystem: "derivative",
				Name:      "requests_total",
				Help:      "Derivative requests by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		Generations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "imghub",
			Subsystem: "derivative",
			Name:      "generations_total",
			Help:      "Number of pipeline runs that produced a cached derivative",
		}),
		Invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "imghub",
			Subsystem: "derivative",
			Name:      "invalidations_total",
			Help:      "Number of stale derivatives deleted from the cache",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imghub",
			Subsystem: "derivative",
			Name:      "generation_seconds",
			Help:      "Time spent reading the source, running the pipeline and writing the cache",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "imghub",
			Subsystem: "derivative",
			Name:      "inflight",
			Help:      "Number of generations currently running",
		}),
	}
}
