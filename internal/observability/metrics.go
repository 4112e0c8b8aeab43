package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	bankResolutionCounter *prometheus.CounterVec
	rateRefreshCounter    *prometheus.CounterVec
	submissionCounter     *prometheus.CounterVec
	activeRateGauge       prometheus.Gauge
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		bankResolutionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_resolution_total",
			Help: "Bank code resolution outcomes",
		}, []string{"outcome"})

		rateRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_refresh_total",
			Help: "Exchange rate refresh outcomes",
		}, []string{"outcome"})

		submissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_submissions_total",
			Help: "Payment submission outcomes",
		}, []string{"outcome"})

		activeRateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_rate_subscriptions",
			Help: "Currencies currently polled for exchange rates",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			bankResolutionCounter,
			rateRefreshCounter,
			submissionCounter,
			activeRateGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementBankResolution(outcome string) {
	if bankResolutionCounter == nil {
		return
	}
	bankResolutionCounter.WithLabelValues(outcome).Inc()
}

func IncrementRateRefresh(outcome string) {
	if rateRefreshCounter == nil {
		return
	}
	rateRefreshCounter.WithLabelValues(outcome).Inc()
}

func IncrementSubmission(outcome string) {
	if submissionCounter == nil {
		return
	}
	submissionCounter.WithLabelValues(outcome).Inc()
}

func SetActiveRateSubscriptions(size int) {
	if activeRateGauge == nil {
		return
	}
	activeRateGauge.Set(float64(size))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
