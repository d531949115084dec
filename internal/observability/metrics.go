package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	contractOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "contract",
			Name:      "operations_total",
			Help:      "Contract validate/cast operations.",
		},
		[]string{"op", "success"},
	)
	contractDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "contract",
			Name:      "operation_duration_seconds",
			Help:      "Contract validate/cast duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "success"},
	)
	poolCheckouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "pool",
			Name:      "checkouts_total",
			Help:      "Worker checkout attempts by outcome.",
		},
		[]string{"outcome"},
	)
	poolCheckoutWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "pool",
			Name:      "checkout_wait_seconds",
			Help:      "Time spent waiting to acquire a worker.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	poolWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bridgectl",
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Workers by pool state.",
		},
		[]string{"state"},
	)
	workerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "worker",
			Name:      "calls_total",
			Help:      "Worker calls by command and outcome.",
		},
		[]string{"command", "success"},
	)
	workerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "worker",
			Name:      "call_duration_seconds",
			Help:      "Worker call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by route and status.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			contractOps, contractDuration,
			poolCheckouts, poolCheckoutWait, poolWorkers,
			workerCalls, workerCallDuration,
			httpRequests, httpRequestDuration,
		)
	})
}

func RecordContractOp(op string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	contractOps.WithLabelValues(op, successLabel).Inc()
	contractDuration.WithLabelValues(op, successLabel).Observe(duration.Seconds())
}

func RecordCheckout(outcome string, wait time.Duration) {
	RegisterMetrics()
	poolCheckouts.WithLabelValues(outcome).Inc()
	poolCheckoutWait.Observe(wait.Seconds())
}

func SetWorkerGauge(state string, n int) {
	RegisterMetrics()
	poolWorkers.WithLabelValues(state).Set(float64(n))
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	httpRequests.WithLabelValues(app, method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(app, method, path).Observe(duration.Seconds())
}

func RecordWorkerCall(command string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	workerCalls.WithLabelValues(command, successLabel).Inc()
	workerCallDuration.WithLabelValues(command, successLabel).Observe(duration.Seconds())
}
