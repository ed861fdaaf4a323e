package monitor

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/turtacn/Arbor/pkg/logger"
)

var (
	// ForksTotal counts fork attempts, partitioned by outcome (child, parent, error).
	ForksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_forks_total",
		Help: "Total number of fork attempts by outcome",
	}, []string{"outcome"})
	// SignalsTotal counts signals dispatched to the controller.
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_signals_total",
		Help: "Total number of signals handled by the controller",
	}, []string{"signal"})
	// ChildSignalsTotal counts signals sent to children, partitioned by delivery result.
	ChildSignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_child_signals_total",
		Help: "Total number of signals sent to child processes",
	}, []string{"signal", "result"})
	// Children is the number of children tracked by this process.
	Children = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbor_children",
		Help: "Number of direct children forked by this process",
	})
)

var registerOnce sync.Once

// Register adds the Arbor collectors to the default registry. It is safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ForksTotal, SignalsTotal, ChildSignalsTotal, Children)
	})
}

// InitMetrics registers Prometheus metrics and starts an HTTP server to expose them.
// It takes an address string (e.g., ":9090") on which to listen for requests.
// An empty address only registers the collectors.
func InitMetrics(addr string) {
	Register()
	if addr == "" {
		return
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Log.Info("Metrics server starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Log.Error("Metrics server failed", "err", err)
		}
	}()
}

// Personal.AI order the ending
