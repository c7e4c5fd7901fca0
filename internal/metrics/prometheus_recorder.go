package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	operationDuration *prom.HistogramVec
	operationResults  *prom.CounterVec
	lockWait          *prom.HistogramVec
	eventsDispatched  *prom.CounterVec
	eventsForwarded   *prom.CounterVec
	integrityChecks   *prom.CounterVec
	configurations    *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.operationDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "wg_federation",
			Name:      "state_operation_duration_seconds",
			Help:      "Duration of HQ state operations including lock waits",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"})
		pr.operationResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wg_federation",
			Name:      "state_operation_results_total",
			Help:      "HQ state operation results by outcome",
		}, []string{"operation", "result"})
		pr.lockWait = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "wg_federation",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the state file lock",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"mode"})
		pr.eventsDispatched = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wg_federation",
			Name:      "events_dispatched_total",
			Help:      "HQ events dispatched by name",
		}, []string{"event"})
		pr.eventsForwarded = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wg_federation",
			Name:      "events_forwarded_total",
			Help:      "HQ events forwarded to the message bus",
		}, []string{"result"})
		pr.integrityChecks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wg_federation",
			Name:      "integrity_checks_total",
			Help:      "Periodic state integrity verification results",
		}, []string{"result"})
		pr.configurations = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "wg_federation",
			Name:      "configurations",
			Help:      "WireGuard configurations in the last loaded state",
		}, []string{"kind"})
		reg.MustRegister(pr.operationDuration, pr.operationResults, pr.lockWait, pr.eventsDispatched,
			pr.eventsForwarded, pr.integrityChecks, pr.configurations)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveOperationDuration(operation string, d time.Duration) {
	if p == nil || p.operationDuration == nil {
		return
	}
	p.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOperationResult(operation string, result ResultLabel) {
	if p == nil || p.operationResults == nil {
		return
	}
	p.operationResults.WithLabelValues(operation, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveLockWait(mode string, d time.Duration) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncEventDispatched(event string) {
	if p == nil || p.eventsDispatched == nil {
		return
	}
	p.eventsDispatched.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) IncEventForwarded(success bool) {
	if p == nil || p.eventsForwarded == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.eventsForwarded.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncIntegrityCheck(result ResultLabel) {
	if p == nil || p.integrityChecks == nil {
		return
	}
	p.integrityChecks.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetConfigurations(kind string, n int) {
	if p == nil || p.configurations == nil {
		return
	}
	p.configurations.WithLabelValues(kind).Set(float64(n))
}
