package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	creditsTotal      *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	prizesTotal       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		creditsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_credits_total",
				Help: "Amount credited to balances, by source.",
			},
			[]string{"source"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		prizesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_prizes_total",
				Help: "Roulette prizes drawn, by value.",
			},
			[]string{"prize"},
		),
	}
}

// ObserveOperation records the duration and outcome of an operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// AddCredit records money credited to a balance.
func (m *Metrics) AddCredit(source string, amount float64) {
	if amount <= 0 {
		return
	}
	m.creditsTotal.WithLabelValues(source).Add(amount)
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrPrize counts one roulette draw.
func (m *Metrics) IncrPrize(prize string) {
	m.prizesTotal.WithLabelValues(prize).Inc()
}

// Credit sources.
const (
	SourceAccrual  = "accrual"
	SourceCheckin  = "checkin"
	SourceRoulette = "roulette"
	SourceDeposit  = "deposit"
)

// OperationStats is the per-operation slice of a Snapshot.
type OperationStats struct {
	Success float64 `json:"success"`
	Error   float64 `json:"error"`
}

// Snapshot is a point-in-time view of the counters for the admin dashboard.
type Snapshot struct {
	Operations     map[string]OperationStats `json:"operations"`
	Credits        map[string]float64        `json:"credits"`
	ExternalErrors map[string]float64        `json:"externalErrors"`
}

// Snapshot gathers the current counter values from the registry.
func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Operations:     map[string]OperationStats{},
		Credits:        map[string]float64{},
		ExternalErrors: map[string]float64{},
	}

	families, err := m.Registry.Gather()
	if err != nil {
		return s
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "ledger_operations_total":
			for _, metric := range mf.GetMetric() {
				op := labelValue(metric, "operation")
				stats := s.Operations[op]
				if labelValue(metric, "status") == "error" {
					stats.Error += counterValue(metric)
				} else {
					stats.Success += counterValue(metric)
				}
				s.Operations[op] = stats
			}
		case "ledger_credits_total":
			for _, metric := range mf.GetMetric() {
				s.Credits[labelValue(metric, "source")] = counterValue(metric)
			}
		case "ledger_external_errors_total":
			for _, metric := range mf.GetMetric() {
				s.ExternalErrors[labelValue(metric, "service")] = counterValue(metric)
			}
		}
	}
	return s
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func counterValue(m *dto.Metric) float64 {
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
