package uow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 工作单元的 Prometheus 指标
type Metrics struct {
	commits        *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	transactions   *prometheus.CounterVec
}

// NewMetrics 创建并注册指标；reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gochen_uow_commits_total",
				Help: "Total number of unit-of-work commits by context and result",
			},
			[]string{"context", "result"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gochen_uow_rollbacks_total",
				Help: "Total number of unit-of-work rollbacks by context",
			},
			[]string{"context"},
		),
		commitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gochen_uow_commit_duration_seconds",
				Help:    "Unit-of-work commit duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"context"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gochen_uow_transactions_total",
				Help: "Total number of finished transactions by context and outcome",
			},
			[]string{"context", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.commits, m.rollbacks, m.commitDuration, m.transactions)
	}
	return m
}

func (m *Metrics) recordCommit(contextName string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commits.WithLabelValues(contextName, result).Inc()
	m.commitDuration.WithLabelValues(contextName).Observe(d.Seconds())
}

func (m *Metrics) recordRollback(contextName string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(contextName).Inc()
}

func (m *Metrics) recordTransaction(contextName, outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(contextName, outcome).Inc()
}
