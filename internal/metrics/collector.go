// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。实现执行引擎与规则引擎的观察端口。
type Collector struct {
	// 节点执行指标
	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec

	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 规则引擎指标
	ruleValidationsTotal *prometheus.CounterVec
	ruleRejectionRate    prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器。registerer 为 nil 时使用默认注册表。
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of workflow node executions",
		},
		[]string{"type", "status"},
	)

	c.nodeExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Workflow node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Whole workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"status"},
	)

	c.ruleValidationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_validations_total",
			Help:      "Total number of rule engine validations",
		},
		[]string{"outcome"},
	)

	c.ruleRejectionRate = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rule_rejection_rate",
			Help:      "Running rejection rate of the rule engine",
		},
	)

	return c
}

// ObserveNodeExecution 记录一次节点执行
func (c *Collector) ObserveNodeExecution(nodeType, status string, seconds float64) {
	c.nodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(nodeType).Observe(seconds)
}

// ObserveRun 记录一次完整运行
func (c *Collector) ObserveRun(status string, seconds float64) {
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(seconds)
}

// ObserveRuleValidation 记录一次规则校验
func (c *Collector) ObserveRuleValidation(passed bool, rejectionRate float64) {
	outcome := "passed"
	if !passed {
		outcome = "rejected"
	}
	c.ruleValidationsTotal.WithLabelValues(outcome).Inc()
	c.ruleRejectionRate.Set(rejectionRate)
}
