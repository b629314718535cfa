package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 核心引擎的 Prometheus 指标集合。
type Metrics struct {
	SchedulerRuns         prometheus.Counter
	SchedulerLinkFailures prometheus.Counter
	WorkOrdersGenerated   *prometheus.CounterVec
	Transitions           *prometheus.CounterVec
	AssignmentConflicts   *prometheus.CounterVec
}

// New 在给定 Registerer 上注册指标。reg 为 nil 时用默认 Registerer；
// 已注册过的 collector 会被复用，便于测试里重复构建。
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SchedulerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maintenance_scheduler_runs_total",
			Help: "Total number of maintenance scheduler runs",
		}),
		SchedulerLinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maintenance_scheduler_link_failures_total",
			Help: "Total number of per-link failures during scheduler runs",
		}),
		WorkOrdersGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "work_orders_generated_total",
			Help: "Total number of generated work orders",
		}, []string{"source"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "work_order_transitions_total",
			Help: "Total number of work order status transitions",
		}, []string{"from", "to"}),
		AssignmentConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_conflicts_total",
			Help: "Total number of rejected assignment requests by conflict scope",
		}, []string{"scope"}),
	}

	if c, err := register(reg, m.SchedulerRuns); err != nil {
		return nil, err
	} else {
		m.SchedulerRuns = c.(prometheus.Counter)
	}
	if c, err := register(reg, m.SchedulerLinkFailures); err != nil {
		return nil, err
	} else {
		m.SchedulerLinkFailures = c.(prometheus.Counter)
	}
	if c, err := register(reg, m.WorkOrdersGenerated); err != nil {
		return nil, err
	} else {
		m.WorkOrdersGenerated = c.(*prometheus.CounterVec)
	}
	if c, err := register(reg, m.Transitions); err != nil {
		return nil, err
	} else {
		m.Transitions = c.(*prometheus.CounterVec)
	}
	if c, err := register(reg, m.AssignmentConflicts); err != nil {
		return nil, err
	} else {
		m.AssignmentConflicts = c.(*prometheus.CounterVec)
	}

	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

// NewNop 注册在独立 registry 上的指标集合，供测试使用。
func NewNop() *Metrics {
	m, _ := New(prometheus.NewRegistry())
	return m
}
