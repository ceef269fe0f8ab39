package keeper

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TaskMetrics holds all Prometheus metrics for the task module
type TaskMetrics struct {
	TasksCreated   prometheus.Counter
	TasksClaimed   prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksCancelled prometheus.Counter
	TasksExpired   prometheus.Counter

	SettlementTime prometheus.Histogram
	RewardsPaid    prometheus.Counter
	StakeSlashed   prometheus.Counter
}

var (
	taskMetricsOnce sync.Once
	taskMetrics     *TaskMetrics
)

// NewTaskMetrics creates and registers task metrics (singleton pattern)
func NewTaskMetrics() *TaskMetrics {
	taskMetricsOnce.Do(func() {
		taskMetrics = &TaskMetrics{
			TasksCreated: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "tasks_created_total",
					Help:      "Total tasks created",
				},
			),
			TasksClaimed: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "tasks_claimed_total",
					Help:      "Total tasks claimed by providers",
				},
			),
			TasksCompleted: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "tasks_completed_total",
					Help:      "Total tasks settled with a valid proof",
				},
			),
			TasksFailed: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "tasks_failed_total",
					Help:      "Total tasks settled with an invalid proof",
				},
			),
			TasksCancelled: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "tasks_cancelled_total",
					Help:      "Total tasks cancelled by their owner",
				},
			),
			TasksExpired: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "tasks_expired_total",
					Help:      "Total tasks expired past their deadline",
				},
			),
			SettlementTime: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "settlement_seconds",
					Help:      "Proof submission settlement time in seconds",
					Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
				},
			),
			RewardsPaid: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "rewards_paid_total",
					Help:      "Total reward units released to claimants",
				},
			),
			StakeSlashed: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "task",
					Name:      "stake_slashed_total",
					Help:      "Total stake units slashed on failed verification",
				},
			),
		}
	})
	return taskMetrics
}

// GetTaskMetrics returns the singleton task metrics instance
func GetTaskMetrics() *TaskMetrics {
	if taskMetrics == nil {
		return NewTaskMetrics()
	}
	return taskMetrics
}
