package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "hexswarm"

// Metrics holds all hexswarm metric instruments.
type Metrics struct {
	TasksSubmitted metric.Int64Counter
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
	TasksCancelled metric.Int64Counter
	TasksRejected  metric.Int64Counter
	TaskDuration   metric.Float64Histogram
	TokensUsed     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.Meter(meterName))
}

// NewMetricsFrom creates all metric instruments on meter.
func NewMetricsFrom(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TasksSubmitted, err = meter.Int64Counter("hexswarm.tasks.submitted",
		metric.WithDescription("Number of tasks accepted"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("hexswarm.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("hexswarm.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	m.TasksCancelled, err = meter.Int64Counter("hexswarm.tasks.cancelled",
		metric.WithDescription("Number of tasks cancelled"))
	if err != nil {
		return nil, err
	}

	m.TasksRejected, err = meter.Int64Counter("hexswarm.tasks.rejected",
		metric.WithDescription("Number of submissions rejected by the auth gate"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("hexswarm.task.duration_seconds",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("hexswarm.tokens.used",
		metric.WithDescription("Tokens reported by executors"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
