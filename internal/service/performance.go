package service

import (
	"context"
	"fmt"

	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/port/perfstore"
)

// PerformanceOp is one of the operations PerformanceService.Apply accepts:
// RecordSample or StatsQuery.
type PerformanceOp interface {
	perfOp()
}

// RecordSample appends a sample to the history.
type RecordSample struct {
	Sample performance.Sample
}

// StatsQuery asks for the per-task-type breakdown of one agent.
type StatsQuery struct {
	Agent string
}

func (RecordSample) perfOp() {}
func (StatsQuery) perfOp()   {}

// PerformanceService records and reports historical task outcomes. A nil
// store disables it: samples are dropped and reports are empty.
type PerformanceService struct {
	store perfstore.Store
}

// NewPerformanceService wraps store, which may be nil.
func NewPerformanceService(store perfstore.Store) *PerformanceService {
	return &PerformanceService{store: store}
}

// Enabled reports whether samples are being kept.
func (s *PerformanceService) Enabled() bool { return s.store != nil }

// Apply executes op. RecordSample yields an empty report.
func (s *PerformanceService) Apply(ctx context.Context, op PerformanceOp) (performance.Report, error) {
	switch op := op.(type) {
	case RecordSample:
		if s.store == nil {
			return performance.Report{}, nil
		}
		return performance.Report{}, s.store.Record(ctx, op.Sample)
	case StatsQuery:
		if s.store == nil {
			return performance.Report{Agent: op.Agent, Stats: map[string]performance.Stats{}}, nil
		}
		return s.store.Report(ctx, op.Agent)
	default:
		return performance.Report{}, fmt.Errorf("unsupported performance operation %T", op)
	}
}

// Record is Apply(RecordSample{s}).
func (s *PerformanceService) Record(ctx context.Context, smp performance.Sample) error {
	_, err := s.Apply(ctx, RecordSample{Sample: smp})
	return err
}

// Report is Apply(StatsQuery{agent}).
func (s *PerformanceService) Report(ctx context.Context, agent string) (performance.Report, error) {
	return s.Apply(ctx, StatsQuery{Agent: agent})
}
