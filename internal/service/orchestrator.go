package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	hxotel "github.com/hexswarm/hexswarm/internal/adapter/otel"
	"github.com/hexswarm/hexswarm/internal/domain"
	"github.com/hexswarm/hexswarm/internal/domain/notification"
	"github.com/hexswarm/hexswarm/internal/domain/performance"
	"github.com/hexswarm/hexswarm/internal/domain/task"
	"github.com/hexswarm/hexswarm/internal/logger"
	"github.com/hexswarm/hexswarm/internal/port/broadcast"
	"github.com/hexswarm/hexswarm/internal/port/cache"
	"github.com/hexswarm/hexswarm/internal/port/executor"
	"github.com/hexswarm/hexswarm/internal/port/notifier"
	"github.com/hexswarm/hexswarm/internal/port/taskstore"
)

// ErrExecutionTimeout is the cancellation cause of an executor call that
// ran past its deadline.
var ErrExecutionTimeout = errors.New("task timed out")

// errCancelRequested is the cancellation cause used by Cancel.
var errCancelRequested = errors.New("cancel requested")

// StatusRejected is reported for submissions refused by the auth gate. No
// record is created for them.
const StatusRejected task.Status = "rejected"

const (
	restartError        = "server restarted while task was running"
	restartPendingError = "server restarted before task started"
)

var restartErrors = map[task.Status]string{
	task.StatusRunning: restartError,
	task.StatusPending: restartPendingError,
}

// OrchestratorConfig identifies the local agent and bounds execution.
type OrchestratorConfig struct {
	Agent          string
	DID            string
	Version        string
	Fallback       string
	Capabilities   []task.Type
	DefaultTimeout time.Duration
}

// SubmitResponse is the outcome of a submission.
type SubmitResponse struct {
	TaskID          string          `json:"task_id"`
	Status          task.Status     `json:"status"`
	Result          json.RawMessage `json:"result,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Error           string          `json:"error,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// StatusResponse describes where a task is in its lifecycle.
type StatusResponse struct {
	TaskID      string      `json:"task_id"`
	Status      task.Status `json:"status"`
	Progress    *int        `json:"progress"`
	StartedAt   *time.Time  `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at"`
	Error       string      `json:"error,omitempty"`
}

// ResultResponse carries the result of a finished task. Output is nil until
// the task is completed or failed.
type ResultResponse struct {
	TaskID string       `json:"task_id"`
	Status task.Status  `json:"status"`
	Output *task.Result `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// CancelResponse reports whether a cancellation took effect.
type CancelResponse struct {
	TaskID  string      `json:"task_id"`
	Success bool        `json:"success"`
	Status  task.Status `json:"status"`
}

// Orchestrator drives tasks through pending, running and one terminal
// state, persisting each transition before acting on it.
type Orchestrator struct {
	cfg     OrchestratorConfig
	store   taskstore.Store
	exec    executor.Executor
	tracker *ResourceTracker

	verifier Verifier
	records  *cache.Records
	notify   notifier.Notifier
	inbox    notifier.Inbox
	perf     *PerformanceService
	hub      broadcast.Broadcaster
	metrics  *hxotel.Metrics

	// writeMu orders every transition in this process; the store's file
	// lock orders them across processes.
	writeMu sync.Mutex

	mu      sync.RWMutex
	active  map[string]*task.Record
	running map[string]context.CancelCauseFunc

	loads   singleflight.Group
	now     func() time.Time
	started time.Time
}

// NewOrchestrator wires the required dependencies. Optional ones are set
// with the Set* methods before the first request.
func NewOrchestrator(cfg OrchestratorConfig, store taskstore.Store, exec executor.Executor, tracker *ResourceTracker) *Orchestrator {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Minute
	}
	if cfg.Fallback == "" {
		cfg.Fallback = cfg.Agent
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		exec:     exec,
		tracker:  tracker,
		verifier: NewAllowlistVerifier(nil),
		active:   make(map[string]*task.Record),
		running:  make(map[string]context.CancelCauseFunc),
		now:      task.Now,
		started:  task.Now(),
	}
}

// SetVerifier replaces the default permissive auth gate.
func (o *Orchestrator) SetVerifier(v Verifier) { o.verifier = v }

// SetRecordCache enables the terminal record read cache.
func (o *Orchestrator) SetRecordCache(r *cache.Records) { o.records = r }

// SetNotifier sets where completion notices are delivered.
func (o *Orchestrator) SetNotifier(n notifier.Notifier) { o.notify = n }

// SetInbox sets the inbox read by CheckNotifications.
func (o *Orchestrator) SetInbox(in notifier.Inbox) { o.inbox = in }

// SetPerformance enables performance sampling.
func (o *Orchestrator) SetPerformance(p *PerformanceService) { o.perf = p }

// SetBroadcaster sets the live event sink.
func (o *Orchestrator) SetBroadcaster(b broadcast.Broadcaster) { o.hub = b }

// SetMetrics sets the metric instruments.
func (o *Orchestrator) SetMetrics(m *hxotel.Metrics) { o.metrics = m }

// Submit accepts a task in its wire form, runs it on the local executor
// and returns once it reached a terminal state. Validation failures return
// an error wrapping domain.ErrValidation and create no record. Execution
// failures are reported in the response, not as an error.
func (o *Orchestrator) Submit(ctx context.Context, args map[string]any) (SubmitResponse, error) {
	typeName, _ := args["type"].(string)
	ctx, span := hxotel.StartSubmitSpan(ctx, o.cfg.Agent, typeName)
	defer span.End()

	authArgs, _ := args["auth"].(map[string]any)
	allowed, did := o.verifier.Verify(ctx, authArgs)
	if !allowed {
		slog.WarnContext(ctx, "task submission rejected", "did", did)
		if o.metrics != nil {
			o.metrics.TasksRejected.Add(ctx, 1)
		}
		return SubmitResponse{Status: StatusRejected, Reason: "unauthorized"}, nil
	}

	req, err := task.RequestFromWire(args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return SubmitResponse{}, err
	}

	rec := task.Record{
		ID:           newTaskID(),
		Request:      req,
		Status:       task.StatusPending,
		CreatedAt:    o.now(),
		RequesterDID: did,
	}
	ctx = logger.WithTaskID(ctx, rec.ID)

	if err := o.create(ctx, &rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return SubmitResponse{}, err
	}
	if o.metrics != nil {
		o.metrics.TasksSubmitted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("task.type", string(req.Type)),
		))
	}
	slog.InfoContext(ctx, "task accepted", "type", req.Type, "priority", req.Priority)

	// The execution outlives a disconnected caller; only Cancel or the
	// timeout stops it.
	execCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)
	o.mu.Lock()
	o.running[rec.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, rec.ID)
		o.mu.Unlock()
	}()

	startedAt := o.now()
	current, moved, err := o.transition(ctx, rec.ID, func(r *task.Record) bool {
		if r.Status != task.StatusPending {
			return false
		}
		r.Status = task.StatusRunning
		r.StartedAt = &startedAt
		r.Progress = new(int)
		return true
	})
	if err != nil {
		// The pending copy on disk stays authoritative; reconciliation
		// fails it on the next start.
		o.forget(rec.ID)
		span.SetStatus(codes.Error, err.Error())
		return SubmitResponse{TaskID: rec.ID, Status: task.StatusPending}, fmt.Errorf("start task %s: %w", rec.ID, err)
	}
	if !moved {
		// Cancelled before it started.
		o.evict(ctx, rec.ID)
		return submitResponse(&current), nil
	}

	res, execErr := o.execute(execCtx, current, req.Timeout(o.cfg.DefaultTimeout))

	final, err := o.finish(ctx, rec.ID, startedAt, res, execErr)
	if err != nil {
		o.forget(rec.ID)
		span.SetStatus(codes.Error, err.Error())
		return SubmitResponse{TaskID: rec.ID, Status: task.StatusRunning}, fmt.Errorf("finish task %s: %w", rec.ID, err)
	}
	if final.Status == task.StatusFailed {
		span.SetStatus(codes.Error, final.Error)
	}
	return submitResponse(&final), nil
}

// execute calls the executor under the task timeout and maps its outcome
// to an error. A nil result, or one that reports failure, is an error.
func (o *Orchestrator) execute(ctx context.Context, rec task.Record, timeout time.Duration) (*task.Result, error) {
	ctx, span := hxotel.StartExecuteSpan(ctx, rec.ID, o.exec.Name())
	defer span.End()

	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrExecutionTimeout)
	defer cancel()

	res, err := o.exec.Execute(ctx, rec)
	switch {
	case err != nil && errors.Is(context.Cause(ctx), ErrExecutionTimeout):
		err = fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
	case err != nil:
	case res == nil:
		err = errors.New("executor returned no result")
	case res.Status == task.StatusFailed:
		msg := res.Error
		if msg == "" {
			msg = "executor reported failure"
		}
		err = errors.New(msg)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// finish records the terminal outcome of an execution. If the task left
// the running state meanwhile (it was cancelled), the outcome is discarded
// and the current record is returned.
func (o *Orchestrator) finish(ctx context.Context, id string, startedAt time.Time, res *task.Result, execErr error) (task.Record, error) {
	completedAt := o.now()
	duration := completedAt.Sub(startedAt).Seconds()

	final, moved, err := o.transition(ctx, id, func(r *task.Record) bool {
		if r.Status != task.StatusRunning {
			return false
		}
		done := 100
		r.CompletedAt = &completedAt
		r.Progress = &done
		r.Result = terminalResult(id, res, execErr, duration)
		r.Status = r.Result.Status
		r.Error = r.Result.Error
		return true
	})
	if err != nil {
		return task.Record{}, err
	}
	if !moved {
		slog.InfoContext(ctx, "discarding late executor outcome", "status", final.Status)
		o.evict(ctx, id)
		return final, nil
	}

	o.settle(ctx, &final, res.Tokens())
	return final, nil
}

func terminalResult(id string, res *task.Result, execErr error, duration float64) *task.Result {
	out := &task.Result{
		TaskID:          id,
		Status:          task.StatusCompleted,
		FilesCreated:    []string{},
		DurationSeconds: duration,
	}
	if res != nil {
		out.Result = res.Result
		out.Summary = res.Summary
		out.TokenUsage = res.TokenUsage
		if res.FilesCreated != nil {
			out.FilesCreated = res.FilesCreated
		}
	}
	if execErr != nil {
		out.Status = task.StatusFailed
		out.Error = execErr.Error()
		out.Summary = ""
		out.Result = nil
	}
	return out
}

// Cancel moves a pending or running task to cancelled and stops its
// executor. Terminal and unknown tasks are left untouched.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (CancelResponse, error) {
	ctx = logger.WithTaskID(ctx, id)
	if reason == "" {
		reason = "cancelled"
	}
	now := o.now()

	rec, moved, err := o.transition(ctx, id, func(r *task.Record) bool {
		if r.Status.IsTerminal() {
			return false
		}
		r.Status = task.StatusCancelled
		r.CompletedAt = &now
		r.Error = reason
		return true
	})
	if errors.Is(err, errUnknownTask) {
		return CancelResponse{TaskID: id, Status: task.StatusUnknown}, nil
	}
	if err != nil {
		return CancelResponse{}, fmt.Errorf("cancel task %s: %w", id, err)
	}
	if !moved {
		return CancelResponse{TaskID: id, Status: rec.Status}, nil
	}

	// Persisted first, so the executor's exit finds the task terminal.
	o.mu.RLock()
	stop := o.running[id]
	o.mu.RUnlock()
	if stop != nil {
		stop(errCancelRequested)
	}

	slog.InfoContext(ctx, "task cancelled", "reason", reason)
	o.settle(ctx, &rec, 0)
	return CancelResponse{TaskID: id, Success: true, Status: rec.Status}, nil
}

// Reconcile fails every task a previous process left pending or running.
// Execution is tied to the submitting call, so such tasks are never
// resumed. It returns the number of tasks repaired; unreadable records are
// reported in the error without stopping the pass.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	var (
		stale []task.Record
		errs  []error
	)
	for _, st := range []task.Status{task.StatusRunning, task.StatusPending} {
		recs, err := o.store.ListByStatus(ctx, st)
		if err != nil {
			errs = append(errs, err)
		}
		stale = append(stale, recs...)
	}

	repaired := 0
	for i := range stale {
		id := stale[i].ID
		o.mu.RLock()
		_, mine := o.active[id]
		o.mu.RUnlock()
		if mine {
			continue
		}

		now := o.now()
		_, moved, err := o.transition(ctx, id, func(r *task.Record) bool {
			msg, ok := restartErrors[r.Status]
			if !ok {
				return false
			}
			r.Status = task.StatusFailed
			r.CompletedAt = &now
			r.Error = msg
			r.Result = &task.Result{
				TaskID:       id,
				Status:       task.StatusFailed,
				FilesCreated: []string{},
				Error:        msg,
			}
			return true
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", id, err))
			continue
		}
		if moved {
			repaired++
			o.evict(ctx, id)
			slog.WarnContext(logger.WithTaskID(ctx, id), "failed task interrupted by restart", "was", stale[i].Status)
		}
	}
	if repaired > 0 {
		slog.InfoContext(ctx, "reconciliation finished", "repaired", repaired)
	}
	return repaired, errors.Join(errs...)
}

// Status reports the lifecycle state of a task. Unknown ids yield status
// unknown rather than an error.
func (o *Orchestrator) Status(ctx context.Context, id string) (StatusResponse, error) {
	rec, ok, err := o.lookup(ctx, id)
	if err != nil {
		return StatusResponse{}, err
	}
	if !ok {
		return StatusResponse{TaskID: id, Status: task.StatusUnknown}, nil
	}
	return StatusResponse{
		TaskID:      rec.ID,
		Status:      rec.Status,
		Progress:    rec.Progress,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Error:       rec.Error,
	}, nil
}

// Result returns the result of a completed or failed task. For any other
// state only the status is reported.
func (o *Orchestrator) Result(ctx context.Context, id string) (ResultResponse, error) {
	rec, ok, err := o.lookup(ctx, id)
	if err != nil {
		return ResultResponse{}, err
	}
	if !ok {
		return ResultResponse{TaskID: id, Status: task.StatusUnknown}, nil
	}
	out := ResultResponse{TaskID: rec.ID, Status: rec.Status, Error: rec.Error}
	if rec.Result != nil && (rec.Status == task.StatusCompleted || rec.Status == task.StatusFailed) {
		out.Output = rec.Result
	}
	return out, nil
}

var errUnknownTask = errors.New("unknown task")

// create persists a new pending record and tracks it as active.
func (o *Orchestrator) create(ctx context.Context, rec *task.Record) error {
	o.writeMu.Lock()
	err := o.persist(ctx, rec)
	if err == nil {
		stored := rec.Clone()
		o.mu.Lock()
		o.active[rec.ID] = &stored
		o.mu.Unlock()
	}
	o.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("persist task %s: %w", rec.ID, err)
	}
	o.publish(ctx, rec)
	return nil
}

// transition applies fn to the current record and persists the result.
// fn returns false to leave the record unchanged; the current record is
// returned in that case. Transitions never leave a terminal state.
func (o *Orchestrator) transition(ctx context.Context, id string, fn func(*task.Record) bool) (task.Record, bool, error) {
	rec, moved, err := o.transitionLocked(ctx, id, fn)
	if moved {
		o.publish(ctx, &rec)
	}
	return rec, moved, err
}

func (o *Orchestrator) transitionLocked(ctx context.Context, id string, fn func(*task.Record) bool) (task.Record, bool, error) {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	ctx, span := hxotel.StartTransitionSpan(ctx, id)
	defer span.End()

	// The store re-reads the record under its file lock; a transition made
	// by another process sharing the root is never overwritten.
	next, moved, err := o.store.Update(ctx, id, fn)
	if errors.Is(err, domain.ErrNotFound) {
		err = errUnknownTask
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return task.Record{}, false, err
	}
	span.SetAttributes(attribute.String("task.status", string(next.Status)))

	o.mu.Lock()
	if _, tracked := o.active[id]; tracked || moved {
		stored := next.Clone()
		o.active[id] = &stored
	}
	o.mu.Unlock()
	return next, moved, nil
}

func (o *Orchestrator) persist(ctx context.Context, rec *task.Record) error {
	ctx, span := hxotel.StartTransitionSpan(ctx, rec.ID)
	defer span.End()
	span.SetAttributes(attribute.String("task.status", string(rec.Status)))

	if err := o.store.Save(ctx, *rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// lookup reads a task from memory, then the record cache, then the store.
// Concurrent store reads of the same id share one load.
func (o *Orchestrator) lookup(ctx context.Context, id string) (task.Record, bool, error) {
	o.mu.RLock()
	rec, ok := o.active[id]
	o.mu.RUnlock()
	if ok {
		return rec.Clone(), true, nil
	}

	if o.records != nil {
		cached, hit, err := o.records.Get(ctx, id)
		if err != nil {
			slog.DebugContext(ctx, "record cache read failed", "task_id", id, "error", err)
		}
		if hit {
			return cached, true, nil
		}
	}

	v, err, _ := o.loads.Do(id, func() (any, error) {
		return o.store.Load(ctx, id)
	})
	if err != nil {
		return task.Record{}, false, fmt.Errorf("load task %s: %w", id, err)
	}
	lk := v.(taskstore.Lookup)
	if lk.Outcome != taskstore.Found {
		return task.Record{}, false, nil
	}
	o.cacheRecord(ctx, &lk.Record)
	return lk.Record.Clone(), true, nil
}

// forget stops tracking a task whose last transition could not be
// persisted. The stored copy is authoritative from then on.
func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

// evict drops a terminal task from the active set once it is durable.
func (o *Orchestrator) evict(ctx context.Context, id string) {
	o.mu.Lock()
	rec, ok := o.active[id]
	delete(o.active, id)
	o.mu.Unlock()
	if ok {
		o.cacheRecord(ctx, rec)
	}
}

func (o *Orchestrator) cacheRecord(ctx context.Context, rec *task.Record) {
	if o.records == nil {
		return
	}
	if _, err := o.records.Put(ctx, rec); err != nil {
		slog.DebugContext(ctx, "record cache write failed", "task_id", rec.ID, "error", err)
	}
}

// settle runs the best-effort side effects of a terminal transition. None
// of them can change the outcome already persisted.
func (o *Orchestrator) settle(ctx context.Context, rec *task.Record, tokens int) {
	o.evict(ctx, rec.ID)

	attrs := metric.WithAttributes(
		attribute.String("task.type", string(rec.Request.Type)),
		attribute.String("status", string(rec.Status)),
	)
	if o.metrics != nil {
		switch rec.Status {
		case task.StatusCompleted:
			o.metrics.TasksCompleted.Add(ctx, 1, attrs)
		case task.StatusFailed:
			o.metrics.TasksFailed.Add(ctx, 1, attrs)
		case task.StatusCancelled:
			o.metrics.TasksCancelled.Add(ctx, 1, attrs)
		}
		if rec.Result != nil {
			o.metrics.TaskDuration.Record(ctx, rec.Result.DurationSeconds, attrs)
		}
		if tokens > 0 {
			o.metrics.TokensUsed.Add(ctx, int64(tokens), attrs)
		}
	}

	if rec.Status != task.StatusCancelled {
		success := rec.Status == task.StatusCompleted
		if o.tracker != nil {
			if err := o.tracker.RecordTask(ctx, UsageOutcome{
				Agent:   o.cfg.Agent,
				Tokens:  tokens,
				Success: success,
				Error:   rec.Error,
			}); err != nil {
				slog.WarnContext(ctx, "resource ledger update failed", "error", err)
			}
		}
		if o.perf != nil && o.perf.Enabled() {
			smp := performance.Sample{
				Agent:      o.cfg.Agent,
				TaskType:   rec.Request.Type,
				Success:    success,
				TokensUsed: tokens,
				RecordedAt: o.now(),
			}
			if rec.Result != nil {
				smp.DurationSeconds = rec.Result.DurationSeconds
			}
			if err := o.perf.Record(ctx, smp); err != nil {
				slog.WarnContext(ctx, "performance sample dropped", "error", err)
			}
		}
	}

	if o.notify != nil {
		if err := o.notify.Notify(ctx, notification.FromRecord(o.cfg.Agent, rec)); err != nil {
			slog.WarnContext(ctx, "completion notification failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "task finished", "status", rec.Status, "error", rec.Error)
}

func (o *Orchestrator) publish(ctx context.Context, rec *task.Record) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, broadcast.EventTaskStatus, broadcast.TaskStatusEvent{
		TaskID: rec.ID,
		Agent:  o.cfg.Agent,
		Status: string(rec.Status),
		Error:  rec.Error,
	})
}

func submitResponse(rec *task.Record) SubmitResponse {
	out := SubmitResponse{TaskID: rec.ID, Status: rec.Status, Error: rec.Error}
	if rec.Result != nil {
		out.DurationSeconds = rec.Result.DurationSeconds
		if rec.Status == task.StatusCompleted {
			out.Result = rec.Result.Result
			out.Summary = rec.Result.Summary
		}
	}
	return out
}

func newTaskID() string {
	return "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
