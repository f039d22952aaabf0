// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"snapsafe/internal/checkpoint"
	"snapsafe/internal/history"
	"snapsafe/internal/plan"
	"snapsafe/internal/risk"
	"snapsafe/internal/workspace"
)

// State is a transaction's position in its lifecycle. Rejected, completed,
// and rolled-back are terminal; failed is terminal only when rollback was
// disabled or impossible.
type State string

const (
	StateDraft            State = "draft"
	StateAwaitingApproval State = "awaiting_approval"
	StateRejected         State = "rejected"
	StateApproved         State = "approved"
	StateExecuting        State = "executing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateRolledBack       State = "rolled_back"
)

// Policy selects what a step failure takes down with it.
type Policy string

const (
	// PolicyWholeTransaction aborts on first failure and restores the
	// pre-transaction checkpoint.
	PolicyWholeTransaction Policy = "whole_transaction"

	// PolicyPartial gives each step its own just-in-time checkpoint; a
	// failing step is rolled back alone and execution continues.
	PolicyPartial Policy = "partial"
)

const (
	DefaultStepTimeout = 2 * time.Minute
	DefaultMaxRetries  = 3
	defaultRetryDelay  = time.Second
)

// ToolExecutor performs the actual mutation a step describes. It is the only
// way the executor touches the workspace outside its own restore path.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, args map[string]any) (string, error)
}

// ToolExecutorFunc adapts a function to the ToolExecutor interface.
type ToolExecutorFunc func(ctx context.Context, toolName string, args map[string]any) (string, error)

func (f ToolExecutorFunc) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	return f(ctx, toolName, args)
}

// Approver is the gate between a drafted plan and execution.
type Approver interface {
	Approve(ctx context.Context, p *plan.Plan, assessment *risk.Assessment) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, p *plan.Plan, assessment *risk.Assessment) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, p *plan.Plan, assessment *risk.Assessment) (bool, error) {
	return f(ctx, p, assessment)
}

// AutoApprove passes every plan through the gate. Hosts supply a real
// approver in interactive use.
var AutoApprove = ApproverFunc(func(context.Context, *plan.Plan, *risk.Assessment) (bool, error) {
	return true, nil
})

// Recorder persists finished transactions. *history.Store satisfies it.
type Recorder interface {
	RecordExecution(rec history.Record) error
}

// ExecutionError reports a step whose tool call failed.
type ExecutionError struct {
	StepNumber int
	Tool       string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepNumber, e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// RollbackError means a restore during rollback failed. The workspace may be
// inconsistent; this is always surfaced and never retried.
type RollbackError struct {
	CheckpointID string
	Err          error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback from checkpoint %s failed: %v", e.CheckpointID, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// Report is the outcome of one transaction attempt.
type Report struct {
	PlanID          string        `json:"plan_id"`
	State           State         `json:"state"`
	Results         []string      `json:"results,omitempty"`
	StepsRequested  int           `json:"steps_requested"`
	StepsSucceeded  int           `json:"steps_succeeded"`
	FailedSteps     []int         `json:"failed_steps,omitempty"`
	RolledBackSteps []int         `json:"rolled_back_steps,omitempty"`
	CheckpointID    string        `json:"checkpoint_id,omitempty"`
	Attempts        int           `json:"attempts"`
	Duration        time.Duration `json:"duration"`
	Assessment      *risk.Assessment `json:"assessment,omitempty"`
}

// Succeeded reports whether every requested step completed.
func (r *Report) Succeeded() bool {
	return r.State == StateCompleted && len(r.FailedSteps) == 0
}

// Executor runs plans transactionally: approval gate, pre-execution
// checkpoint, dependency-ordered dispatch to the tool executor, and
// checkpoint restore on failure. One instance per workspace.
type Executor struct {
	store     *checkpoint.Store
	tools     ToolExecutor
	inspector *workspace.Inspector
	approver  Approver
	assessor  *risk.Assessor
	recorder  Recorder
	logger    *slog.Logger

	policy      Policy
	stepTimeout time.Duration
	maxRetries  int
	retryDelay  time.Duration
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithApprover sets the approval gate.
func WithApprover(a Approver) ExecOption {
	return func(e *Executor) {
		if a != nil {
			e.approver = a
		}
	}
}

// WithAssessor sets the risk assessor.
func WithAssessor(a *risk.Assessor) ExecOption {
	return func(e *Executor) {
		if a != nil {
			e.assessor = a
		}
	}
}

// WithRecorder sets the history recorder.
func WithRecorder(r Recorder) ExecOption {
	return func(e *Executor) { e.recorder = r }
}

// WithPolicy selects the rollback policy.
func WithPolicy(p Policy) ExecOption {
	return func(e *Executor) { e.policy = p }
}

// WithStepTimeout bounds each tool call.
func WithStepTimeout(d time.Duration) ExecOption {
	return func(e *Executor) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithMaxRetries bounds ExecuteWithRetry attempts.
func WithMaxRetries(n int) ExecOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithRetryDelay sets the pause between retry attempts.
func WithRetryDelay(d time.Duration) ExecOption {
	return func(e *Executor) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger *slog.Logger) ExecOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds a transactional executor over a checkpoint store and a tool
// executor capability.
func New(store *checkpoint.Store, tools ToolExecutor, inspector *workspace.Inspector, opts ...ExecOption) *Executor {
	e := &Executor{
		store:       store,
		tools:       tools,
		inspector:   inspector,
		approver:    AutoApprove,
		assessor:    risk.NewAssessor(),
		logger:      slog.Default(),
		policy:      PolicyWholeTransaction,
		stepTimeout: DefaultStepTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one transaction attempt: validate, assess, gate on approval,
// checkpoint, then dispatch steps in dependency order. The returned report
// is never nil. Rejection at the gate is not an error; a step failure in
// whole-transaction mode is returned as an ExecutionError after rollback,
// and a failed rollback as a RollbackError.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) (*Report, error) {
	report := &Report{
		PlanID:         p.ID,
		State:          StateDraft,
		StepsRequested: len(p.Steps),
		Attempts:       1,
	}
	start := time.Now()

	if len(p.Steps) == 0 {
		report.State = StateCompleted
		return report, nil
	}

	// Validation failures block before any mutation.
	if err := p.Validate(); err != nil {
		report.State = StateFailed
		return report, err
	}

	report.Assessment = e.assessor.Assess(p)

	report.State = StateAwaitingApproval
	approved, err := e.approver.Approve(ctx, p, report.Assessment)
	if err != nil {
		report.State = StateFailed
		return report, fmt.Errorf("approval gate: %w", err)
	}
	if !approved {
		// No mutation has occurred; rejection is a clean no-op.
		report.State = StateRejected
		report.Duration = time.Since(start)
		e.logger.Info("plan rejected", slog.String("plan", p.ID))
		e.record(p, report)
		return report, nil
	}
	report.State = StateApproved

	report.CheckpointID = e.transactionCheckpoint(ctx, p)

	report.State = StateExecuting
	err = e.runSteps(ctx, p, report)
	report.Duration = time.Since(start)
	e.record(p, report)
	return report, err
}

// transactionCheckpoint snapshots every currently-existing file the plan
// claims to affect. Checkpoint failure degrades to no checkpoint rather than
// blocking execution.
func (e *Executor) transactionCheckpoint(ctx context.Context, p *plan.Plan) string {
	existing := e.inspector.FilterExisting(p.AffectedFiles())
	if len(existing) == 0 {
		e.logger.Debug("no existing files to checkpoint", slog.String("plan", p.ID))
		return ""
	}

	cp, err := e.store.CreateCheckpoint(ctx, existing,
		fmt.Sprintf("Transaction checkpoint for: %s", clip(p.Request, 50)),
		"transaction", []string{"auto", "transaction"})
	if err != nil {
		e.logger.Warn("failed to create transaction checkpoint",
			slog.String("plan", p.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}

	e.logger.Info("created transaction checkpoint",
		slog.String("plan", p.ID),
		slog.String("checkpoint", cp.ID),
		slog.Int("files", cp.FileCount()),
	)
	return cp.ID
}

// runSteps walks the scheduler's batches in order. Steps within a batch run
// sequentially; a step never starts before every declared dependency has
// completed.
func (e *Executor) runSteps(ctx context.Context, p *plan.Plan, report *Report) error {
	batches := plan.NewGraph(p.Steps).ExecutionOrder()

	var applied []int
	for _, batch := range batches {
		for _, n := range batch {
			step := p.Step(n)
			if step == nil {
				continue
			}

			var stepCheckpointID string
			if e.policy == PolicyPartial {
				stepCheckpointID = e.stepCheckpoint(ctx, step)
			}

			result, err := e.runStep(ctx, step)
			if err == nil {
				report.Results = append(report.Results, result)
				report.StepsSucceeded++
				applied = append(applied, step.StepNumber)
				continue
			}

			execErr := &ExecutionError{StepNumber: step.StepNumber, Tool: step.ToolName, Err: err}
			report.FailedSteps = append(report.FailedSteps, step.StepNumber)
			report.Results = append(report.Results, fmt.Sprintf("Error: %v", err))
			e.logger.Error("step failed",
				slog.String("plan", p.ID),
				slog.Int("step", step.StepNumber),
				slog.String("error", err.Error()),
			)

			if e.policy == PolicyPartial {
				if stepCheckpointID != "" {
					if rbErr := e.restore(ctx, stepCheckpointID); rbErr != nil {
						report.State = StateFailed
						return rbErr
					}
					report.RolledBackSteps = append(report.RolledBackSteps, step.StepNumber)
				}
				continue
			}

			// Whole-transaction: undo everything applied so far and stop.
			if report.CheckpointID != "" {
				if rbErr := e.restore(ctx, report.CheckpointID); rbErr != nil {
					report.State = StateFailed
					return rbErr
				}
				report.State = StateRolledBack
				report.RolledBackSteps = applied
				report.StepsSucceeded = 0
			} else {
				report.State = StateFailed
			}
			return execErr
		}
	}

	if len(report.FailedSteps) == 0 {
		report.State = StateCompleted
	} else {
		// Partial mode: failures were individually rolled back, the rest
		// of the plan still ran.
		report.State = StateFailed
	}
	return nil
}

// stepCheckpoint takes the just-in-time checkpoint for one step under the
// partial policy.
func (e *Executor) stepCheckpoint(ctx context.Context, step *plan.Step) string {
	existing := e.inspector.FilterExisting(step.AffectedFiles)
	if len(existing) == 0 {
		return ""
	}

	cp, err := e.store.CreateCheckpoint(ctx, existing,
		fmt.Sprintf("Before step %d", step.StepNumber),
		"step", []string{"auto", "step"})
	if err != nil {
		e.logger.Warn("failed to create step checkpoint",
			slog.Int("step", step.StepNumber),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return cp.ID
}

// runStep dispatches one step to the tool executor under the step timeout,
// so a hung external call becomes a failure instead of a deadlock.
func (e *Executor) runStep(ctx context.Context, step *plan.Step) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	result, err := e.tools.Execute(stepCtx, step.ToolName, step.ToolArgs)
	if err != nil {
		if stepCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timed out after %s: %w", e.stepTimeout, err)
		}
		return "", err
	}
	return result, nil
}

// restore rolls the workspace back to a checkpoint. Any failure here is
// fatal: the workspace may be inconsistent and the caller must know.
func (e *Executor) restore(ctx context.Context, checkpointID string) error {
	restored, err := e.store.RestoreCheckpoint(ctx, checkpointID)
	if err != nil {
		return &RollbackError{CheckpointID: checkpointID, Err: err}
	}
	e.logger.Info("rolled back",
		slog.String("checkpoint", checkpointID),
		slog.Int("restored", restored),
	)
	return nil
}

// ExecuteWithRetry re-attempts the entire transaction on execution failure,
// up to the configured retry bound. Whole-transaction rollback between
// attempts restores the starting state. User rejection is never retried, and
// neither is a rollback failure.
func (e *Executor) ExecuteWithRetry(ctx context.Context, p *plan.Plan) (*Report, error) {
	var lastReport *Report
	var lastErr error

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		report, err := e.Execute(ctx, p)
		report.Attempts = attempt
		lastReport, lastErr = report, err

		if err == nil {
			return report, nil
		}
		var rbErr *RollbackError
		if errors.As(err, &rbErr) {
			return report, err
		}
		if report.State == StateRejected {
			return report, err
		}

		if attempt < e.maxRetries {
			e.logger.Warn("attempt failed, retrying",
				slog.String("plan", p.ID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}
	}

	return lastReport, lastErr
}

// record persists the transaction outcome when a recorder is configured.
func (e *Executor) record(p *plan.Plan, report *Report) {
	if e.recorder == nil {
		return
	}

	stepTypes := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		stepTypes = append(stepTypes, string(step.Type))
	}

	var errs []string
	for _, result := range report.Results {
		if strings.HasPrefix(result, "Error:") {
			errs = append(errs, result)
		}
	}

	rec := history.Record{
		PlanID:         p.ID,
		Request:        p.Request,
		Summary:        p.Summary,
		StepCount:      len(p.Steps),
		Outcome:        outcomeFor(report),
		ExecutedAt:     time.Now(),
		Duration:       report.Duration,
		StepsCompleted: report.StepsSucceeded,
		Errors:         errs,
		RiskLevel:      p.OverallRisk().String(),
		StepTypes:      stepTypes,
	}
	if err := e.recorder.RecordExecution(rec); err != nil {
		e.logger.Warn("failed to record execution history",
			slog.String("plan", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func outcomeFor(report *Report) history.Outcome {
	switch report.State {
	case StateCompleted:
		return history.OutcomeSuccess
	case StateRejected:
		return history.OutcomeCancelled
	case StateRolledBack:
		return history.OutcomeRollback
	default:
		if report.StepsSucceeded > 0 {
			return history.OutcomePartialSuccess
		}
		return history.OutcomeFailure
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
