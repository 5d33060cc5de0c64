package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/notify"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/store"
)

// CacheInvalidator removes cache entries made stale by a mutation.
// Implementations never fail the caller.
type CacheInvalidator interface {
	InvalidateTask(ctx context.Context, teamID, subjectID, taskID int64)
	InvalidateKeys(ctx context.Context, keys []string)
}

// Result describes the effect of an applied message.
type Result struct {
	Operation Operation
	// Task is the created or updated task, or the deleted or submitted one.
	Task *domain.Task
	// Completion is the new or existing completion of a submit.
	Completion *domain.Completion
	// NoOp is set when an update or delete found no task.
	NoOp bool
	// AlreadySubmitted is set when the user had already completed the task.
	AlreadySubmitted bool
	// Duplicate is set when the ledger already held the message fingerprint.
	Duplicate bool
}

// changed reports whether the result has side effects to announce.
func (r *Result) changed() bool {
	return !r.NoOp && !r.AlreadySubmitted && !r.Duplicate
}

// errCompletionRace rolls back a submit whose insert lost a race with a
// concurrent submit of the same (task, user).
var errCompletionRace = errors.New("completion inserted concurrently")

type nopInvalidator struct{}

func (nopInvalidator) InvalidateTask(context.Context, int64, int64, int64) {}
func (nopInvalidator) InvalidateKeys(context.Context, []string) {}

// Applier performs the mutation a message describes.
type Applier struct {
	gw       store.Gateway
	cache    CacheInvalidator
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewApplier creates an Applier. cache and notifier may be nil.
func NewApplier(gw store.Gateway, cache CacheInvalidator, notifier notify.Notifier, logger *slog.Logger) *Applier {
	if cache == nil {
		cache = nopInvalidator{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		gw:       gw,
		cache:    cache,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "applier")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Apply performs msg. Errors are classified: see IsConnectivityError and IsDomainError.
func (a *Applier) Apply(ctx context.Context, msg *Message) (*Result, error) {
	fingerprint, err := msg.Fingerprint()
	if err != nil {
		return nil, classify(msg.Operation, err)
	}

	var res *Result
	switch msg.Operation {
	case OpCreateTask:
		var p CreatePayload
		if err = msg.Decode(&p); err == nil {
			res, err = a.createTask(ctx, p, fingerprint)
		}
	case OpUpdateTask:
		var p UpdatePayload
		if err = msg.Decode(&p); err == nil {
			res, err = a.updateTask(ctx, p, fingerprint)
		}
	case OpDeleteTask:
		var p DeletePayload
		if err = msg.Decode(&p); err == nil {
			res, err = a.deleteTask(ctx, p, fingerprint)
		}
	case OpSubmitTask:
		var p SubmitPayload
		if err = msg.Decode(&p); err == nil {
			res, err = a.submitTask(ctx, p, fingerprint)
		}
	case OpInvalidateCache:
		var p InvalidatePayload
		if err = msg.Decode(&p); err == nil {
			a.cache.InvalidateKeys(ctx, p.CacheKeys)
			res = &Result{Operation: OpInvalidateCache}
		}
	default:
		err = fmt.Errorf("%w: unknown operation %q", ErrMalformedMessage, msg.Operation)
	}
	if err != nil {
		return nil, classify(msg.Operation, err)
	}
	return res, nil
}

// inTx runs fn in a transaction that also records fingerprint in the
// ledger. A fingerprint already in the ledger yields a Duplicate result.
func (a *Applier) inTx(ctx context.Context, op Operation, fingerprint string, fn func(ctx context.Context, tx store.Gateway) (*Result, error)) (*Result, error) {
	var res *Result
	err := a.gw.InTx(ctx, func(ctx context.Context, tx store.Gateway) error {
		if err := tx.Ledger().Record(ctx, fingerprint, string(op)); err != nil {
			return err
		}
		var err error
		res, err = fn(ctx, tx)
		return err
	})
	if errors.Is(err, store.ErrAlreadyProcessed) {
		logger.FromContextOrDefault(ctx, a.logger).Info("message already applied",
			slog.String("operation", string(op)),
			slog.String("fingerprint", fingerprint))
		return &Result{Operation: op, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *Applier) createTask(ctx context.Context, p CreatePayload, fingerprint string) (*Result, error) {
	task, err := domain.NewTask(p.TeamID, p.SubjectID, p.Title, p.Description, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}

	res, err := a.inTx(ctx, OpCreateTask, fingerprint, func(ctx context.Context, tx store.Gateway) (*Result, error) {
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return nil, err
		}
		return &Result{Operation: OpCreateTask, Task: task}, nil
	})
	if err != nil || !res.changed() {
		return res, err
	}

	a.cache.InvalidateTask(ctx, task.TeamID, task.SubjectID, task.ID)
	a.notifier.EmitCreated(ctx, task.TeamID, task.SubjectID, task)
	logger.FromContextOrDefault(ctx, a.logger).Info("task created",
		slog.Int64("task_id", task.ID),
		slog.Int64("team_id", task.TeamID),
		slog.Int64("subject_id", task.SubjectID))
	return res, nil
}

func (a *Applier) updateTask(ctx context.Context, p UpdatePayload, fingerprint string) (*Result, error) {
	res, err := a.inTx(ctx, OpUpdateTask, fingerprint, func(ctx context.Context, tx store.Gateway) (*Result, error) {
		task, err := tx.Tasks().GetByID(ctx, p.TaskID)
		if errors.Is(err, store.ErrTaskNotFound) {
			return &Result{Operation: OpUpdateTask, NoOp: true}, nil
		}
		if err != nil {
			return nil, err
		}
		if err := p.Patch.Apply(task); err != nil {
			return nil, err
		}
		err = tx.Tasks().Update(ctx, task)
		if errors.Is(err, store.ErrTaskNotFound) {
			return &Result{Operation: OpUpdateTask, NoOp: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return &Result{Operation: OpUpdateTask, Task: task}, nil
	})
	if err != nil || !res.changed() {
		if res != nil && res.NoOp {
			logger.FromContextOrDefault(ctx, a.logger).Info("update skipped, task not found", slog.Int64("task_id", p.TaskID))
		}
		return res, err
	}

	task := res.Task
	a.cache.InvalidateTask(ctx, task.TeamID, task.SubjectID, task.ID)
	a.notifier.EmitUpdated(ctx, task.TeamID, task.SubjectID, task)
	logger.FromContextOrDefault(ctx, a.logger).Info("task updated", slog.Int64("task_id", task.ID))
	return res, nil
}

func (a *Applier) deleteTask(ctx context.Context, p DeletePayload, fingerprint string) (*Result, error) {
	res, err := a.inTx(ctx, OpDeleteTask, fingerprint, func(ctx context.Context, tx store.Gateway) (*Result, error) {
		task, err := tx.Tasks().GetByID(ctx, p.TaskID)
		if errors.Is(err, store.ErrTaskNotFound) {
			return &Result{Operation: OpDeleteTask, NoOp: true}, nil
		}
		if err != nil {
			return nil, err
		}
		if _, err := tx.Completions().DeleteByTask(ctx, task.ID); err != nil {
			return nil, err
		}
		err = tx.Tasks().Delete(ctx, task.ID)
		if errors.Is(err, store.ErrTaskNotFound) {
			return &Result{Operation: OpDeleteTask, NoOp: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return &Result{Operation: OpDeleteTask, Task: task}, nil
	})
	if err != nil || !res.changed() {
		if res != nil && res.NoOp {
			logger.FromContextOrDefault(ctx, a.logger).Info("delete skipped, task not found", slog.Int64("task_id", p.TaskID))
		}
		return res, err
	}

	task := res.Task
	a.cache.InvalidateTask(ctx, task.TeamID, task.SubjectID, task.ID)
	a.notifier.EmitDeleted(ctx, task.TeamID, task.SubjectID, task.ID)
	logger.FromContextOrDefault(ctx, a.logger).Info("task deleted", slog.Int64("task_id", task.ID))
	return res, nil
}

func (a *Applier) submitTask(ctx context.Context, p SubmitPayload, fingerprint string) (*Result, error) {
	completion := &domain.Completion{TaskID: p.TaskID, UserID: p.UserID, CompletedAt: a.now()}
	if err := completion.Validate(); err != nil {
		return nil, err
	}

	res, err := a.inTx(ctx, OpSubmitTask, fingerprint, func(ctx context.Context, tx store.Gateway) (*Result, error) {
		task, err := tx.Tasks().GetByID(ctx, p.TaskID)
		if err != nil {
			return nil, err
		}
		existing, err := tx.Completions().Find(ctx, p.TaskID, p.UserID)
		if err == nil {
			return &Result{Operation: OpSubmitTask, Task: task, Completion: existing, AlreadySubmitted: true}, nil
		}
		if !errors.Is(err, store.ErrCompletionNotFound) {
			return nil, err
		}
		err = tx.Completions().Create(ctx, completion)
		if errors.Is(err, store.ErrAlreadySubmitted) {
			return nil, errCompletionRace
		}
		if err != nil {
			return nil, err
		}
		return &Result{Operation: OpSubmitTask, Task: task, Completion: completion}, nil
	})
	if errors.Is(err, errCompletionRace) {
		res, err = &Result{Operation: OpSubmitTask, AlreadySubmitted: true}, nil
	}
	if err != nil || !res.changed() {
		if res != nil && res.AlreadySubmitted {
			logger.FromContextOrDefault(ctx, a.logger).Info("task already submitted",
				slog.Int64("task_id", p.TaskID),
				slog.Int64("user_id", p.UserID))
		}
		return res, err
	}

	task := res.Task
	a.cache.InvalidateTask(ctx, task.TeamID, task.SubjectID, task.ID)
	a.notifier.EmitSubmitted(ctx, task.TeamID, task.SubjectID, task.ID, p.UserID)
	logger.FromContextOrDefault(ctx, a.logger).Info("task submitted",
		slog.Int64("task_id", task.ID),
		slog.Int64("user_id", p.UserID),
		slog.Int64("completion_id", completion.ID))
	return res, nil
}

// PruneLedger removes ledger entries recorded before cutoff.
func (a *Applier) PruneLedger(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := a.gw.Ledger().PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, classify("PRUNE_LEDGER", err)
	}
	return n, nil
}
