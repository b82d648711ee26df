package worker

import (
	"context"
	"log/slog"
	"time"

	"seatbridge/internal/domain/booking"
	"seatbridge/internal/infra"
	"seatbridge/internal/pkg/clock"
	"seatbridge/internal/pkg/config"
	"seatbridge/internal/pkg/errs"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
)

// Waiter blocks until a wake signal arrives or the timeout elapses, so a
// single call doubles as the periodic tick and the on-demand nudge.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
}

// Reconciler repairs divergence between the external seat-allocation
// authority and the local booking store. Divergence is recorded as
// durable tasks by the write side; the sweeper drains them, querying the
// authority for ground truth and converging the local store toward it.
// Every repair step is idempotent, so a crash mid-sweep only means the
// task runs again.
type Reconciler struct {
	uow       shared.UnitOfWork
	authority shared.ReservationAuthority
	waiter    Waiter
	clock     clock.Clock
	interval  time.Duration
	batchSize int
}

func NewReconciler(
	uow shared.UnitOfWork,
	authority shared.ReservationAuthority,
	waiter Waiter,
	clk clock.Clock,
	cfg config.ReconcilerConfig,
) *Reconciler {
	return &Reconciler{
		uow:       uow,
		authority: authority,
		waiter:    waiter,
		clock:     clk,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Start runs the sweep loop until the context is cancelled. An initial
// sweep drains tasks left over from before the last shutdown.
func (r *Reconciler) Start(ctx context.Context) {
	r.Sweep(ctx)

	for {
		if _, err := r.waiter.Wait(ctx, r.interval); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("reconciler wake wait failed, falling back to timer", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.interval):
			}
		}
		if ctx.Err() != nil {
			return
		}
		r.Sweep(ctx)
	}
}

// Sweep processes one batch of due tasks. Failed tasks stay queued with
// an incremented attempt count and are retried on later sweeps.
func (r *Reconciler) Sweep(ctx context.Context) {
	var tasks []shared.ReconciliationTask
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		var err error
		tasks, err = tx.Reconciliations().ListDue(ctx, tx.DB(), r.batchSize)
		return err
	})
	if err != nil {
		slog.Error("failed to list reconciliation tasks", "error", err.Error())
		return
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if err := r.resolve(ctx, task); err != nil {
			slog.Warn("reconciliation task failed, will retry",
				"task_id", task.ID,
				"kind", string(task.Kind),
				"event_key", task.EventKey,
				"attempts", task.Attempts+1,
				"error", err.Error())
			r.markAttempt(ctx, task.ID)
			continue
		}
		r.deleteTask(ctx, task.ID)
	}
}

func (r *Reconciler) resolve(ctx context.Context, task shared.ReconciliationTask) error {
	switch task.Kind {
	case shared.ReconcileAmbiguousBook:
		return r.resolveAmbiguousBook(ctx, task)
	case shared.ReconcileStaleRelease:
		return r.resolveStaleRelease(ctx, task)
	default:
		// Unknown kinds are dropped rather than retried forever.
		slog.Error("unknown reconciliation task kind", "task_id", task.ID, "kind", string(task.Kind))
		return nil
	}
}

// resolveAmbiguousBook settles a booking whose external commit timed
// out. The authority is queried for ground truth:
//   - it holds every seat under the task's order ref: the commit went
//     through, so the missing local rows are written;
//   - it holds none of them under that ref: the commit never happened
//     and there is nothing to repair;
//   - it holds only some: a partial grant must not stand, so the held
//     seats are released externally.
func (r *Reconciler) resolveAmbiguousBook(ctx context.Context, task shared.ReconciliationTask) error {
	occupancy, err := r.authority.Occupancy(ctx, task.EventKey, task.SeatIDs)
	if err != nil {
		return errs.Wrap(err, "failed to query authority occupancy")
	}

	var ours []string
	for _, seatID := range task.SeatIDs {
		if occupancy[seatID] == task.OrderRef {
			ours = append(ours, seatID)
		}
	}

	switch {
	case len(ours) == 0:
		return nil

	case len(ours) == len(task.SeatIDs):
		if err := r.completeLocalBooking(ctx, task); err != nil {
			if infra.IsKind(err, infra.KindDuplicateKey) {
				// A rival row claimed a seat locally while the external
				// hold sat under our ref. The external claim loses.
				slog.Warn("releasing confirmed external hold over local conflict",
					"task_id", task.ID,
					"event_key", task.EventKey,
					"seat_ids", task.SeatIDs)
				return r.releaseExternal(ctx, task.EventKey, ours)
			}
			return err
		}
		slog.Info("completed ambiguous booking",
			"task_id", task.ID,
			"event_key", task.EventKey,
			"seat_ids", task.SeatIDs)
		return nil

	default:
		slog.Warn("releasing partial external hold",
			"task_id", task.ID,
			"event_key", task.EventKey,
			"held_seats", ours)
		return r.releaseExternal(ctx, task.EventKey, ours)
	}
}

// resolveStaleRelease frees seats the authority still holds under the
// task's order ref after the local record moved on, then releases any
// local rows still occupied under the same ref. Seats the authority
// holds under a different ref were rebooked by someone else; their hold
// must survive the sweep. Both steps tolerate already-free seats.
func (r *Reconciler) resolveStaleRelease(ctx context.Context, task shared.ReconciliationTask) error {
	occupancy, err := r.authority.Occupancy(ctx, task.EventKey, task.SeatIDs)
	if err != nil {
		return errs.Wrap(err, "failed to query authority occupancy")
	}

	var ours []string
	for _, seatID := range task.SeatIDs {
		if occupancy[seatID] == task.OrderRef {
			ours = append(ours, seatID)
		}
	}

	if err := r.releaseExternal(ctx, task.EventKey, ours); err != nil {
		return err
	}

	return r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		released, err := tx.Bookings().ReleaseByOrderRef(ctx, tx.DB(), task.EventKey, task.SeatIDs, task.OrderRef, r.clock.Now())
		if err != nil {
			return err
		}
		if released > 0 {
			slog.Info("released stale local bookings",
				"task_id", task.ID,
				"event_key", task.EventKey,
				"released", released)
		}
		return nil
	})
}

// completeLocalBooking writes the rows the timed-out booking never
// persisted, preserving the all-or-nothing shape of a multi-seat claim.
// Seats already recorded under the task's order ref are skipped so a
// retried task does not trip over its own earlier progress.
func (r *Reconciler) completeLocalBooking(ctx context.Context, task shared.ReconciliationTask) error {
	return r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		existing, err := tx.Bookings().FindOccupied(ctx, tx.DB(), task.EventKey, task.SeatIDs)
		if err != nil {
			return err
		}
		// Only rows already written under this task's order ref count as
		// progress. A rival's row must surface as a duplicate instead.
		done := make(map[string]bool, len(existing))
		for _, row := range existing {
			if row.OrderRef == task.OrderRef {
				done[row.SeatID] = true
			}
		}

		for _, seatID := range task.SeatIDs {
			if done[seatID] {
				continue
			}
			b, err := booking.NewBooking(task.EventKey, seatID, task.MemberID, task.OrderRef, r.clock.Now())
			if err != nil {
				return err
			}
			if _, err := tx.Bookings().InsertOccupied(ctx, tx.DB(), b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Reconciler) releaseExternal(ctx context.Context, eventKey string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	if err := r.authority.Release(ctx, eventKey, seatIDs); err != nil {
		return errs.Wrap(err, "failed to release seats at authority")
	}
	return nil
}

func (r *Reconciler) markAttempt(ctx context.Context, id uuid.UUID) {
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Reconciliations().MarkAttempt(ctx, tx.DB(), id, r.clock.Now())
	})
	if err != nil {
		slog.Error("failed to mark reconciliation attempt", "task_id", id, "error", err.Error())
	}
}

func (r *Reconciler) deleteTask(ctx context.Context, id uuid.UUID) {
	err := r.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Reconciliations().Delete(ctx, tx.DB(), id)
	})
	if err != nil {
		slog.Error("failed to delete reconciliation task", "task_id", id, "error", err.Error())
	}
}
