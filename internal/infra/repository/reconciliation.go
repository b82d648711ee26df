package repository

import (
	"context"
	"time"

	"seatbridge/internal/infra"
	"seatbridge/internal/infra/db"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
)

// ReconciliationRepository persists cross-system divergence tasks so they
// survive restarts. A task records everything the sweeper needs to
// re-query the authority and repair the local store.
type ReconciliationRepository struct{}

func NewReconciliationRepository() *ReconciliationRepository {
	return &ReconciliationRepository{}
}

func (r *ReconciliationRepository) Enqueue(ctx context.Context, dbtx db.DBTX, task *shared.ReconciliationTask) error {
	const query = `
		INSERT INTO reconciliation_tasks (
			id, kind, event_key, seat_ids, member_id, order_ref,
			attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := dbtx.Exec(ctx, query,
		task.ID,
		string(task.Kind),
		task.EventKey,
		task.SeatIDs,
		task.MemberID,
		task.OrderRef,
		task.Attempts,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return infra.ClassifyPgErr("failed to enqueue reconciliation task", err)
	}

	return nil
}

func (r *ReconciliationRepository) ListDue(ctx context.Context, dbtx db.DBTX, limit int) ([]shared.ReconciliationTask, error) {
	const query = `
		SELECT id, kind, event_key, seat_ids, member_id, order_ref,
		       attempts, created_at, updated_at
		FROM reconciliation_tasks
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := dbtx.Query(ctx, query, limit)
	if err != nil {
		return nil, infra.ClassifyPgErr("failed to list reconciliation tasks", err)
	}
	defer rows.Close()

	var tasks []shared.ReconciliationTask
	for rows.Next() {
		var (
			task shared.ReconciliationTask
			kind string
		)
		if err := rows.Scan(
			&task.ID, &kind, &task.EventKey, &task.SeatIDs,
			&task.MemberID, &task.OrderRef, &task.Attempts,
			&task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, infra.ClassifyPgErr("failed to scan reconciliation task", err)
		}
		task.Kind = shared.ReconciliationKind(kind)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyPgErr("failed to iterate reconciliation tasks", err)
	}

	return tasks, nil
}

func (r *ReconciliationRepository) MarkAttempt(ctx context.Context, dbtx db.DBTX, id uuid.UUID, now time.Time) error {
	const query = `
		UPDATE reconciliation_tasks
		SET attempts = attempts + 1, updated_at = $2
		WHERE id = $1
	`

	if _, err := dbtx.Exec(ctx, query, id, now); err != nil {
		return infra.ClassifyPgErr("failed to mark reconciliation attempt", err)
	}

	return nil
}

func (r *ReconciliationRepository) Delete(ctx context.Context, dbtx db.DBTX, id uuid.UUID) error {
	const query = `DELETE FROM reconciliation_tasks WHERE id = $1`

	if _, err := dbtx.Exec(ctx, query, id); err != nil {
		return infra.ClassifyPgErr("failed to delete reconciliation task", err)
	}

	return nil
}
