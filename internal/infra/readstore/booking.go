package readstore

import (
	"context"
	"time"

	"seatbridge/internal/infra"
	"seatbridge/internal/infra/db"
	"seatbridge/internal/usecase/queries"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
)

const bookingColumns = `
	id, event_key, seat_id, member_id, order_ref,
	occupied, booked_at, created_at, updated_at
`

type BookingReadStore struct {
	db db.DBTX
}

func NewBookingReadStore(dbtx db.DBTX) *BookingReadStore {
	return &BookingReadStore{db: dbtx}
}

func (r *BookingReadStore) FindByID(ctx context.Context, id uuid.UUID) (*queries.BookingView, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	view, err := scanBookingView(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, infra.ClassifyPgErr("failed to find booking by ID", err)
	}

	return view, nil
}

func (r *BookingReadStore) ListOccupied(ctx context.Context, eventKey string) ([]*queries.BookingView, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE occupied`
	args := []any{}
	if eventKey != "" {
		query += ` AND event_key = $1`
		args = append(args, eventKey)
	}
	query += ` ORDER BY booked_at, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.ClassifyPgErr("failed to list occupied bookings", err)
	}
	defer rows.Close()

	var views []*queries.BookingView
	for rows.Next() {
		view, err := scanBookingView(rows)
		if err != nil {
			return nil, infra.ClassifyPgErr("failed to scan booking", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyPgErr("failed to iterate bookings", err)
	}

	return views, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookingView(row rowScanner) (*queries.BookingView, error) {
	var (
		view     queries.BookingView
		bookedAt *time.Time
	)
	if err := row.Scan(
		&view.ID, &view.EventKey, &view.SeatID, &view.MemberID,
		&view.OrderRef, &view.Occupied, &bookedAt,
		&view.CreatedAt, &view.UpdatedAt,
	); err != nil {
		return nil, err
	}
	view.BookedAt = bookedAt
	return &view, nil
}

// commandReads backs the write side's advisory pre-checks.
type commandReads struct {
	db db.DBTX
}

func NewCommandReads(dbtx db.DBTX) shared.CommandReads {
	return &commandReads{db: dbtx}
}

func (r *commandReads) OccupiedSeats(ctx context.Context, eventKey string, seatIDs []string) ([]string, error) {
	const query = `
		SELECT seat_id FROM bookings
		WHERE event_key = $1 AND seat_id = ANY($2) AND occupied
	`

	rows, err := r.db.Query(ctx, query, eventKey, seatIDs)
	if err != nil {
		return nil, infra.ClassifyPgErr("failed to read occupied seats", err)
	}
	defer rows.Close()

	var occupied []string
	for rows.Next() {
		var seatID string
		if err := rows.Scan(&seatID); err != nil {
			return nil, infra.ClassifyPgErr("failed to scan occupied seat", err)
		}
		occupied = append(occupied, seatID)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyPgErr("failed to iterate occupied seats", err)
	}

	return occupied, nil
}

func (r *commandReads) OccupiedBookings(ctx context.Context, eventKey string, seatIDs []string) ([]shared.BookingSnapshot, error) {
	const query = `
		SELECT id, event_key, seat_id, member_id, order_ref FROM bookings
		WHERE event_key = $1 AND seat_id = ANY($2) AND occupied
	`

	rows, err := r.db.Query(ctx, query, eventKey, seatIDs)
	if err != nil {
		return nil, infra.ClassifyPgErr("failed to read occupied bookings", err)
	}
	defer rows.Close()

	var occupied []shared.BookingSnapshot
	for rows.Next() {
		snap := shared.BookingSnapshot{Occupied: true}
		if err := rows.Scan(&snap.ID, &snap.EventKey, &snap.SeatID, &snap.MemberID, &snap.OrderRef); err != nil {
			return nil, infra.ClassifyPgErr("failed to scan occupied booking", err)
		}
		occupied = append(occupied, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyPgErr("failed to iterate occupied bookings", err)
	}

	return occupied, nil
}

func (r *commandReads) BookingByID(ctx context.Context, id uuid.UUID) (*shared.BookingSnapshot, error) {
	const query = `
		SELECT id, event_key, seat_id, member_id, order_ref, occupied
		FROM bookings
		WHERE id = $1
	`

	var snap shared.BookingSnapshot
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&snap.ID, &snap.EventKey, &snap.SeatID,
		&snap.MemberID, &snap.OrderRef, &snap.Occupied,
	); err != nil {
		return nil, infra.ClassifyPgErr("failed to read booking snapshot", err)
	}

	return &snap, nil
}
