package repository

import (
	"context"
	"time"

	"seatbridge/internal/domain/booking"
	"seatbridge/internal/infra"
	"seatbridge/internal/infra/db"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BookingRepository is the write side of the booking store. Local
// admission is decided here: the partial unique index on
// (event_key, seat_id) WHERE occupied rejects the second writer, and the
// violation surfaces as KindDuplicateKey. A prior read-check can never be
// the correctness guard because it races with concurrent inserts.
type BookingRepository struct{}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{}
}

func (r *BookingRepository) InsertOccupied(ctx context.Context, dbtx db.DBTX, b *booking.Booking) (uuid.UUID, error) {
	const query = `
		INSERT INTO bookings (
			id, event_key, seat_id, member_id, order_ref,
			occupied, booked_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := dbtx.Exec(ctx, query,
		b.ID(),
		b.EventKey(),
		b.SeatID(),
		b.MemberID(),
		b.OrderRef(),
		b.Occupied(),
		b.BookedAt(),
		b.CreatedAt(),
		b.UpdatedAt(),
	)
	if err != nil {
		return uuid.Nil, infra.ClassifyPgErr("failed to insert occupied booking", err)
	}

	return b.ID(), nil
}

func (r *BookingRepository) ReleaseByID(ctx context.Context, dbtx db.DBTX, id uuid.UUID, now time.Time) error {
	const query = `
		UPDATE bookings
		SET occupied = FALSE, booked_at = NULL, updated_at = $2
		WHERE id = $1 AND occupied
	`

	tag, err := dbtx.Exec(ctx, query, id, now)
	if err != nil {
		return infra.ClassifyPgErr("failed to release booking", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.NewRepoErr(infra.KindNotFound, "occupied booking not found")
	}

	return nil
}

// ReleaseByOrderRef frees whichever of the given seats are still
// occupied under the order ref. Used by the reconciliation sweeper,
// where the booking id is not known and matching zero rows is normal.
func (r *BookingRepository) ReleaseByOrderRef(ctx context.Context, dbtx db.DBTX, eventKey string, seatIDs []string, orderRef uuid.UUID, now time.Time) (int64, error) {
	const query = `
		UPDATE bookings
		SET occupied = FALSE, booked_at = NULL, updated_at = $4
		WHERE event_key = $1 AND seat_id = ANY($2) AND order_ref = $3 AND occupied
	`

	tag, err := dbtx.Exec(ctx, query, eventKey, seatIDs, orderRef, now)
	if err != nil {
		return 0, infra.ClassifyPgErr("failed to release bookings by order ref", err)
	}

	return tag.RowsAffected(), nil
}

func (r *BookingRepository) FindOccupied(ctx context.Context, dbtx db.DBTX, eventKey string, seatIDs []string) ([]shared.BookingSnapshot, error) {
	const query = `
		SELECT id, event_key, seat_id, member_id, order_ref,
		       occupied, booked_at, created_at, updated_at
		FROM bookings
		WHERE event_key = $1 AND seat_id = ANY($2) AND occupied
	`

	rows, err := dbtx.Query(ctx, query, eventKey, seatIDs)
	if err != nil {
		return nil, infra.ClassifyPgErr("failed to find occupied seats", err)
	}
	defer rows.Close()

	var occupied []shared.BookingSnapshot
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, infra.ClassifyPgErr("failed to scan occupied seat", err)
		}
		occupied = append(occupied, shared.BookingSnapshot{
			ID:       b.ID(),
			EventKey: b.EventKey(),
			SeatID:   b.SeatID(),
			MemberID: b.MemberID(),
			OrderRef: b.OrderRef(),
			Occupied: b.Occupied(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyPgErr("failed to iterate occupied seats", err)
	}

	return occupied, nil
}

// scanBooking rehydrates a full row through the domain constructor so the
// write side always works with entity state, not raw columns.
func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		id, memberID, orderRef uuid.UUID
		eventKey, seatID       string
		occupied               bool
		bookedAt               *time.Time
		createdAt, updatedAt   time.Time
	)
	if err := row.Scan(
		&id, &eventKey, &seatID, &memberID, &orderRef,
		&occupied, &bookedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	return booking.ReconstructBooking(id, eventKey, seatID, memberID, orderRef, occupied, bookedAt, createdAt, updatedAt), nil
}
