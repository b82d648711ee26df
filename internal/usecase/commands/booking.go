package commands

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"seatbridge/internal/domain/booking"
	"seatbridge/internal/infra"
	"seatbridge/internal/infra/extern"
	"seatbridge/internal/pkg/clock"
	"seatbridge/internal/pkg/errs"
	"seatbridge/internal/usecase/queries"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
)

type UpdateBookingRequest struct {
	EventKey *string
	SeatIDs  []string
	MemberID *uuid.UUID
}

type BookingCommands interface {
	Book(ctx context.Context, eventKey string, seatIDs []string, memberID uuid.UUID) ([]*queries.BookingView, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateBookingRequest) ([]*queries.BookingView, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// bookingUseCaseImpl coordinates the booking saga across two
// independently-failing systems: the external seat-allocation authority
// (ground truth for occupancy) and the local booking store (system of
// record). Local reads happen first, the external commit happens outside
// any local transaction, and local persistence runs in its own
// transaction afterward, with compensating releases on divergence.
type bookingUseCaseImpl struct {
	uow       shared.UnitOfWork
	authority shared.ReservationAuthority
	members   MemberDirectory
	waker     shared.ReconcileWaker
	clock     clock.Clock
}

func NewBookingCommands(
	uow shared.UnitOfWork,
	authority shared.ReservationAuthority,
	members MemberDirectory,
	waker shared.ReconcileWaker,
	clk clock.Clock,
) BookingCommands {
	return &bookingUseCaseImpl{
		uow:       uow,
		authority: authority,
		members:   members,
		waker:     waker,
		clock:     clk,
	}
}

func (c *bookingUseCaseImpl) Book(ctx context.Context, eventKey string, seatIDs []string, memberID uuid.UUID) ([]*queries.BookingView, error) {
	eventKey = strings.TrimSpace(eventKey)
	seatIDs = normalizeSeatIDs(seatIDs)
	if eventKey == "" || len(seatIDs) == 0 {
		return nil, ErrNoSeatsRequested
	}

	if err := c.validateMember(ctx, memberID); err != nil {
		return nil, err
	}

	// Advisory pre-check: avoids an external call that is doomed to be
	// compensated. The unique index remains the actual arbiter.
	occupied, err := c.uow.CommandReads().OccupiedSeats(ctx, eventKey, seatIDs)
	if err != nil {
		return nil, errs.Mark(err, ErrLocalPersistence)
	}
	if len(occupied) > 0 {
		return nil, &SeatConflictError{SeatIDs: occupied}
	}

	orderRef := uuid.New()
	if err := c.authority.Book(ctx, eventKey, seatIDs, orderRef); err != nil {
		return nil, c.classifyBookFailure(ctx, err, eventKey, seatIDs, memberID, orderRef)
	}

	// The authority committed. From here on the caller must not observe
	// a cancellation-shaped abort that would leave externally-held seats
	// without a local record.
	ctx = context.WithoutCancel(ctx)

	views, err := c.persistOccupancy(ctx, eventKey, seatIDs, memberID, orderRef)
	if err != nil {
		return nil, c.compensate(ctx, err, eventKey, seatIDs, memberID, orderRef)
	}

	return views, nil
}

func (c *bookingUseCaseImpl) Update(ctx context.Context, id uuid.UUID, req UpdateBookingRequest) ([]*queries.BookingView, error) {
	snap, err := c.loadOccupied(ctx, id)
	if err != nil {
		return nil, err
	}

	memberID := snap.MemberID
	if req.MemberID != nil {
		memberID = *req.MemberID
		if err := c.validateMember(ctx, memberID); err != nil {
			return nil, err
		}
	}

	eventKey := snap.EventKey
	if req.EventKey != nil && strings.TrimSpace(*req.EventKey) != "" {
		eventKey = strings.TrimSpace(*req.EventKey)
	}

	seatIDs := normalizeSeatIDs(req.SeatIDs)
	seatsChanged := len(seatIDs) > 0 &&
		!(eventKey == snap.EventKey && len(seatIDs) == 1 && seatIDs[0] == snap.SeatID)

	if !seatsChanged {
		return c.reassignMember(ctx, snap, memberID)
	}

	// New seats are secured externally and locally BEFORE any old seat
	// is let go, so no window exists where the member holds nothing.
	// Seats already held under this booking's order ref stay held and
	// are never re-booked; only the genuinely new ones are claimed.
	rows, err := c.uow.CommandReads().OccupiedBookings(ctx, eventKey, seatIDs)
	if err != nil {
		return nil, errs.Mark(err, ErrLocalPersistence)
	}
	holders := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		holders[row.SeatID] = row.OrderRef
	}

	var conflicts, newSeats []string
	for _, seatID := range seatIDs {
		ref, taken := holders[seatID]
		switch {
		case !taken:
			newSeats = append(newSeats, seatID)
		case ref != snap.OrderRef:
			conflicts = append(conflicts, seatID)
		}
	}
	if len(conflicts) > 0 {
		return nil, &SeatConflictError{SeatIDs: conflicts}
	}

	if len(newSeats) > 0 {
		if err := c.authority.Book(ctx, eventKey, newSeats, snap.OrderRef); err != nil {
			return nil, c.classifyBookFailure(ctx, err, eventKey, newSeats, memberID, snap.OrderRef)
		}
	}

	ctx = context.WithoutCancel(ctx)

	ownKept := eventKey == snap.EventKey && slices.Contains(seatIDs, snap.SeatID)
	toInsert := newSeats
	if ownKept {
		// The booking's own row is rewritten so the member follows the
		// update; its seat never leaves the authority's hold.
		toInsert = append([]string{snap.SeatID}, newSeats...)
	}

	views, err := c.transferOccupancy(ctx, snap, eventKey, toInsert, memberID, snap.OrderRef)
	if err != nil {
		if len(newSeats) == 0 {
			if infra.IsKind(err, infra.KindNotFound) {
				return nil, ErrBookingNotFound
			}
			return nil, errs.Mark(err, ErrLocalPersistence)
		}
		return nil, c.compensate(ctx, err, eventKey, newSeats, memberID, snap.OrderRef)
	}

	if !ownKept {
		// Old external occupancy is released last. A failure here leaves
		// the booking in its new state; the stale hold is repaired by the
		// sweeper rather than failing the whole update.
		if err := c.authority.Release(ctx, snap.EventKey, []string{snap.SeatID}); err != nil {
			slog.Warn("failed to release old seat after update",
				"event_key", snap.EventKey,
				"seat_id", snap.SeatID,
				"error", err.Error())
			c.recordReconciliation(ctx, shared.ReconcileStaleRelease, snap.EventKey, []string{snap.SeatID}, snap.MemberID, snap.OrderRef)
		}
	}

	return views, nil
}

func (c *bookingUseCaseImpl) Release(ctx context.Context, id uuid.UUID) error {
	snap, err := c.loadOccupied(ctx, id)
	if err != nil {
		return err
	}

	// External release first. The local row must stay visible as
	// occupied until the authority confirms, so the local view never
	// claims a seat is free while the authority still holds it.
	if err := c.authority.Release(ctx, snap.EventKey, []string{snap.SeatID}); err != nil {
		if errors.Is(err, extern.ErrTimeout) {
			c.recordReconciliation(ctx, shared.ReconcileStaleRelease, snap.EventKey, []string{snap.SeatID}, snap.MemberID, snap.OrderRef)
			return &ReconciliationRequiredError{EventKey: snap.EventKey, SeatIDs: []string{snap.SeatID}}
		}
		return errs.Mark(err, ErrExternalService)
	}

	ctx = context.WithoutCancel(ctx)

	err = c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Bookings().ReleaseByID(ctx, tx.DB(), id, c.clock.Now())
	})
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			// Row vanished between snapshot and release; the seat is
			// free on both sides either way.
			return nil
		}
		// External side already released; the sweeper will align the
		// local row.
		c.recordReconciliation(ctx, shared.ReconcileStaleRelease, snap.EventKey, []string{snap.SeatID}, snap.MemberID, snap.OrderRef)
		return &ReconciliationRequiredError{EventKey: snap.EventKey, SeatIDs: []string{snap.SeatID}}
	}

	return nil
}

func (c *bookingUseCaseImpl) validateMember(ctx context.Context, memberID uuid.UUID) error {
	exists, err := c.members.Exists(ctx, memberID)
	if err != nil {
		return errs.Mark(err, ErrLocalPersistence)
	}
	if !exists {
		return ErrMemberNotFound
	}
	return nil
}

func (c *bookingUseCaseImpl) loadOccupied(ctx context.Context, id uuid.UUID) (*shared.BookingSnapshot, error) {
	snap, err := c.uow.CommandReads().BookingByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, errs.Mark(err, ErrLocalPersistence)
	}
	if !snap.Occupied {
		return nil, ErrBookingNotFound
	}
	return snap, nil
}

// classifyBookFailure maps an external Book failure onto the error
// taxonomy. A timeout is an AMBIGUOUS outcome: the authority may hold
// the seats, so the attempt is recorded for reconciliation instead of
// being reported as a definite failure.
func (c *bookingUseCaseImpl) classifyBookFailure(ctx context.Context, err error, eventKey string, seatIDs []string, memberID, orderRef uuid.UUID) error {
	switch {
	case errors.Is(err, extern.ErrSeatsUnavailable):
		return &SeatConflictError{SeatIDs: seatIDs}
	case errors.Is(err, extern.ErrTimeout):
		c.recordReconciliation(context.WithoutCancel(ctx), shared.ReconcileAmbiguousBook, eventKey, seatIDs, memberID, orderRef)
		return &ReconciliationRequiredError{EventKey: eventKey, SeatIDs: seatIDs}
	default:
		return errs.Mark(err, ErrExternalService)
	}
}

// persistOccupancy writes one occupied row per seat in a single local
// transaction; the store never partially applies a multi-seat booking.
func (c *bookingUseCaseImpl) persistOccupancy(ctx context.Context, eventKey string, seatIDs []string, memberID, orderRef uuid.UUID) ([]*queries.BookingView, error) {
	var views []*queries.BookingView

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		views = views[:0]
		for _, seatID := range seatIDs {
			b, err := booking.NewBooking(eventKey, seatID, memberID, orderRef, c.clock.Now())
			if err != nil {
				return err
			}
			if _, err := tx.Bookings().InsertOccupied(ctx, tx.DB(), b); err != nil {
				return err
			}
			views = append(views, viewFromEntity(b))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return views, nil
}

// transferOccupancy releases the old row and inserts the new rows within
// one local transaction.
func (c *bookingUseCaseImpl) transferOccupancy(ctx context.Context, snap *shared.BookingSnapshot, eventKey string, seatIDs []string, memberID, orderRef uuid.UUID) ([]*queries.BookingView, error) {
	var views []*queries.BookingView

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		views = views[:0]
		if err := tx.Bookings().ReleaseByID(ctx, tx.DB(), snap.ID, c.clock.Now()); err != nil {
			return err
		}
		for _, seatID := range seatIDs {
			b, err := booking.NewBooking(eventKey, seatID, memberID, orderRef, c.clock.Now())
			if err != nil {
				return err
			}
			if _, err := tx.Bookings().InsertOccupied(ctx, tx.DB(), b); err != nil {
				return err
			}
			views = append(views, viewFromEntity(b))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return views, nil
}

func (c *bookingUseCaseImpl) reassignMember(ctx context.Context, snap *shared.BookingSnapshot, memberID uuid.UUID) ([]*queries.BookingView, error) {
	// No seat change means no external effect: the authority ties
	// occupancy to the order ref, not the member. Local-only transfer.
	views, err := c.transferOccupancy(ctx, snap, snap.EventKey, []string{snap.SeatID}, memberID, snap.OrderRef)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, errs.Mark(err, ErrLocalPersistence)
	}
	return views, nil
}

// compensate undoes the external commit after a local persistence
// failure. A local duplicate-key conflict is the race the advisory
// pre-check cannot catch: the authority granted seats the local store
// already accounts to someone else, so the external claim is rolled
// back and the caller gets a conflict. If the compensating release
// itself fails, the divergence is recorded for the sweeper and
// surfaced, never swallowed.
func (c *bookingUseCaseImpl) compensate(ctx context.Context, cause error, eventKey string, seatIDs []string, memberID, orderRef uuid.UUID) error {
	releaseErr := c.authority.Release(ctx, eventKey, seatIDs)
	if releaseErr != nil {
		slog.Error("compensating release failed",
			"event_key", eventKey,
			"seat_ids", seatIDs,
			"error", releaseErr.Error())
		c.recordReconciliation(ctx, shared.ReconcileStaleRelease, eventKey, seatIDs, memberID, orderRef)
		return &ReconciliationRequiredError{EventKey: eventKey, SeatIDs: seatIDs}
	}

	if infra.IsKind(cause, infra.KindDuplicateKey) {
		return &SeatConflictError{SeatIDs: seatIDs}
	}
	return errs.Mark(cause, ErrLocalPersistence)
}

func (c *bookingUseCaseImpl) recordReconciliation(ctx context.Context, kind shared.ReconciliationKind, eventKey string, seatIDs []string, memberID, orderRef uuid.UUID) {
	now := c.clock.Now()
	task := &shared.ReconciliationTask{
		ID:        uuid.New(),
		Kind:      kind,
		EventKey:  eventKey,
		SeatIDs:   seatIDs,
		MemberID:  memberID,
		OrderRef:  orderRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Reconciliations().Enqueue(ctx, tx.DB(), task)
	})
	if err != nil {
		// The periodic sweep cannot find an unrecorded task; all that
		// remains is to make the loss loud.
		slog.Error("failed to record reconciliation task",
			"kind", string(kind),
			"event_key", eventKey,
			"seat_ids", seatIDs,
			"error", err.Error())
		return
	}

	c.waker.Wake(ctx)
}

func normalizeSeatIDs(seatIDs []string) []string {
	normalized := make([]string, 0, len(seatIDs))
	for _, s := range seatIDs {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(normalized, s) {
			continue
		}
		normalized = append(normalized, s)
	}
	return normalized
}

func viewFromEntity(b *booking.Booking) *queries.BookingView {
	return &queries.BookingView{
		ID:        b.ID(),
		EventKey:  b.EventKey(),
		SeatID:    b.SeatID(),
		MemberID:  b.MemberID(),
		OrderRef:  b.OrderRef(),
		Occupied:  b.Occupied(),
		BookedAt:  b.BookedAt(),
		CreatedAt: b.CreatedAt(),
		UpdatedAt: b.UpdatedAt(),
	}
}
