package commands

import (
	"context"
	"strings"

	"seatbridge/internal/pkg/errs"

	"github.com/google/uuid"
)

var (
	ErrMemberNotFound         = errs.New("member not found")
	ErrBookingNotFound        = errs.New("booking not found")
	ErrSeatsAlreadyBooked     = errs.New("seats already booked")
	ErrNoSeatsRequested       = errs.New("no seats requested")
	ErrExternalService        = errs.New("external reservation service failed")
	ErrLocalPersistence       = errs.New("local persistence failed")
	ErrReconciliationRequired = errs.New("reconciliation required")
)

// MemberDirectory validates member references. Member management itself
// belongs to the CRUD side of the application; this subsystem only needs
// existence checks.
type MemberDirectory interface {
	Exists(ctx context.Context, memberID uuid.UUID) (bool, error)
}

// SeatConflictError carries the seats that could not be claimed. It
// matches ErrSeatsAlreadyBooked under errors.Is so handlers can switch
// on the kind and still extract the seat list with errors.As.
type SeatConflictError struct {
	SeatIDs []string
}

func (e *SeatConflictError) Error() string {
	return "seats already booked: " + strings.Join(e.SeatIDs, ", ")
}

func (e *SeatConflictError) Is(target error) bool {
	return target == ErrSeatsAlreadyBooked
}

// ReconciliationRequiredError marks an outcome the caller cannot resolve
// by retrying with different input: the local and external systems may
// disagree about the listed seats until the sweeper repairs them.
type ReconciliationRequiredError struct {
	EventKey string
	SeatIDs  []string
}

func (e *ReconciliationRequiredError) Error() string {
	return "reconciliation required for event " + e.EventKey + ", seats " + strings.Join(e.SeatIDs, ", ")
}

func (e *ReconciliationRequiredError) Is(target error) bool {
	return target == ErrReconciliationRequired
}
