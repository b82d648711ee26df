//go:build unit

package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"seatbridge/internal/infra/extern"
	"seatbridge/internal/pkg/clock"
	"seatbridge/internal/usecase/commands"
	"seatbridge/internal/usecase/shared"
	"seatbridge/tests/fake"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *fake.Store
	authority *fake.Authority
	members   *fake.Members
	waker     *fake.Waker
	clock     *clock.MockClock
	memberID  uuid.UUID
	cmd       commands.BookingCommands
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memberID := uuid.New()
	f := &fixture{
		store:     fake.NewStore(),
		authority: fake.NewAuthority(),
		members:   &fake.Members{Known: map[uuid.UUID]bool{memberID: true}},
		waker:     &fake.Waker{},
		clock:     clock.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		memberID:  memberID,
	}
	f.cmd = commands.NewBookingCommands(fake.NewUoW(f.store), f.authority, f.members, f.waker, f.clock)
	return f
}

func TestBook(t *testing.T) {
	ctx := context.Background()

	t.Run("claims seats externally then persists locally", func(t *testing.T) {
		f := newFixture(t)

		views, err := f.cmd.Book(ctx, "concert-42", []string{"A1", "A2"}, f.memberID)
		require.NoError(t, err)
		require.Len(t, views, 2)

		assert.Equal(t, views[0].OrderRef, views[1].OrderRef, "multi-seat booking shares one order ref")
		for _, v := range views {
			assert.Equal(t, "concert-42", v.EventKey)
			assert.True(t, v.Occupied)
			assert.Equal(t, f.memberID, v.MemberID)
			require.NotNil(t, v.BookedAt)
		}
		assert.True(t, f.authority.Holds("concert-42", "A1"))
		assert.True(t, f.authority.Holds("concert-42", "A2"))
		assert.Len(t, f.store.OccupiedRows(), 2)
	})

	t.Run("unknown member fails before any external call", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, uuid.New())
		require.ErrorIs(t, err, commands.ErrMemberNotFound)
		assert.Empty(t, f.authority.CallLog())
	})

	t.Run("empty seat list is rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.cmd.Book(ctx, "concert-42", []string{" ", ""}, f.memberID)
		require.ErrorIs(t, err, commands.ErrNoSeatsRequested)
		assert.Empty(t, f.authority.CallLog())
	})

	t.Run("locally occupied seat conflicts without an external call", func(t *testing.T) {
		f := newFixture(t)
		f.store.Seed("concert-42", "A1", uuid.New(), uuid.New())

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1", "A2"}, f.memberID)

		var conflict *commands.SeatConflictError
		require.ErrorAs(t, err, &conflict)
		require.ErrorIs(t, err, commands.ErrSeatsAlreadyBooked)
		assert.Equal(t, []string{"A1"}, conflict.SeatIDs)
		assert.Empty(t, f.authority.CallLog())
		assert.Len(t, f.store.OccupiedRows(), 1)
	})

	t.Run("authority rejection maps to seat conflict", func(t *testing.T) {
		f := newFixture(t)
		f.authority.Hold("concert-42", "A1", uuid.New())

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, f.memberID)
		require.ErrorIs(t, err, commands.ErrSeatsAlreadyBooked)
		assert.Empty(t, f.store.OccupiedRows())
	})

	t.Run("ambiguous timeout records a reconciliation task", func(t *testing.T) {
		f := newFixture(t)
		f.authority.BookErr = extern.ErrTimeout

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, f.memberID)
		require.ErrorIs(t, err, commands.ErrReconciliationRequired)

		var rec *commands.ReconciliationRequiredError
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, "concert-42", rec.EventKey)
		assert.Equal(t, []string{"A1"}, rec.SeatIDs)

		assert.Equal(t, []shared.ReconciliationKind{shared.ReconcileAmbiguousBook}, f.store.TaskKinds())
		assert.Equal(t, 1, f.waker.Count())
		assert.Empty(t, f.store.OccupiedRows())
	})

	t.Run("authority outage is a definite external failure", func(t *testing.T) {
		f := newFixture(t)
		f.authority.BookErr = extern.ErrService

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, f.memberID)
		require.ErrorIs(t, err, commands.ErrExternalService)
		assert.Empty(t, f.store.TaskKinds())
		assert.Empty(t, f.store.OccupiedRows())
	})

	t.Run("local conflict after external commit triggers a compensating release", func(t *testing.T) {
		f := newFixture(t)
		// A rival's row lands between the advisory pre-check and the
		// local insert. The unique constraint catches it and the
		// external claim must be rolled back.
		f.authority.OnBooked = func() {
			f.store.Seed("concert-42", "A1", uuid.New(), uuid.New())
		}

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, f.memberID)
		require.ErrorIs(t, err, commands.ErrSeatsAlreadyBooked)

		assert.False(t, f.authority.Holds("concert-42", "A1"), "compensating release must free the seat")
		log := f.authority.CallLog()
		require.Len(t, log, 2)
		assert.Equal(t, "release concert-42 A1", log[1])
		assert.Len(t, f.store.OccupiedRows(), 1, "only the rival's row survives")
	})

	t.Run("failed compensation is surfaced and recorded", func(t *testing.T) {
		f := newFixture(t)
		f.authority.OnBooked = func() {
			f.store.Seed("concert-42", "A1", uuid.New(), uuid.New())
		}
		f.authority.ReleaseErr = extern.ErrService

		_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, f.memberID)
		require.ErrorIs(t, err, commands.ErrReconciliationRequired)
		assert.Equal(t, []shared.ReconciliationKind{shared.ReconcileStaleRelease}, f.store.TaskKinds())
	})
}

func TestBookConcurrent(t *testing.T) {
	const rivals = 16

	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, rivals)
	for i := 0; i < rivals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cmd.Book(ctx, "concert-42", []string{"A1"}, f.memberID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, commands.ErrSeatsAlreadyBooked, "losers must see a seat conflict")
	}

	assert.Equal(t, 1, successes, "exactly one booking may win the seat")
	rows := f.store.OccupiedRows()
	require.Len(t, rows, 1)

	holder, held := f.authority.HolderOf("concert-42", "A1")
	require.True(t, held)
	assert.Equal(t, rows[0].OrderRef, holder, "local record and authority agree on the holder")
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	book := func(t *testing.T, f *fixture, seatID string) uuid.UUID {
		t.Helper()
		views, err := f.cmd.Book(ctx, "concert-42", []string{seatID}, f.memberID)
		require.NoError(t, err)
		return views[0].ID
	}

	t.Run("releases externally then locally", func(t *testing.T) {
		f := newFixture(t)
		id := book(t, f, "A1")

		require.NoError(t, f.cmd.Release(ctx, id))

		assert.False(t, f.authority.Holds("concert-42", "A1"))
		row, ok := f.store.Row(id)
		require.True(t, ok)
		assert.False(t, row.Occupied)
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newFixture(t)
		require.ErrorIs(t, f.cmd.Release(ctx, uuid.New()), commands.ErrBookingNotFound)
	})

	t.Run("already released booking", func(t *testing.T) {
		f := newFixture(t)
		id := book(t, f, "A1")
		require.NoError(t, f.cmd.Release(ctx, id))

		require.ErrorIs(t, f.cmd.Release(ctx, id), commands.ErrBookingNotFound)
	})

	t.Run("external timeout keeps the local row occupied", func(t *testing.T) {
		f := newFixture(t)
		id := book(t, f, "A1")
		f.authority.ReleaseErr = extern.ErrTimeout

		err := f.cmd.Release(ctx, id)
		require.ErrorIs(t, err, commands.ErrReconciliationRequired)

		row, _ := f.store.Row(id)
		assert.True(t, row.Occupied, "local view must not claim a seat is free while the authority may hold it")
		assert.Equal(t, []shared.ReconciliationKind{shared.ReconcileStaleRelease}, f.store.TaskKinds())
	})

	t.Run("external failure keeps the local row occupied without a task", func(t *testing.T) {
		f := newFixture(t)
		id := book(t, f, "A1")
		f.authority.ReleaseErr = extern.ErrService

		err := f.cmd.Release(ctx, id)
		require.ErrorIs(t, err, commands.ErrExternalService)

		row, _ := f.store.Row(id)
		assert.True(t, row.Occupied)
		assert.Empty(t, f.store.TaskKinds())
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	book := func(t *testing.T, f *fixture, seatID string) (uuid.UUID, uuid.UUID) {
		t.Helper()
		views, err := f.cmd.Book(ctx, "concert-42", []string{seatID}, f.memberID)
		require.NoError(t, err)
		return views[0].ID, views[0].OrderRef
	}

	t.Run("seat change secures the new seat before freeing the old", func(t *testing.T) {
		f := newFixture(t)
		id, oldRef := book(t, f, "A1")

		views, err := f.cmd.Update(ctx, id, commands.UpdateBookingRequest{SeatIDs: []string{"B7"}})
		require.NoError(t, err)
		require.Len(t, views, 1)

		assert.Equal(t, "B7", views[0].SeatID)
		assert.Equal(t, oldRef, views[0].OrderRef, "the booking keeps its order ref across a seat change")
		assert.True(t, f.authority.Holds("concert-42", "B7"))
		assert.False(t, f.authority.Holds("concert-42", "A1"))

		log := f.authority.CallLog()
		require.Len(t, log, 3)
		assert.Equal(t, "book concert-42 B7", log[1], "new seat is claimed before the old one is released")
		assert.Equal(t, "release concert-42 A1", log[2])

		old, _ := f.store.Row(id)
		assert.False(t, old.Occupied)
	})

	t.Run("expanding onto the currently held seat books only the new one", func(t *testing.T) {
		f := newFixture(t)
		id, ref := book(t, f, "A1")

		views, err := f.cmd.Update(ctx, id, commands.UpdateBookingRequest{SeatIDs: []string{"A1", "A2"}})
		require.NoError(t, err)
		require.Len(t, views, 2)

		assert.ElementsMatch(t, []string{"A1", "A2"}, []string{views[0].SeatID, views[1].SeatID})
		for _, v := range views {
			assert.Equal(t, ref, v.OrderRef)
		}

		log := f.authority.CallLog()
		require.Len(t, log, 2)
		assert.Equal(t, "book concert-42 A2", log[1], "the seat already held is not re-booked")

		holder, held := f.authority.HolderOf("concert-42", "A1")
		require.True(t, held, "the original hold survives the expansion")
		assert.Equal(t, ref, holder)
		assert.True(t, f.authority.Holds("concert-42", "A2"))
	})

	t.Run("member-only change touches nothing external", func(t *testing.T) {
		f := newFixture(t)
		id, oldRef := book(t, f, "A1")
		newMember := uuid.New()
		f.members.Known[newMember] = true
		callsBefore := len(f.authority.CallLog())

		views, err := f.cmd.Update(ctx, id, commands.UpdateBookingRequest{MemberID: &newMember})
		require.NoError(t, err)
		require.Len(t, views, 1)

		assert.Equal(t, newMember, views[0].MemberID)
		assert.Equal(t, oldRef, views[0].OrderRef, "no seat change keeps the existing order ref")
		assert.Len(t, f.authority.CallLog(), callsBefore)
	})

	t.Run("unknown member on update", func(t *testing.T) {
		f := newFixture(t)
		id, _ := book(t, f, "A1")
		stranger := uuid.New()

		_, err := f.cmd.Update(ctx, id, commands.UpdateBookingRequest{MemberID: &stranger})
		require.ErrorIs(t, err, commands.ErrMemberNotFound)
	})

	t.Run("conflicting target seat", func(t *testing.T) {
		f := newFixture(t)
		id, _ := book(t, f, "A1")
		f.store.Seed("concert-42", "B7", uuid.New(), uuid.New())

		_, err := f.cmd.Update(ctx, id, commands.UpdateBookingRequest{SeatIDs: []string{"B7"}})
		require.ErrorIs(t, err, commands.ErrSeatsAlreadyBooked)

		row, _ := f.store.Row(id)
		assert.True(t, row.Occupied, "failed update leaves the original booking intact")
		assert.True(t, f.authority.Holds("concert-42", "A1"))
	})

	t.Run("failed old-seat release does not fail the update", func(t *testing.T) {
		f := newFixture(t)
		id, _ := book(t, f, "A1")
		f.authority.ReleaseErr = extern.ErrService

		views, err := f.cmd.Update(ctx, id, commands.UpdateBookingRequest{SeatIDs: []string{"B7"}})
		require.NoError(t, err)
		assert.Equal(t, "B7", views[0].SeatID)

		assert.Equal(t, []shared.ReconciliationKind{shared.ReconcileStaleRelease}, f.store.TaskKinds())
		assert.Equal(t, 1, f.waker.Count())

		old, _ := f.store.Row(id)
		assert.False(t, old.Occupied, "the stale external hold is repaired later rather than failing the caller")
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.cmd.Update(ctx, uuid.New(), commands.UpdateBookingRequest{SeatIDs: []string{"B7"}})
		require.ErrorIs(t, err, commands.ErrBookingNotFound)
	})
}
