package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

func confirmed(t *testing.T, b *Booking) *Booking {
	t.Helper()
	require.NoError(t, b.Confirm("pi_"+b.ID().String(), base))
	return b
}

func TestAvailability_TouchingIntervalsAllowed(t *testing.T) {
	res := newResource(1000)
	a := confirmed(t, newDraft(t, res, 0, time.Hour))
	b := newDraft(t, res, time.Hour, 2*time.Hour)

	assert.True(t, IsAvailable(b, []*Booking{a}))
	assert.NoError(t, CheckAvailability(b, []*Booking{a}))
}

func TestAvailability_OverlapRejected(t *testing.T) {
	res := newResource(1000)
	a := confirmed(t, newDraft(t, res, 0, 2*time.Hour))
	b := newDraft(t, res, 30*time.Minute, 90*time.Minute)

	assert.False(t, IsAvailable(b, []*Booking{a}))
	err := CheckAvailability(b, []*Booking{a})
	require.ErrorIs(t, err, apperror.ErrSlotConflict)
	assert.Equal(t, []string{a.ID().String()}, apperror.ConflictingIDs(err))
	assert.Equal(t, StatusConfirmed, a.Status())
}

func TestAvailability_IgnoresNonBlockingOtherResourcesAndSelf(t *testing.T) {
	res := newResource(1000)
	candidate := newDraft(t, res, 0, time.Hour)

	draft := newDraft(t, res, 0, time.Hour)
	cancelled := newDraft(t, res, 0, time.Hour)
	require.NoError(t, cancelled.Cancel("", base))
	expired := newDraft(t, res, 0, time.Hour)
	require.NoError(t, expired.RequestApproval(base.Add(-2*time.Hour)))
	require.NoError(t, expired.Expire(base, time.Hour))
	elsewhere := confirmed(t, newDraft(t, newResource(1000), 0, time.Hour))
	self := candidate

	existing := []*Booking{draft, cancelled, expired, elsewhere, self}
	assert.True(t, IsAvailable(candidate, existing))
}

func TestAvailability_ReportsAllConflicts(t *testing.T) {
	res := newResource(1000)
	a := confirmed(t, newDraft(t, res, 0, time.Hour))
	p := newDraft(t, res, time.Hour, 2*time.Hour)
	require.NoError(t, p.RequestApproval(base))
	candidate := newDraft(t, res, 30*time.Minute, 90*time.Minute)

	ids := Conflicts(candidate, []*Booking{a, p})
	assert.ElementsMatch(t, []uuid.UUID{a.ID(), p.ID()}, ids)
}

func TestSlotIndex(t *testing.T) {
	res := newResource(1000)
	late := confirmed(t, newDraft(t, res, 3*time.Hour, 4*time.Hour))
	early := confirmed(t, newDraft(t, res, 0, time.Hour))
	draft := newDraft(t, res, 0, 5*time.Hour)

	idx := NewSlotIndex(res.ID(), []*Booking{late, early, draft})
	assert.Equal(t, 2, idx.Len())

	touching := newDraft(t, res, time.Hour, 3*time.Hour)
	assert.NoError(t, idx.Check(touching))

	overlapping := newDraft(t, res, 30*time.Minute, 3*time.Hour+time.Minute)
	err := idx.Check(overlapping)
	require.ErrorIs(t, err, apperror.ErrSlotConflict)
	assert.ElementsMatch(t, []string{early.ID().String(), late.ID().String()}, apperror.ConflictingIDs(err))

	assert.Empty(t, idx.Overlapping(early.Interval(), early.ID()))

	other := newDraft(t, newResource(1000), 0, time.Hour)
	assert.ErrorIs(t, idx.Check(other), apperror.ErrValidation)
}
