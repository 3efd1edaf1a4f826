package booking

import (
	"sort"

	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// Conflicts returns the ids of blocking bookings on the candidate's resource whose
// intervals overlap the candidate. The candidate itself is ignored.
func Conflicts(candidate *Booking, existing []*Booking) []uuid.UUID {
	var ids []uuid.UUID
	for _, other := range existing {
		if other == nil || other.id == candidate.id {
			continue
		}
		if other.resourceID != candidate.resourceID {
			continue
		}
		if !other.status.IsBlocking() {
			continue
		}
		if candidate.interval.Overlaps(other.interval) {
			ids = append(ids, other.id)
		}
	}
	return ids
}

// IsAvailable reports whether the candidate may enter a blocking state.
func IsAvailable(candidate *Booking, existing []*Booking) bool {
	return len(Conflicts(candidate, existing)) == 0
}

// CheckAvailability returns a slot conflict error listing every conflicting booking.
func CheckAvailability(candidate *Booking, existing []*Booking) error {
	ids := Conflicts(candidate, existing)
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return apperror.NewSlotConflictError(strs)
}

// SlotIndex holds the blocking intervals of a single resource sorted by start,
// so overlap lookups stop as soon as a slot starts after the query ends.
type SlotIndex struct {
	resourceID uuid.UUID
	slots      []*Booking
}

// NewSlotIndex builds an index over the blocking bookings of resourceID.
func NewSlotIndex(resourceID uuid.UUID, bookings []*Booking) *SlotIndex {
	slots := make([]*Booking, 0, len(bookings))
	for _, b := range bookings {
		if b != nil && b.resourceID == resourceID && b.status.IsBlocking() {
			slots = append(slots, b)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].interval.start.Before(slots[j].interval.start)
	})
	return &SlotIndex{resourceID: resourceID, slots: slots}
}

// Len returns the number of indexed blocking bookings.
func (x *SlotIndex) Len() int { return len(x.slots) }

// Overlapping returns the indexed bookings overlapping interval, excluding excludeID.
func (x *SlotIndex) Overlapping(interval Interval, excludeID uuid.UUID) []*Booking {
	// First slot starting at or after interval.end cannot overlap, nor can any later one.
	limit := sort.Search(len(x.slots), func(i int) bool {
		return !x.slots[i].interval.start.Before(interval.end)
	})
	var out []*Booking
	for _, b := range x.slots[:limit] {
		if b.id != excludeID && b.interval.end.After(interval.start) {
			out = append(out, b)
		}
	}
	return out
}

// Check runs the availability check for candidate against the index.
func (x *SlotIndex) Check(candidate *Booking) error {
	if candidate.resourceID != x.resourceID {
		return apperror.NewValidationError("booking does not belong to indexed resource")
	}
	return CheckAvailability(candidate, x.Overlapping(candidate.interval, candidate.id))
}
