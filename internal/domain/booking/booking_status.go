package booking

import "fmt"

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusDraft           BookingStatus = "draft"
	StatusPendingApproval BookingStatus = "pending_approval"
	StatusConfirmed       BookingStatus = "confirmed"
	StatusInUse           BookingStatus = "in_use"
	StatusCompleted       BookingStatus = "completed"
	StatusCancelled       BookingStatus = "cancelled"
	StatusExpired         BookingStatus = "expired"
)

// validTransitions defines the state machine for booking status transitions.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusDraft:           {StatusConfirmed, StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusConfirmed, StatusExpired, StatusCancelled},
	StatusConfirmed:       {StatusInUse, StatusCancelled},
	StatusInUse:           {StatusCompleted, StatusCancelled},
	StatusCompleted:       {},
	StatusCancelled:       {},
	StatusExpired:         {},
}

// blockingStatuses count toward the no-overlap rule. Anything not listed is non-blocking.
var blockingStatuses = map[BookingStatus]bool{
	StatusPendingApproval: true,
	StatusConfirmed:       true,
	StatusInUse:           true,
	StatusCompleted:       true,
}

// BlockingStatuses returns the statuses that occupy a resource's time slot.
func BlockingStatuses() []BookingStatus {
	return []BookingStatus{StatusPendingApproval, StatusConfirmed, StatusInUse, StatusCompleted}
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// IsBlocking reports whether a booking in this status holds its interval.
func (s BookingStatus) IsBlocking() bool {
	return blockingStatuses[s]
}

// String returns the string representation of the status.
func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus, returning an error if invalid.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}
