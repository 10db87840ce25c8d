package courier

import (
	"strings"
)

// Status is the platform's canonical order-lifecycle state. Provider raw
// statuses are mapped into this vocabulary via each provider's status map.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusReadyForPickup Status = "READY_FOR_PICKUP"
	StatusPickedUp       Status = "PICKED_UP"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusReturned       Status = "RETURNED"
	StatusCancelled      Status = "CANCELLED"
	StatusOnHold         Status = "ON_HOLD"

	// StatusFailed marks a dispatch attempt whose provider call never
	// succeeded. It is set at creation time only, never by transition.
	StatusFailed Status = "FAILED"

	// StatusUnknown is the fallback for provider raw statuses that have
	// no entry in the provider's status map.
	StatusUnknown Status = "UNKNOWN"
)

// forwardRank orders the happy-path progression of a shipment.
var forwardRank = map[Status]int{
	StatusPending:        0,
	StatusReadyForPickup: 1,
	StatusPickedUp:       2,
	StatusInTransit:      3,
	StatusOutForDelivery: 4,
	StatusDelivered:      5,
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusReturned, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// IsValid reports whether s is a known canonical status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReadyForPickup, StatusPickedUp, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusReturned, StatusCancelled,
		StatusOnHold, StatusFailed, StatusUnknown:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. Forward progression may skip intermediate states (couriers do
// not always report every hop). RETURNED, CANCELLED and ON_HOLD are
// reachable from any non-terminal state. FAILED is never a transition
// target.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() || !next.IsValid() || next == s {
		return false
	}
	switch next {
	case StatusFailed, StatusPending:
		return false
	case StatusReturned, StatusCancelled, StatusOnHold, StatusUnknown:
		return true
	}
	if s == StatusOnHold || s == StatusUnknown {
		// Resuming from a hold or an unmapped observation: any forward
		// state is acceptable.
		_, ok := forwardRank[next]
		return ok
	}
	from, okFrom := forwardRank[s]
	to, okTo := forwardRank[next]
	return okFrom && okTo && to > from
}

// StatusMap maps a canonical status to the raw status strings a provider
// uses for it. Stored per provider and consulted when ingesting webhooks.
type StatusMap map[Status][]string

// Canonical returns the canonical status for a provider raw status.
// Matching is case-insensitive on the trimmed raw value. Unknown raw
// statuses map to StatusUnknown rather than failing.
func (m StatusMap) Canonical(raw string) Status {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return StatusUnknown
	}
	for canonical, raws := range m {
		for _, r := range raws {
			if strings.ToLower(strings.TrimSpace(r)) == needle {
				return canonical
			}
		}
	}
	return StatusUnknown
}
