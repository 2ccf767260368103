package workflows

// Listing lifecycle states
const (
	ListingActive    = "active"
	ListingCancelled = "cancelled"
	ListingPurchased = "purchased"
)

// StateMachine enforces status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewListingStateMachine creates the listing lifecycle: an active listing may
// be updated in place, cancelled by its seller or purchased. Cancelled and
// purchased are terminal.
func NewListingStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			ListingActive:    {ListingActive, ListingCancelled, ListingPurchased},
			ListingCancelled: {},
			ListingPurchased: {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves status
func (sm *StateMachine) IsTerminal(status string) bool {
	return len(sm.GetAllowedTransitions(status)) == 0
}
