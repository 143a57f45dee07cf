// Package ticket owns ticket status transitions and the per-ticket
// serialization point that keeps concurrent events from racing on the same
// row.
package ticket

import "github.com/chatline/chatline/internal/store"

// Facts are the event properties the state machine cares about.
type Facts struct {
	FromMe  bool
	IsMedia bool
}

// Change is the decided mutation for a ticket given its current status and
// the event facts. Zero value means no status change.
type Change struct {
	// Reopen moves a closed ticket back to pending.
	Reopen bool
	// ClearUser drops the assignee alongside the reopen. Only plain
	// conversational messages clear it.
	ClearUser bool
	// ReloadAssociations asks the caller to re-join queue/user/contact
	// before fan-out; the UI needs fresh data after media reopens.
	ReloadAssociations bool
}

// Transition is the single state-transition function: current ticket status
// plus event facts in, decided change out. Outbound (self-sent) events
// never reopen a ticket; open and pending tickets are untouched.
func Transition(status string, facts Facts) Change {
	if facts.FromMe {
		return Change{}
	}
	if status != store.TicketClosed {
		return Change{}
	}
	return Change{
		Reopen:             true,
		ClearUser:          !facts.IsMedia,
		ReloadAssociations: facts.IsMedia,
	}
}
