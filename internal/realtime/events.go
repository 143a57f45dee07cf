// Package realtime fans processed-event notifications out to connected
// agent clients over WebSocket, scoped per tenant.
package realtime

// Frame is the envelope delivered to every subscribed client.
type Frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Event names on the agent channel.
const (
	EventTicket     = "ticket"
	EventAppMessage = "appMessage"
)

// Actions carried inside ticket and message events.
const (
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// TicketEvent announces a ticket change. Delete events carry only the ID.
type TicketEvent struct {
	Action   string `json:"action"`
	Ticket   any    `json:"ticket,omitempty"`
	TicketID int64  `json:"ticketId"`
}

// MessageEvent announces a new or changed message on a ticket.
type MessageEvent struct {
	Action  string `json:"action"`
	Message any    `json:"message"`
	Ticket  any    `json:"ticket,omitempty"`
	Contact any    `json:"contact,omitempty"`
}
