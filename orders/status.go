/*
status.go - Order lifecycle states and the transition table

PURPOSE:
  Single source of truth for which status moves are legal. Every status
  change in the system goes through StateMachine.Transition, which consults
  this table; there is no other way to move an order.

TRANSITION TABLE:
  pending          -> confirmed, cancelled
  confirmed        -> preparing, cancelled
  preparing        -> ready_for_pickup, out_for_delivery, cancelled
  ready_for_pickup -> completed, cancelled
  out_for_delivery -> delivered, failed, cancelled
  delivered        -> completed
  failed           -> out_for_delivery, returned
  returned         -> completed

TERMINAL STATES:
  completed, cancelled, returned. No transition leaves a terminal state.

SEE ALSO:
  - machine.go: Executes transitions and their side effects
*/
package orders

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
	StatusReturned       Status = "returned"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:      {StatusReadyForPickup: true, StatusOutForDelivery: true, StatusCancelled: true},
	StatusReadyForPickup: {StatusCompleted: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusDelivered: true, StatusFailed: true, StatusCancelled: true},
	StatusDelivered:      {StatusCompleted: true},
	StatusFailed:         {StatusOutForDelivery: true, StatusReturned: true},
	StatusReturned:       {StatusCompleted: true},
}

// CanTransition reports whether from -> to is an edge in the table.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// IsTerminal reports whether no transition may leave the status.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// IsValid reports whether s is a known status value.
func IsValid(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup,
		StatusOutForDelivery, StatusDelivered, StatusCompleted, StatusCancelled,
		StatusFailed, StatusReturned:
		return true
	}
	return false
}
