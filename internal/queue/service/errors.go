package queue

import "fmt"

// TicketStateError reports a lifecycle precondition failure: the ticket was
// not in the status the operation requires. Nothing was changed.
type TicketStateError struct {
	TicketID string
	Expected string
	Actual   string
}

func (e *TicketStateError) Error() string {
	return fmt.Sprintf("ticket %s is %s, expected %s", e.TicketID, e.Actual, e.Expected)
}

// QueueOrderViolationError reports a play request for a ticket that is not
// at the head of the line. The caller should serve the expected ticket or
// explicitly skip it first.
type QueueOrderViolationError struct {
	ExpectedNumber  int64
	RequestedNumber int64
}

func (e *QueueOrderViolationError) Error() string {
	return fmt.Sprintf("queue order violation: ticket #%d requested but #%d is being served",
		e.RequestedNumber, e.ExpectedNumber)
}

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
