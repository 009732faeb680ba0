package model

// OutboxStatus is the dispatch state of an OutboxRecord.
type OutboxStatus string

const (
	// StatusReady means the record passed validation and awaits dispatch.
	StatusReady OutboxStatus = "READY"
	// StatusSent means the mail provider accepted the message. A later
	// bounce scan may still reclassify it.
	StatusSent OutboxStatus = "SENT"
	// StatusBounced means a delivery-failure notification was correlated
	// to this record. Terminal.
	StatusBounced OutboxStatus = "BOUNCED"
	// StatusInvalid means the mailbox does not exist (5.1.1). Terminal.
	StatusInvalid OutboxStatus = "INVALID"
	// StatusError means validation or dispatch failed; the record was
	// never delivered. Terminal.
	StatusError OutboxStatus = "ERROR"
)

// outboxTransitions enumerates the legal status moves.
var outboxTransitions = map[OutboxStatus][]OutboxStatus{
	StatusReady: {StatusSent, StatusError},
	StatusSent:  {StatusBounced, StatusInvalid},
}

// CanTransition reports whether moving an outbox record from one status to
// another is legal.
func CanTransition(from, to OutboxStatus) bool {
	for _, next := range outboxTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OutboxStatus) IsTerminal() bool {
	return len(outboxTransitions[s]) == 0
}

// Valid reports whether s is a known status value.
func (s OutboxStatus) Valid() bool {
	switch s {
	case StatusReady, StatusSent, StatusBounced, StatusInvalid, StatusError:
		return true
	}
	return false
}
