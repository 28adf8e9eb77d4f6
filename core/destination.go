package core

import (
	"fmt"
	"strings"
)

// DestinationID derives the collection name for a source group.
// Spaces become underscores and the result is lower-cased.
func DestinationID(group string) string {
	return strings.ToLower(strings.ReplaceAll(group, " ", "_"))
}

// DestinationState is a step of the per-destination lifecycle.
type DestinationState int

const (
	StateAccumulating DestinationState = iota
	StateFlushing
	StateIndexing
	StateDone
	StateFailed
)

func (s DestinationState) String() string {
	switch s {
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFlushing:
		return "FLUSHING"
	case StateIndexing:
		return "INDEXING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("DestinationState(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s DestinationState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the lifecycle allows moving from s to next.
//
// Allowed transitions:
//   - ACCUMULATING -> FLUSHING (a sealed batch is being written)
//   - FLUSHING -> ACCUMULATING (batch acknowledged, more records may follow)
//   - FLUSHING -> FLUSHING (back-to-back batches)
//   - ACCUMULATING|FLUSHING -> INDEXING (source exhausted, last batch acknowledged)
//   - FLUSHING -> FAILED (fatal write error)
//   - INDEXING -> DONE
func (s DestinationState) CanTransition(next DestinationState) bool {
	switch s {
	case StateAccumulating:
		return next == StateFlushing || next == StateIndexing
	case StateFlushing:
		return next == StateAccumulating || next == StateFlushing ||
			next == StateIndexing || next == StateFailed
	case StateIndexing:
		return next == StateDone
	default:
		return false
	}
}

// Transition returns next if the move is allowed, or ErrInvalidTransition.
func (s DestinationState) Transition(next DestinationState) (DestinationState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// MarshalText renders the state name.
func (s DestinationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
