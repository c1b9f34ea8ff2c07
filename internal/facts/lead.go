package facts

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition reports a lead state change other than open to converted.
var ErrInvalidTransition = errors.New("invalid lead transition")

// LeadState is the conversion state of an activity row.
type LeadState int

const (
	// LeadNone marks an activity that is not a lead.
	LeadNone LeadState = iota
	LeadOpen
	LeadConverted
)

// LeadStateOf derives the state from the stored flags.
func LeadStateOf(isLead, isConverted bool) LeadState {
	switch {
	case !isLead:
		return LeadNone
	case isConverted:
		return LeadConverted
	default:
		return LeadOpen
	}
}

func (s LeadState) String() string {
	switch s {
	case LeadNone:
		return "none"
	case LeadOpen:
		return "open"
	case LeadConverted:
		return "converted"
	default:
		return fmt.Sprintf("LeadState(%d)", int(s))
	}
}

// Convert is the only permitted transition.
func (s LeadState) Convert() (LeadState, error) {
	if s != LeadOpen {
		return s, fmt.Errorf("%w: %s -> converted", ErrInvalidTransition, s)
	}
	return LeadConverted, nil
}
