package domain

import (
	"fmt"
	"strings"
)

// allowedTransitions holds the forward edges of the report lifecycle.
// resolved is terminal.
var allowedTransitions = map[Status][]Status{
	StatusSubmitted:     {StatusInvestigating, StatusResolved},
	StatusInvestigating: {StatusResolved},
}

// ParseStatus accepts a lifecycle status case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusSubmitted, StatusInvestigating, StatusResolved:
		return st, nil
	default:
		return "", &ValidationError{Fields: []string{"status"}}
	}
}

// ValidateTransition reports whether a report may move from one status to
// another. Staying in the same status is allowed so that duplicate admin
// actions succeed.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// IsActive reports whether a status still needs admin attention.
func (s Status) IsActive() bool {
	return s == StatusSubmitted || s == StatusInvestigating
}
