package opt

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInstance is returned by NewInstance when the inputs are inconsistent.
	ErrMalformedInstance = errors.New("opt: malformed instance")
	// ErrInfeasible is returned when the fleet cannot serve every client.
	ErrInfeasible = errors.New("opt: infeasible instance")
	// ErrInvalidParams is returned by Solve for out-of-range search parameters.
	ErrInvalidParams = errors.New("opt: invalid search parameters")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInstance, fmt.Sprintf(format, args...))
}

func infeasible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInfeasible, fmt.Sprintf(format, args...))
}
