package board

import (
	"errors"
	"fmt"
)

// ErrPrecondition marks a request rejected before any store call was made:
// no principal, an empty title, an unknown enum value or an unknown
// confirmation token.
var ErrPrecondition = errors.New("precondition failed")

// ErrUnauthenticated is returned when an operation is attempted without a
// principal.
var ErrUnauthenticated = fmt.Errorf("%w: no authenticated user", ErrPrecondition)

// ErrUnknownToken is returned when a confirmation token does not exist, has
// expired, was already used, or belongs to someone else.
var ErrUnknownToken = fmt.Errorf("%w: unknown or expired confirmation token", ErrPrecondition)

// ErrInvalidState is returned when an Admission is driven out of order.
var ErrInvalidState = errors.New("invalid admission state")

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// UpstreamError wraps a failure of the store. It is never turned into an
// empty result.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from the store.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
