package entitlement

import "errors"

var (
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidFeature     = errors.New("unknown feature")
	ErrInvalidPlan        = errors.New("unknown subscription plan")
	ErrInvalidLimit       = errors.New("limit must be -1 (unlimited) or a non-negative number")
	ErrLimitNotConfigured = errors.New("no limit configured for feature")
	ErrActionDenied       = errors.New("action not permitted")
	ErrUsageNotRecorded   = errors.New("usage could not be recorded")
	ErrLockNotAcquired    = errors.New("usage lock busy, try again")
)

// DeniedError is returned by Guard.Run when the decision denies the action.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return e.Decision.Reason
}

func (e *DeniedError) Unwrap() error {
	return ErrActionDenied
}
