package grouped

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrResolution       = errors.New("exam could not be resolved")
	ErrParentPersist    = errors.New("parent question could not be saved")
	ErrChildPersist     = errors.New("sub-questions could not be saved")
	ErrRollback         = errors.New("rollback of parent question failed")
	ErrMinimumCount     = errors.New("a grouped question needs at least one sub-question")
	ErrSessionBusy      = errors.New("session is being saved")
	ErrDraftNotFound    = errors.New("sub-question not found")
	ErrTargetNotFound   = errors.New("statement target not found")
	ErrAlternativeIndex = errors.New("alternative index out of range")
	ErrInvalidKind      = errors.New("invalid block kind")
	ErrSessionNotFound  = errors.New("session not found")
)

// SaveError is the single failure reported by Save. Kind is one of the
// sentinels above; RollbackErr is set when the compensating delete failed and
// the parent question was left behind.
type SaveError struct {
	Kind        error
	State       SaveState
	Position    int
	Message     string
	Err         error
	RollbackErr error
}

func (e *SaveError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.RollbackErr != nil {
		msg = fmt.Sprintf("%s (rollback failed: %v)", msg, e.RollbackErr)
	}
	return msg
}

func (e *SaveError) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return target == ErrRollback && e.RollbackErr != nil
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

func validationError(position int, msg string) *SaveError {
	return &SaveError{Kind: ErrValidation, State: StateValidationFailed, Position: position, Message: msg}
}
