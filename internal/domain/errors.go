package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a policy failure with a stable machine-readable cause and an
// HTTP-ish status for callers to map. Domain errors are returned, never
// panicked, and compared with errors.Is against the sentinels below.
type Error struct {
	Status int
	Cause  string
	msg    string
	err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Cause, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches any error carrying the same cause code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Cause == other.Cause
}

var (
	// ErrModuleNotFound is returned when the requested module does not exist.
	ErrModuleNotFound = &Error{Status: http.StatusNotFound, Cause: "MODULE_NOT_FOUND", msg: "module not found"}
	// ErrModuleInactive is returned when starting a session on an inactive module.
	ErrModuleInactive = &Error{Status: http.StatusBadRequest, Cause: "MODULE_INACTIVE", msg: "module is not active"}
	// ErrPreviousModuleNotCompleted is the progression gate failure.
	ErrPreviousModuleNotCompleted = &Error{Status: http.StatusBadRequest, Cause: "PREVIOUS_MODULE_NOT_COMPLETED", msg: "previous module has no finished session"}
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = &Error{Status: http.StatusNotFound, Cause: "SESSION_NOT_FOUND", msg: "game session not found"}
	// ErrSessionForbidden is returned when a user touches someone else's session.
	ErrSessionForbidden = &Error{Status: http.StatusForbidden, Cause: "SESSION_FORBIDDEN", msg: "session belongs to another user"}
	// ErrSessionFinished rejects answers and repeat finishes on a terminal session.
	ErrSessionFinished = &Error{Status: http.StatusBadRequest, Cause: "SESSION_FINISHED", msg: "session is already finished"}
	// ErrQuestionNotFound is returned when a question id is unknown.
	ErrQuestionNotFound = &Error{Status: http.StatusNotFound, Cause: "QUESTION_NOT_FOUND", msg: "question not found"}
	// ErrQuestionModuleMismatch rejects answers for questions outside the session's module.
	ErrQuestionModuleMismatch = &Error{Status: http.StatusBadRequest, Cause: "QUESTION_MODULE_MISMATCH", msg: "question does not belong to the session's module"}
	// ErrAnswerExists is the duplicate-answer idempotency boundary.
	ErrAnswerExists = &Error{Status: http.StatusConflict, Cause: "ANSWER_EXISTS", msg: "question already answered in this session"}
)

// Internal wraps an unexpected collaborator failure with an
// operation-specific cause such as START_SESSION_ERROR.
func Internal(cause string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Cause: cause, msg: err.Error(), err: err}
}
