package evaluator

import (
	"errors"
	"fmt"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// EvalError represents an evaluation error. It is recoverable by the
// nearest escape continuation.
type EvalError struct {
	Code    string
	Message string
	Span    *ast.Span
}

func (e *EvalError) Error() string {
	return e.Message
}

// Diagnostic converts the error for display.
func (e *EvalError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(e.Code, e.Message, e.Span, "")
}

func evalErrorf(code string, span *ast.Span, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
}

// ErrFutureNotReady is raised when an unresolved future is used. It is a
// control signal: the driver parks the state and never reports it.
var ErrFutureNotReady = errors.New("future not ready")

// ErrQuit is raised by q() and propagates out of the driver.
var ErrQuit = errors.New("quit requested")

type notReadyError struct {
	future *Future
}

func (e *notReadyError) Error() string {
	return fmt.Sprintf("future %d not ready", e.future.ID)
}

func (e *notReadyError) Is(target error) bool {
	return target == ErrFutureNotReady
}

// WaitingOn returns the future a not-ready error is waiting on.
func WaitingOn(err error) (*Future, bool) {
	var nr *notReadyError
	if errors.As(err, &nr) {
		return nr.future, true
	}
	return nil, false
}

// asEvalError normalizes any error raised during a step.
func asEvalError(err error, span *ast.Span) *EvalError {
	var ee *EvalError
	if errors.As(err, &ee) {
		if ee.Span == nil {
			ee.Span = span
		}
		return ee
	}
	return &EvalError{Code: diagnostics.EUser, Message: err.Error(), Span: span}
}
