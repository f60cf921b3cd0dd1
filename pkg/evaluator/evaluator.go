package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
)

// ExecResult holds the result of a synchronous execution.
type ExecResult struct {
	Value   Value
	Visible bool
	Steps   int
	Elapsed time.Duration
}

// SuspendedError reports that a synchronous execution used a future that
// nothing will resolve.
type SuspendedError struct {
	Future *Future
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("evaluation suspended on future #%d", e.Future.ID)
}

// Execute runs expr in working to completion without a transport. It is
// used by the CLI for scripts and by tests. Cancelling ctx interrupts the
// evaluation at its next step.
func (m *Machine) Execute(ctx context.Context, expr ast.Expr, working *Frame) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, m.Interrupt)
	defer stop()

	st := m.NewState(m.localID.Add(1), expr, working)
	out := m.Run(st)
	switch out.Status {
	case StatusDone:
		return &ExecResult{Value: out.Value, Visible: out.Visible, Steps: out.Steps, Elapsed: out.Elapsed}, nil
	case StatusParked:
		m.Abandon(st)
		return nil, &SuspendedError{Future: out.Waiting}
	case StatusQuit:
		return nil, ErrQuit
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ctx.Err(), out.Err)
	}
	return nil, out.Err
}
