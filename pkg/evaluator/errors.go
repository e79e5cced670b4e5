package evaluator

import (
	"errors"
	"fmt"
)

var ErrEmptyExpression = errors.New("expression must not be empty")

// Error carries the engine and expression that failed.
type Error struct {
	Engine string
	Expr   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("evaluator: %s %s: %v", e.Engine, describeExpression(e.Expr), e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *Error
	if errors.As(err, &evalErr) {
		return err
	}
	return &Error{Engine: engine, Expr: expr, Err: err}
}
