package vm

import (
	"fmt"
	"strings"

	"github.com/emberlang/ember/pkg/value"
)

// ExceptionError lets a native function (spec.md §7's "return false with
// an exception pushed" convention, rendered as Go's explicit error return)
// raise a specific, already-constructed Exception Instance instead of
// having its error wrapped into a generic TypeException. pkg/api's
// NewException helper is the usual way to build Value, and stamps Message
// at construction time so Error() needs no VM access to read it back.
type ExceptionError struct {
	Value   value.Value
	Message string
}

func (e *ExceptionError) Error() string { return e.Message }

// StackFrame is one recorded (function, bytecode offset, source line)
// triple in a RuntimeError's trace, built from the exception's
// value.StackTrace entries at the point execution left the evaluation
// root uncaught.
type StackFrame struct {
	Name   string
	Offset int
	Line   int
}

// RuntimeError is what Run returns when an exception propagates past every
// handler: a language-level Exception that nothing in the program caught,
// per spec.md §4.4's "the exception propagates past the evaluation root as
// a runtime error; the host receives it via the API."
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for _, frame := range e.StackTrace {
			b.WriteString(fmt.Sprintf("\n  at %s", frame.Name))
			if frame.Line > 0 {
				b.WriteString(fmt.Sprintf(" [line %d]", frame.Line))
			}
			b.WriteString(fmt.Sprintf(" [offset %d]", frame.Offset))
		}
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
