// Package errors collects ember's error kinds, per SPEC_FULL.md §7: compile-
// time diagnostics (SyntaxError/CompileError), the language-level exception
// hierarchy raised by the interpreter (Throwable/Exception/...), and the one
// kind of failure that never reaches language-level try/except
// (Unrecoverable). Its Wrap helper delegates to github.com/pkg/errors (not
// to be confused with this package itself); no other package calls Wrap.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/emberlang/ember/pkg/value"
)

// SyntaxError is a lexer/parser diagnostic: file, line, column, message.
// The parser itself accumulates its diagnostics as plain strings
// (Parser.Errors) rather than as SyntaxError values.
type SyntaxError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error: %s", e.File, e.Line, e.Column, e.Message)
}

// CompileError is the compiler's counterpart to SyntaxError. The compiler
// itself accumulates its diagnostics as plain strings rather than as
// CompileError values.
type CompileError struct {
	File    string
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d: compile error: %s", e.File, e.Line, e.Message)
}

// Wrap annotates err with a stack-capturing cause via github.com/pkg/errors,
// so a `%+v` format prints the full cause chain. No package in this
// repository calls it at present.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Unrecoverable is a distinct Go panic value for failures that must never
// be caught by a language-level try/except: a corrupted heap invariant, a
// bytecode stream that fails a bounds check the compiler should have
// prevented. Nothing in the VM or API recovers it, so a Throw ends the
// process with a Go panic; it is never wrapped into an Exception.
type Unrecoverable struct {
	Message string
	Cause   error
}

func (u *Unrecoverable) Error() string {
	if u.Cause != nil {
		return fmt.Sprintf("unrecoverable: %s: %v", u.Message, u.Cause)
	}
	return "unrecoverable: " + u.Message
}

// Throw panics with an *Unrecoverable, the one legal way to raise one.
func Throw(cause error, format string, args ...interface{}) {
	panic(&Unrecoverable{Message: fmt.Sprintf(format, args...), Cause: cause})
}

// Exception class names in the Throwable-rooted hierarchy, per
// SPEC_FULL.md §7. Exception is the general-purpose base that a bare
// `except e { ... }` (no named type) catches; the rest are raised by
// specific interpreter fault conditions.
const (
	Throwable             = "Throwable"
	Exception             = "Exception"
	TypeException         = "TypeException"
	NameException         = "NameException"
	IndexException        = "IndexException"
	StackOverflowException = "StackOverflowException"
	ProgramInterrupt      = "ProgramInterrupt"
)

// Hierarchy holds the bootstrapped built-in exception classes, keyed by
// name, so the interpreter can construct and raise them and the compiler's
// isinstance-based except-clause matching has something to compare against.
type Hierarchy struct {
	Classes map[string]*value.Class
}

// classFactory lets the VM supply how a Class gets tracked on its heap,
// keeping this package free of any dependency on pkg/heap.
type classFactory func(name string, super *value.Class) *value.Class

// NewHierarchy builds the Throwable -> Exception -> {Type,Name,Index,
// StackOverflow}Exception / ProgramInterrupt tree, using newClass to
// allocate (and heap-track) each *value.Class.
func NewHierarchy(newClass classFactory) *Hierarchy {
	h := &Hierarchy{Classes: make(map[string]*value.Class)}
	throwable := newClass(Throwable, nil)
	exception := newClass(Exception, throwable)
	h.Classes[Throwable] = throwable
	h.Classes[Exception] = exception
	for _, name := range []string{TypeException, NameException, IndexException, StackOverflowException, ProgramInterrupt} {
		h.Classes[name] = newClass(name, exception)
	}
	return h
}

// Get looks up a built-in exception class by name.
func (h *Hierarchy) Get(name string) *value.Class {
	return h.Classes[name]
}
