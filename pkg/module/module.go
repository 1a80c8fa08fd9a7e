// Package module implements spec.md §6's import callback: a host-supplied
// function `(vm, module_name) -> {source-or-compiled-bytes, path} | not-found
// | error`, rendered in Go as the Loader function type, plus one concrete
// implementation (FileLoader) so `import` works end to end without every
// embedder having to write their own resolver first.
package module

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by a Loader when no unit exists for the requested
// name, distinct from a real I/O or syntax failure. The VM turns this, like
// any other Loader error, into a NameException whose message names the
// import and carries the error text, not a propagated Go error.
var ErrNotFound = errors.New("module: not found")

// Result is what a Loader hands back for a successfully located module unit.
// Exactly one of Source or Compiled is set: Source is ember text to parse
// and compile, Compiled is an already-serialized pkg/bytefmt chunk to
// decode directly, skipping the parse/compile step.
type Result struct {
	Source   []byte
	Compiled []byte
	Path     string
}

// Loader resolves a module name to source or compiled bytecode. Each VM
// caches a successfully imported module in its registry and calls the
// Loader again for that name only if the module's top level raised, since
// a failed module is dropped from the registry.
type Loader func(name string) (*Result, error)

// FileLoader returns a Loader that resolves name against baseDir, trying
// name+".jsb" (precompiled bytecode, preferred when present so a deployed
// script tree need not ship a parser-reachable source form) before
// name+".jst" (ember source).
func FileLoader(baseDir string) Loader {
	return func(name string) (*Result, error) {
		jsb := filepath.Join(baseDir, name+".jsb")
		if data, err := os.ReadFile(jsb); err == nil {
			return &Result{Compiled: data, Path: jsb}, nil
		}

		jst := filepath.Join(baseDir, name+".jst")
		data, err := os.ReadFile(jst)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return &Result{Source: data, Path: jst}, nil
	}
}
