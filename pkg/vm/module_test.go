package vm

import (
	"testing"

	"github.com/emberlang/ember/pkg/compiler"
	"github.com/emberlang/ember/pkg/module"
	"github.com/emberlang/ember/pkg/parser"
	"github.com/emberlang/ember/pkg/value"
)

func mapLoader(sources map[string]string) module.Loader {
	return func(name string) (*module.Result, error) {
		src, ok := sources[name]
		if !ok {
			return nil, module.ErrNotFound
		}
		return &module.Result{Source: []byte(src), Path: name + ".jst"}, nil
	}
}

func compileModuleTest(t *testing.T, src string) *value.Function {
	t.Helper()
	p := parser.New(src)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) != 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	fn, err := compiler.New().Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return fn
}

func TestImportBindsModuleGlobal(t *testing.T) {
	vm := NewDefault()
	vm.SetLoader(mapLoader(map[string]string{"math": `var pi = 3;`}))

	fn := compileModuleTest(t, `
import math;
return math.pi;
`)
	result, err := vm.Run(fn)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsNumber() || result.AsNumber() != 3 {
		t.Fatalf("want 3, got %#v", result)
	}
}

func TestImportCachesModuleAcrossTwoImports(t *testing.T) {
	vm := NewDefault()
	loads := 0
	vm.SetLoader(func(name string) (*module.Result, error) {
		loads++
		return &module.Result{Source: []byte(`var n = 1;`), Path: name + ".jst"}, nil
	})

	fn := compileModuleTest(t, `
import counter;
import counter;
return counter.n;
`)
	result, err := vm.Run(fn)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsNumber() || result.AsNumber() != 1 {
		t.Fatalf("want 1, got %#v", result)
	}
	if loads != 1 {
		t.Fatalf("want module loaded once, loaded %d times", loads)
	}
}

func TestImportUndefinedModuleRaisesNameException(t *testing.T) {
	vm := NewDefault()
	vm.SetLoader(mapLoader(nil))

	fn := compileModuleTest(t, `import nosuch; return null;`)
	if _, err := vm.Run(fn); err == nil {
		t.Fatalf("want error importing undefined module")
	}
}

func TestImportWithNoLoaderConfiguredFails(t *testing.T) {
	vm := NewDefault()

	fn := compileModuleTest(t, `import math; return null;`)
	if _, err := vm.Run(fn); err == nil {
		t.Fatalf("want error importing with no loader configured")
	}
}
