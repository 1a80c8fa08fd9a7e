package vm

import (
	"testing"

	"github.com/emberlang/ember/pkg/compiler"
	"github.com/emberlang/ember/pkg/heap"
	"github.com/emberlang/ember/pkg/parser"
	"github.com/emberlang/ember/pkg/value"
)

func run(t *testing.T, src string) (value.Value, error) {
	t.Helper()
	p := parser.New(src)
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	c := compiler.New()
	fn, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return NewDefault().Run(fn)
}

func runOK(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := run(t, src)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return v
}

func TestArithmetic(t *testing.T) {
	v := runOK(t, "return 1 + 2 * 3;")
	if !v.IsNumber() || v.AsNumber() != 7 {
		t.Fatalf("want 7, got %#v", v)
	}
}

func TestStringConcat(t *testing.T) {
	v := runOK(t, `return "foo" + "bar";`)
	s, ok := value.AsString(v)
	if !ok || s.String() != "foobar" {
		t.Fatalf("want foobar, got %#v", v)
	}
}

func TestDivisionByZero(t *testing.T) {
	_, err := run(t, "return 1 / 0;")
	if err == nil {
		t.Fatalf("want division by zero error")
	}
}

func TestGlobalsAndLocals(t *testing.T) {
	v := runOK(t, `
var x = 10;
fun add(a, b) {
    var total = a + b;
    return total;
}
return add(x, 5);
`)
	if !v.IsNumber() || v.AsNumber() != 15 {
		t.Fatalf("want 15, got %#v", v)
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	v := runOK(t, `
fun makeCounter() {
    var n = 0;
    fun inc() {
        n = n + 1;
        return n;
    }
    return inc;
}
var counter = makeCounter();
counter();
counter();
return counter();
`)
	if !v.IsNumber() || v.AsNumber() != 3 {
		t.Fatalf("want 3, got %#v", v)
	}
}

func TestClassInstanceAndMethod(t *testing.T) {
	v := runOK(t, `
class Counter {
    init(start) {
        this.n = start;
    }
    bump() {
        this.n = this.n + 1;
        return this.n;
    }
}
var c = Counter(41);
return c.bump();
`)
	if !v.IsNumber() || v.AsNumber() != 42 {
		t.Fatalf("want 42, got %#v", v)
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	v := runOK(t, `
class Animal {
    speak() {
        return "...";
    }
}
class Dog : Animal {
    speak() {
        return "bark " + super.speak();
    }
}
var d = Dog();
return d.speak();
`)
	s, ok := value.AsString(v)
	if !ok || s.String() != "bark ..." {
		t.Fatalf("want 'bark ...', got %#v", v)
	}
}

func TestForInOverList(t *testing.T) {
	v := runOK(t, `
var total = 0;
for (x in [1, 2, 3, 4]) {
    total = total + x;
}
return total;
`)
	if !v.IsNumber() || v.AsNumber() != 10 {
		t.Fatalf("want 10, got %#v", v)
	}
}

func TestBreakInWhileLoop(t *testing.T) {
	v := runOK(t, `
var i = 0;
var sum = 0;
while (true) {
    if (i == 3) break;
    sum = sum + i;
    i = i + 1;
}
return sum;
`)
	if !v.IsNumber() || v.AsNumber() != 3 {
		t.Fatalf("want 3, got %#v", v)
	}
}

func TestContinueInCStyleForRunsPost(t *testing.T) {
	v := runOK(t, `
var sum = 0;
for (var i = 0; i < 5; i = i + 1) {
    if (i == 2) continue;
    sum = sum + i;
}
return sum;
`)
	if !v.IsNumber() || v.AsNumber() != 8 {
		t.Fatalf("want 8, got %#v", v)
	}
}

func TestBreakInForInLeavesLocalsIntact(t *testing.T) {
	v := runOK(t, `
var seen = 0;
for (x in [1, 2, 3, 4, 5]) {
    if (x == 3) break;
    seen = seen + x;
}
var after = 99;
return seen + after;
`)
	if !v.IsNumber() || v.AsNumber() != 102 {
		t.Fatalf("want 102, got %#v", v)
	}
}

func TestContinueInForInSkipsOddNumbers(t *testing.T) {
	v := runOK(t, `
var sum = 0;
for (x in [1, 2, 3, 4, 5, 6]) {
    if (x % 2 == 1) continue;
    sum = sum + x;
}
return sum;
`)
	if !v.IsNumber() || v.AsNumber() != 12 {
		t.Fatalf("want 12, got %#v", v)
	}
}

func TestBreakInNestedForInOnlyExitsInnerLoop(t *testing.T) {
	v := runOK(t, `
var total = 0;
for (x in [1, 2]) {
    for (y in [10, 20, 30]) {
        if (y == 20) break;
        total = total + y;
    }
    total = total + x;
}
return total;
`)
	if !v.IsNumber() || v.AsNumber() != 23 {
		t.Fatalf("want 23, got %#v", v)
	}
}

func TestVariadicCollectsIntoTuple(t *testing.T) {
	v := runOK(t, `
fun count(first, rest...) {
    return first;
}
return count(1, 2, 3);
`)
	if !v.IsNumber() || v.AsNumber() != 1 {
		t.Fatalf("want 1, got %#v", v)
	}
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	cfg := heap.DefaultConfig()
	cfg.MaxFrames = 64
	vm := New(cfg)
	p := parser.New(`
fun loop() {
    return loop();
}
return loop();
`)
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	c := compiler.New()
	fn, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if _, err := vm.Run(fn); err == nil {
		t.Fatalf("want stack overflow error")
	}
}
