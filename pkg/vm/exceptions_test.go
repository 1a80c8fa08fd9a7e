package vm

import (
	"strings"
	"testing"

	"github.com/emberlang/ember/pkg/value"
)

func TestTryExceptCatchesTypeException(t *testing.T) {
	v := runOK(t, `
var result = "unset";
try {
    return 1 / 0;
} except (TypeException e) {
    result = "caught";
}
return result;
`)
	s, ok := value.AsString(v)
	if !ok || s.String() != "caught" {
		t.Fatalf("want 'caught', got %#v", v)
	}
}

func TestTryElseRunsWhenNoExceptionRaised(t *testing.T) {
	v := runOK(t, `
var result = "";
try {
    result = "body";
} except (Exception e) {
    result = "caught";
} else {
    result = result + "-else";
}
return result;
`)
	s, ok := value.AsString(v)
	if !ok || s.String() != "body-else" {
		t.Fatalf("want 'body-else', got %#v", v)
	}
}

func TestTryEnsureAlwaysRuns(t *testing.T) {
	v := runOK(t, `
var trail = "";
try {
    trail = trail + "body";
    raise Exception("boom");
} except (Exception e) {
    trail = trail + "-catch";
} ensure {
    trail = trail + "-ensure";
}
return trail;
`)
	s, ok := value.AsString(v)
	if !ok || s.String() != "body-catch-ensure" {
		t.Fatalf("want 'body-catch-ensure', got %#v", v)
	}
}

func TestUncaughtExceptionPropagatesAsRuntimeError(t *testing.T) {
	_, err := run(t, `raise Exception("kaboom");`)
	if err == nil {
		t.Fatalf("want a runtime error")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("want message to mention kaboom, got %q", err.Error())
	}
}

func TestReraiseWhenNoClauseMatchesContinuesOuterHandler(t *testing.T) {
	v := runOK(t, `
var result = "unset";
try {
    try {
        raise Exception("inner");
    } except (TypeException e) {
        result = "wrong handler";
    }
} except (Exception e) {
    result = "outer caught";
}
return result;
`)
	s, ok := value.AsString(v)
	if !ok || s.String() != "outer caught" {
		t.Fatalf("want 'outer caught', got %#v", v)
	}
}

func TestStackTraceRecordsFrames(t *testing.T) {
	_, err := run(t, `
fun inner() {
    return 1 / 0;
}
fun outer() {
    return inner();
}
return outer();
`)
	if err == nil {
		t.Fatalf("want a runtime error")
	}
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("want *RuntimeError, got %T", err)
	}
	if len(rerr.StackTrace) < 2 {
		t.Fatalf("want at least 2 stack frames, got %d: %#v", len(rerr.StackTrace), rerr.StackTrace)
	}
	names := map[string]bool{}
	for _, f := range rerr.StackTrace {
		names[f.Name] = true
	}
	if !names["inner"] || !names["outer"] {
		t.Fatalf("want frames for inner and outer, got %#v", rerr.StackTrace)
	}
}
