package xerrors

import (
	"errors"
	"io/fs"
	"runtime"
	"strings"
	"testing"
)

type stackCarrier interface{ StackPCs() []uintptr }
type pcCarrier interface{ PC() uintptr }

func framesContain(pcs []uintptr, name string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, name) {
			return true
		}
		if !more {
			return false
		}
	}
}

func TestNew(t *testing.T) {
	err := New("store unavailable")
	if err.Error() != "store unavailable" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var sc stackCarrier
	if !errors.As(err, &sc) || len(sc.StackPCs()) == 0 {
		t.Fatal("New should capture a stack")
	}
	if !framesContain(sc.StackPCs(), "TestNew") {
		t.Error("stack should include the calling test")
	}
	if framesContain(sc.StackPCs(), "xerrors.callers") {
		t.Error("stack should not include capture helpers")
	}
}

func TestNewf(t *testing.T) {
	err := Newf("sweep panicked: %v", "boom")
	if err.Error() != "sweep panicked: boom" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var sc stackCarrier
	if !errors.As(err, &sc) {
		t.Fatal("Newf should capture a stack")
	}
}

func TestNewf_WrapsVerb(t *testing.T) {
	err := Newf("open credentials: %w", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("%w target should remain reachable")
	}
}

func TestNilPassthrough(t *testing.T) {
	if WithStack(nil) != nil {
		t.Error("WithStack(nil) != nil")
	}
	if EnsureTrace(nil) != nil {
		t.Error("EnsureTrace(nil) != nil")
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) != nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) != nil")
	}
}

func TestWithStack(t *testing.T) {
	base := errors.New("base")
	err := WithStack(base)
	if err.Error() != "base" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("base should be reachable")
	}
	if errors.Unwrap(err) != base {
		t.Error("Unwrap should return base")
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("access denied")
	err := Wrap(base, "get parameter")
	if err.Error() != "get parameter: access denied" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("base should be reachable")
	}
	pc, ok := err.(pcCarrier)
	if !ok || pc.PC() == 0 {
		t.Fatal("Wrap should record a pc")
	}
	fn := runtime.FuncForPC(pc.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap") {
		t.Errorf("pc should point at the wrapping call site, got %v", fn)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("no such key"), "get s3://%s/%s", "bucket", "users.yaml")
	if err.Error() != "get s3://bucket/users.yaml: no such key" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestEnsureTrace(t *testing.T) {
	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	var sc stackCarrier
	if !errors.As(traced, &sc) {
		t.Fatal("plain error should gain a stack")
	}
	if !errors.Is(traced, plain) {
		t.Error("plain should be reachable")
	}

	already := New("already")
	if EnsureTrace(already) != already {
		t.Error("stacked error should be returned unchanged")
	}

	// a stack deeper in the chain also counts
	wrapped := Wrap(already, "outer")
	if EnsureTrace(wrapped) != wrapped {
		t.Error("wrapped stacked error should be returned unchanged")
	}
}

func TestChainedWraps(t *testing.T) {
	root := errors.New("root")
	err := Wrap(Wrapf(Wrap(root, "a"), "b%d", 2), "c")
	if err.Error() != "c: b2: a: root" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, root) {
		t.Error("root should be reachable through every wrap")
	}
	depth := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		depth++
	}
	if depth != 4 {
		t.Errorf("depth = %d, want 4", depth)
	}
}
