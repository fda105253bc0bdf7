package xerrors

import (
	"errors"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
}

func TestWrapMessageAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "reading index")
	if got, want := err.Error(), "reading index: boom"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, base) {
		t.Fatal("wrapped error should match base via errors.Is")
	}
}

func TestNewCapturesStack(t *testing.T) {
	err := New("boom")
	type hasStack interface{ StackPCs() []uintptr }
	hs, ok := err.(hasStack)
	if !ok {
		t.Fatal("New should attach a stack")
	}
	if len(hs.StackPCs()) == 0 {
		t.Fatal("captured stack is empty")
	}
}

func TestEnsureTraceIdempotent(t *testing.T) {
	err := New("boom")
	if EnsureTrace(err) != err {
		t.Fatal("EnsureTrace should not re-wrap an already stacked error")
	}

	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	if traced == plain {
		t.Fatal("EnsureTrace should wrap a plain error")
	}
	if !errors.Is(traced, plain) {
		t.Fatal("traced error should still match the original")
	}
}

func TestWrapRecordsPC(t *testing.T) {
	err := Wrap(errors.New("boom"), "ctx")
	type hasPC interface{ PC() uintptr }
	hp, ok := err.(hasPC)
	if !ok {
		t.Fatal("Wrap should record the call site PC")
	}
	if hp.PC() == 0 {
		t.Fatal("PC should be non-zero")
	}
}
