package modules

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestRegistrySnapshotAndRemoval(t *testing.T) {
	r := newRegistry[string]()
	var a, b int
	idA := r.add(func(string) { a++ })
	r.add(func(string) { b++ })

	for _, fn := range r.snapshot() {
		fn("x")
	}
	if a != 1 || b != 1 {
		t.Fatalf("snapshot dispatch: a=%d b=%d", a, b)
	}

	r.remove(idA)
	r.remove(idA) // remoção repetida é inofensiva
	for _, fn := range r.snapshot() {
		fn("y")
	}
	if a != 1 || b != 2 {
		t.Fatalf("after removal: a=%d b=%d", a, b)
	}

	r.clear()
	if len(r.snapshot()) != 0 {
		t.Fatalf("clear must drop every handler")
	}
}

func TestSafeInvokeSwallowsPanics(t *testing.T) {
	log := zerolog.Nop()
	called := false
	safeInvoke(log, func(string) { panic("boom") }, "x")
	safeInvoke(log, func(string) { called = true }, "x")
	if !called {
		t.Fatalf("a panicking handler must not stop later invocations")
	}
}
