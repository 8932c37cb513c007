package cleanup_test

import (
	"testing"

	"github.com/Open-Technology-Foundation/checkpoint/internal/cleanup"
)

func TestRunExecutesFinalizersInLIFOOrder(t *testing.T) {
	var order []int
	c := cleanup.New()
	c.Register(func() { order = append(order, 1) })
	c.Register(func() { order = append(order, 2) })
	c.Register(func() { order = append(order, 3) })

	c.Run()

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	calls := 0
	c := cleanup.New()
	c.Register(func() { calls++ })

	c.Run()
	c.Run()

	if calls != 1 {
		t.Fatalf("expected finalizer to run once, ran %d times", calls)
	}
}

func TestRunRecoversFromPanickingFinalizer(t *testing.T) {
	ran := false
	c := cleanup.New()
	c.Register(func() { ran = true })
	c.Register(func() { panic("boom") })

	c.Run()

	if !ran {
		t.Fatal("expected finalizers registered before the panicking one to still run")
	}
}
