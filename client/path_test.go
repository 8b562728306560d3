package client

import (
	"testing"
)

func TestReconstructorDedupsJitter(t *testing.T) {
	r := NewReconstructor()

	if !r.Observe("user-1", 43.48, -110.76) {
		t.Fatalf("first fix should extend the path")
	}
	if r.Observe("user-1", 43.48001, -110.76001) {
		t.Fatalf("jitter fix should be dropped")
	}
	if !r.Observe("user-1", 43.4801, -110.76) {
		t.Fatalf("real movement should extend the path")
	}

	if got := len(r.Path("user-1")); got != 2 {
		t.Fatalf("expected 2 recorded points, got %d", got)
	}
}

func TestReconstructorDistanceMonotonic(t *testing.T) {
	r := NewReconstructor()
	fixes := [][2]float64{
		{43.48, -110.76},
		{43.4801, -110.76},
		{43.4802, -110.7601},
		{43.4803, -110.7602},
	}

	prev := 0.0
	for _, f := range fixes {
		r.Observe("user-1", f[0], f[1])
		d := r.DistanceM("user-1")
		if d < prev {
			t.Fatalf("distance decreased: %v < %v", d, prev)
		}
		prev = d
	}
	if prev <= 0 {
		t.Fatalf("expected positive distance")
	}
}

func TestReconstructorIndependentMembers(t *testing.T) {
	r := NewReconstructor()
	r.Observe("user-1", 43.48, -110.76)
	r.Observe("user-2", 10.0, 20.0)

	if len(r.Path("user-1")) != 1 || len(r.Path("user-2")) != 1 {
		t.Fatalf("paths should be tracked per member")
	}

	r.Forget("user-2")
	if len(r.Path("user-2")) != 0 {
		t.Fatalf("expected forgotten path to be empty")
	}
	if len(r.Path("user-1")) != 1 {
		t.Fatalf("forget must not touch other members")
	}
}
