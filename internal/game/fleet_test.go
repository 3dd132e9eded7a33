package game

import (
	"math/rand"
	"testing"
)

func TestRandomFleet_AlwaysValid(t *testing.T) {
	manifest := []int{5, 4, 3, 3, 2}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		ships, err := RandomFleet(10, manifest, rng)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if err := ValidatePlacement(10, manifest, ships); err != nil {
			t.Fatalf("iteration %d: generated invalid fleet: %v", i, err)
		}
	}
}

func TestRandomFleet_ShipTooLong(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := RandomFleet(3, []int{5}, rng); err == nil {
		t.Fatalf("expected error for ship longer than board")
	}
}
