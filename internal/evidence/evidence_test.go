package evidence

import "testing"

func TestMinimumRequired_FloorDominates(t *testing.T) {
	if got := MinimumRequired(2000, 2000); got != 1600 {
		t.Errorf("MinimumRequired(2000,2000) = %d, want 1600", got)
	}
}

func TestMinimumRequired_PercentageDominates(t *testing.T) {
	got := MinimumRequired(100000, 100000)
	if got != 5000 {
		t.Errorf("MinimumRequired(100000,100000) = %d, want 5000", got)
	}
}

func TestMinimumRequired_UsesSmaller(t *testing.T) {
	got := MinimumRequired(20000, 200000)
	if got != 1600 {
		t.Errorf("MinimumRequired(20000,200000) = %d, want 1600 (5%% of 20000=1000 < floor)", got)
	}
}
