package job

import "testing"

func TestEstimateMinutes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		length   int
		expected int
	}{
		{0, 1},
		{1, 1},
		{599, 1},
		{600, 2},
		{1200, 3},
		{10000, 17},
	}

	for _, tt := range tests {
		if got := EstimateMinutes(tt.length); got != tt.expected {
			t.Errorf("EstimateMinutes(%d) = %d, want %d", tt.length, got, tt.expected)
		}
	}
}
