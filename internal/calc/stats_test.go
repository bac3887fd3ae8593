package calc

import (
	"slices"
	"testing"
)

func TestTrimmedMeanUint64(t *testing.T) {
	tests := []struct {
		name         string
		values       []uint64
		trimFraction float64
		want         uint64
	}{
		{"empty slice", nil, 0.1, 0},
		{"no trimming", []uint64{1, 2, 3, 4}, 0, 2},
		{"simple trimming", []uint64{1, 2, 3, 100}, 0.25, 2},
		{"trim fraction too large", []uint64{10, 20, 30}, 0.5, 20},
		{"negative trim treated as zero", []uint64{5, 5, 5}, -1, 5},
		{"outlier removed", []uint64{1000, 10, 12, 11}, 0.25, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimmedMean(tt.values, tt.trimFraction)
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestTrimmedMeanFloat64(t *testing.T) {
	values := []float64{2.5, 1.5, 9.0, 0.5}
	got := TrimmedMean(values, 0.25)
	if got != 2.0 {
		t.Fatalf("expected 2.0, got %v", got)
	}
	if !slices.Equal(values, []float64{2.5, 1.5, 9.0, 0.5}) {
		t.Fatalf("input was reordered: %v", values)
	}
}

func TestWindow(t *testing.T) {
	window := NewWindow[uint64](3)
	if got := window.Drain(); len(got) != 0 {
		t.Fatalf("new window not empty: %v", got)
	}

	window.Add(1)
	window.Add(2)
	if got := window.Drain(); !slices.Equal(got, []uint64{1, 2}) {
		t.Fatalf("partial window: %v", got)
	}

	for v := uint64(1); v <= 5; v++ {
		window.Add(v)
	}
	if got := window.Drain(); !slices.Equal(got, []uint64{3, 4, 5}) {
		t.Fatalf("wrapped window: %v", got)
	}
	if got := window.Drain(); len(got) != 0 {
		t.Fatalf("drain should empty the window: %v", got)
	}
}
