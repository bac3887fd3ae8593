package random

import (
	"bytes"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	first, err := Key(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Key(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 32 || bytes.Equal(first, second) {
		t.Fatalf("expected two distinct 32 byte keys")
	}

	_, err = Key(0)
	if err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestJitter(t *testing.T) {
	tests := []struct {
		name string
		max  time.Duration
	}{
		{name: "Zero", max: 0},
		{name: "Negative", max: -time.Second},
		{name: "Small", max: time.Nanosecond},
		{name: "Normal", max: 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 100 {
				jitter := Jitter(tt.max)
				if jitter < 0 || (tt.max > 0 && jitter >= tt.max) || (tt.max <= 0 && jitter != 0) {
					t.Fatalf("jitter %v out of range for max %v", jitter, tt.max)
				}
			}
		})
	}
}
