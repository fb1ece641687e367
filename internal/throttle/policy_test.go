package throttle

import (
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.FailureThreshold != 100 {
		t.Errorf("FailureThreshold = %d, want 100", p.FailureThreshold)
	}
	if p.FailureRange != time.Minute {
		t.Errorf("FailureRange = %v, want 1m", p.FailureRange)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func TestPolicy_ThresholdRate(t *testing.T) {
	p := Policy{FailureThreshold: 3, FailureRange: 2 * time.Second}
	if got := p.ThresholdRate(); got != 1.5 {
		t.Fatalf("ThresholdRate = %v, want 1.5", got)
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
		ok   bool
	}{
		{"valid", Policy{FailureThreshold: 5, FailureRange: time.Second}, true},
		{"zero threshold", Policy{FailureThreshold: 0, FailureRange: time.Second}, false},
		{"negative range", Policy{FailureThreshold: 5, FailureRange: -time.Second}, false},
		{"zero range", Policy{FailureThreshold: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}
