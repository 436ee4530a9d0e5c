package control

import (
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	limits := Limits{FlightTime: 20 * time.Second, Ceiling: 150}

	tests := []struct {
		name     string
		elapsed  time.Duration
		altitude float64
		abort    bool
		want     Cause
		wantOK   bool
	}{
		{"ceiling exceeded early", time.Second, 151, false, CauseSafetyCeiling, true},
		{"ceiling exceeded after budget", 25 * time.Second, 151, false, CauseSafetyCeiling, true},
		{"ceiling exceeded with abort", time.Second, 151, true, CauseSafetyCeiling, true},
		{"budget reached", 20 * time.Second, 100, false, CauseTimeExpired, true},
		{"budget exceeded", 21 * time.Second, 149, false, CauseTimeExpired, true},
		{"budget exceeded with abort", 21 * time.Second, 0, true, CauseTimeExpired, true},
		{"operator abort", time.Second, 50, true, CauseOperatorAbort, true},
		{"at ceiling", time.Second, 150, false, 0, false},
		{"nominal", 19 * time.Second, 50, false, 0, false},
		{"below baseline", time.Second, -30, false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Evaluate(tt.elapsed, tt.altitude, tt.abort, limits)
			if ok != tt.wantOK {
				t.Fatalf("Expected fired=%t, got %t (%s)", tt.wantOK, ok, got)
			}
			if got != tt.want {
				t.Errorf("Expected cause %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCause_String(t *testing.T) {
	tests := map[Cause]string{
		CauseTimeExpired:   "time_expired",
		CauseSafetyCeiling: "safety_ceiling_exceeded",
		CauseOperatorAbort: "operator_abort",
		Cause(42):          "Cause(42)",
	}

	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
