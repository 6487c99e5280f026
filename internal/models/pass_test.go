package models

import (
	"testing"
	"time"
)

func TestIsEligible(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	credits := func(n int) *int { return &n }
	until := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		pass Pass
		want bool
	}{
		{name: "credits left", pass: Pass{Kind: PassKindFiniteCredit, RemainingCredits: credits(1), Active: true}, want: true},
		{name: "no credits", pass: Pass{Kind: PassKindFiniteCredit, RemainingCredits: credits(0), Active: true}, want: false},
		{name: "nil credits", pass: Pass{Kind: PassKindFiniteCredit, Active: true}, want: false},
		{name: "inactive with credits", pass: Pass{Kind: PassKindFiniteCredit, RemainingCredits: credits(3), Active: false}, want: false},
		{name: "unlimited in window", pass: Pass{Kind: PassKindUnlimitedWindow, ValidUntil: until(time.Hour), Active: true}, want: true},
		{name: "unlimited expired", pass: Pass{Kind: PassKindUnlimitedWindow, ValidUntil: until(-time.Hour), Active: true}, want: false},
		{name: "unlimited ends now", pass: Pass{Kind: PassKindUnlimitedWindow, ValidUntil: until(0), Active: true}, want: false},
		{name: "unlimited without window", pass: Pass{Kind: PassKindUnlimitedWindow, Active: true}, want: false},
		{name: "unknown kind", pass: Pass{Kind: "gift", RemainingCredits: credits(1), Active: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(tt.pass, now); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
