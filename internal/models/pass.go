package models

import "time"

type PassKind string

const (
	PassKindFiniteCredit    PassKind = "finite_credit"
	PassKindUnlimitedWindow PassKind = "unlimited_window"
)

type Pass struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	PassType         string     `json:"pass_type"`
	Kind             PassKind   `json:"kind"`
	RemainingCredits *int       `json:"remaining_credits"`
	ValidUntil       *time.Time `json:"valid_until"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PassView is a pass as shown to its owner, with eligibility resolved at read time.
type PassView struct {
	Pass
	Eligible bool `json:"eligible"`
}

// IsEligible reports whether the pass can be used to book a class at now.
// Every caller that needs to know whether a pass is usable goes through here.
func IsEligible(pass Pass, now time.Time) bool {
	if !pass.Active {
		return false
	}
	switch pass.Kind {
	case PassKindUnlimitedWindow:
		return pass.ValidUntil != nil && pass.ValidUntil.After(now)
	case PassKindFiniteCredit:
		return pass.RemainingCredits != nil && *pass.RemainingCredits > 0
	default:
		return false
	}
}
