package models

import "time"

const (
	GrantTypeCredits   = "credits"
	GrantTypeUnlimited = "unlimited"
)

const (
	PlanModePayment      = "payment"
	PlanModeSubscription = "subscription"
)

// PaymentEvent is a payment-completion signal from the provider, either pushed by
// webhook or pulled after the client returns from checkout.
type PaymentEvent struct {
	Provider  string
	EventID   string
	UserID    int64
	PlanID    string
	Completed bool
}

type PassGrantResult struct {
	OK        bool       `json:"ok"`
	Type      string     `json:"type"`
	Added     *int       `json:"added,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	PassID    int64      `json:"pass_id"`
	Duplicate bool       `json:"duplicate"`
}

type ProcessedPaymentEvent struct {
	Provider     string
	EventID      string
	UserID       int64
	PlanID       string
	GrantType    string
	CreditsAdded *int
	ExpiresAt    *time.Time
	PassID       int64
	ProcessedAt  time.Time
}

func (e ProcessedPaymentEvent) Result() PassGrantResult {
	return PassGrantResult{
		OK:        true,
		Type:      e.GrantType,
		Added:     e.CreditsAdded,
		ExpiresAt: e.ExpiresAt,
		PassID:    e.PassID,
	}
}
