package models

import "time"

const (
	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"
)

type Booking struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	ClassID     int64      `json:"class_id"`
	PassID      *int64     `json:"pass_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

type BookResult struct {
	BookingID        int64  `json:"booking_id"`
	UsedCredit       bool   `json:"used_credit"`
	RemainingCredits *int   `json:"remaining_credits"`
	PassID           *int64 `json:"pass_id,omitempty"`
	AlreadyBooked    bool   `json:"already_booked"`
}
