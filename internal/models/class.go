package models

import "time"

type ClassInstance struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	InstructorID *int64    `json:"instructor_id"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Capacity     int       `json:"capacity"`
	CreatedAt    time.Time `json:"created_at"`
}

type ClassAvailability struct {
	ClassInstance
	BookedSeats int `json:"booked_seats"`
}

func (c ClassInstance) Date() string {
	return c.StartsAt.UTC().Format("2006-01-02")
}
