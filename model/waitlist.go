package model

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusConverted WaitlistStatus = "converted"
	WaitlistStatusExpired   WaitlistStatus = "expired"
)

func (s WaitlistStatus) Terminal() bool {
	return s == WaitlistStatusConverted || s == WaitlistStatusExpired
}

type WaitlistEntry struct {
	ID             int64          `json:"id"`
	WorkshopID     int64          `json:"workshop_id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	Phone          string         `json:"phone"`
	Position       int32          `json:"position"`
	Status         WaitlistStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	NotifiedAt     *time.Time     `json:"notified_at,omitempty"`
	EnrollmentID   *int64         `json:"enrollment_id,omitempty"`
	ClaimToken     string         `json:"-"`
	ClaimExpiresAt *time.Time     `json:"-"`
}

type JoinWaitlistRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"max=32"`
}

type JoinWaitlistResponse struct {
	Success      bool   `json:"success"`
	Position     int32  `json:"position"`
	EntryID      int64  `json:"entry_id"`
	WaitingAhead int64  `json:"waiting_ahead"`
	Message      string `json:"message,omitempty"`
}
