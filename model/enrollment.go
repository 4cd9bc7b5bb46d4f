package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusRefunded  EnrollmentStatus = "refunded"
	EnrollmentStatusFailed    EnrollmentStatus = "failed"
)

// CanTransitionTo reports whether the status may advance to next.
//
//	pending -> completed -> refunded
//	pending -> failed
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	switch s {
	case EnrollmentStatusPending:
		return next == EnrollmentStatusCompleted || next == EnrollmentStatusFailed
	case EnrollmentStatusCompleted:
		return next == EnrollmentStatusRefunded
	default:
		return false
	}
}

type Enrollment struct {
	ID               int64            `json:"id"`
	WorkshopID       int64            `json:"workshop_id"`
	CustomerEmail    string           `json:"customer_email"`
	CustomerName     string           `json:"customer_name"`
	CustomerPhone    string           `json:"customer_phone"`
	Amount           int64            `json:"amount"`
	Currency         string           `json:"currency"`
	PricingOptionID  string           `json:"pricing_option_id"`
	SessionID        string           `json:"session_id"`
	PaymentReference string           `json:"payment_reference"`
	Status           EnrollmentStatus `json:"status"`
	Notes            string           `json:"notes"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Completable checks the invariant every completed enrollment must hold.
func (e Enrollment) Completable() bool {
	return e.CustomerEmail != "" && e.Amount > 0
}

// EnrollmentUpsert reports what completing an enrollment for a session did.
type EnrollmentUpsert struct {
	Enrollment Enrollment
	// Inserted is true when no pending row existed for the session.
	Inserted bool
	// Transitioned is false when the row was already past pending.
	Transitioned bool
}

type EnrollmentEventType string

const (
	EnrollmentCreated       EnrollmentEventType = "created"
	EnrollmentCompleted     EnrollmentEventType = "completed"
	EnrollmentRefunded      EnrollmentEventType = "refunded"
	EnrollmentStatusUpdated EnrollmentEventType = "status_updated"
)

// EnrollmentEvent is published after a committed state transition.
type EnrollmentEvent struct {
	Type           EnrollmentEventType `json:"type"`
	EnrollmentID   int64               `json:"enrollment_id"`
	WorkshopID     int64               `json:"workshop_id"`
	PreviousStatus EnrollmentStatus    `json:"previous_status,omitempty"`
	Status         EnrollmentStatus    `json:"status"`
	CustomerEmail  string              `json:"customer_email"`
	CustomerName   string              `json:"customer_name"`
	Amount         int64               `json:"amount"`
	Currency       string              `json:"currency"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func NewEnrollmentEvent(eventType EnrollmentEventType, e Enrollment, previous EnrollmentStatus, at time.Time) EnrollmentEvent {
	return EnrollmentEvent{
		Type:           eventType,
		EnrollmentID:   e.ID,
		WorkshopID:     e.WorkshopID,
		PreviousStatus: previous,
		Status:         e.Status,
		CustomerEmail:  e.CustomerEmail,
		CustomerName:   e.CustomerName,
		Amount:         e.Amount,
		Currency:       e.Currency,
		OccurredAt:     at,
	}
}

type CheckoutRequest struct {
	WorkshopID    int64  `json:"workshop_id" validate:"required"`
	PricingOption string `json:"pricing_option" validate:"max=64"`
	Email         string `json:"email" validate:"omitempty,email"`
}

type CartCheckoutRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type CheckoutResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

type RefundResponse struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	EnrollmentID int64            `json:"enrollment_id"`
	Status       EnrollmentStatus `json:"status"`
}
