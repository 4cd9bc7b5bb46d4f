// Package capacity answers whether a workshop can admit another participant.
//
// The check is advisory: it reads the completed count and decides, without holding
// any lock. Two checkouts racing for the last seat can both pass; the overshoot is
// bounded by concurrent webhook deliveries and is accepted over serialising
// admissions.
package capacity

import (
	"context"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"
)

const ReasonSoldOut = "sold out"

type Decision struct {
	Allowed  bool   `json:"allowed"`
	Waitlist bool   `json:"waitlist"`
	Reason   string `json:"reason,omitempty"`
	// Remaining is -1 for unlimited workshops.
	Remaining int64 `json:"remaining"`
}

// CanAdmit applies the admission rules to a workshop and its count of completed
// enrollments. A capacity of 0 means unlimited.
func CanAdmit(w model.Workshop, completed int64) Decision {
	if w.Capacity == 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	remaining := int64(w.Capacity) - completed
	if remaining > 0 {
		return Decision{Allowed: true, Remaining: remaining}
	}

	if w.WaitlistEnabled {
		return Decision{Allowed: false, Waitlist: true}
	}

	return Decision{Allowed: false, Waitlist: false, Reason: ReasonSoldOut}
}

// Err is nil when admission is allowed, otherwise the error that tells the caller
// where to route the visitor.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Waitlist:
		return errs.ErrWaitlistAvailable
	default:
		return errs.ErrSoldOut
	}
}

type CompletedCounter interface {
	CountCompletedEnrollments(ctx context.Context, workshopID int64) (int64, error)
}

type Checker struct {
	Counter CompletedCounter
}

func (c Checker) Check(ctx context.Context, w model.Workshop) (Decision, error) {
	if w.Capacity == 0 {
		return CanAdmit(w, 0), nil
	}

	completed, err := c.Counter.CountCompletedEnrollments(ctx, w.ID)
	if err != nil {
		return Decision{}, err
	}

	return CanAdmit(w, completed), nil
}
