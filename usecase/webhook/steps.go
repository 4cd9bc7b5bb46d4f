package webhook

import (
	"context"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/contract"
	"workshop-enrollment/model"
)

// Transition is a committed enrollment state change.
type Transition struct {
	Type       model.EnrollmentEventType
	Enrollment model.Enrollment
	Previous   model.EnrollmentStatus
}

// Step runs after a transition committed. Steps run in order and their errors are
// logged, never returned to the payment processor.
type Step interface {
	Name() string
	Run(ctx context.Context, t Transition) error
}

func runSteps(ctx context.Context, steps []Step, t Transition) {
	for _, step := range steps {
		if err := step.Run(ctx, t); err != nil {
			slog.ErrorContext(ctx, "post-processing step failed", common.ExtractTraceIDFromCtx(ctx),
				slog.String("step", step.Name()),
				slog.String(constant.LogFieldEventType, string(t.Type)),
				slog.Int64(constant.LogFieldEnrollmentID, t.Enrollment.ID),
				slog.Any(constant.LogFieldErr, err))
		}
	}
}

// PublishStep announces the transition on events.enrollment.<type>.
type PublishStep struct {
	Publisher contract.Publisher
	TimeNow   func() time.Time
}

func (PublishStep) Name() string { return "publish" }

func (p PublishStep) Run(ctx context.Context, t Transition) error {
	now := time.Now()
	if p.TimeNow != nil {
		now = p.TimeNow()
	}

	event := model.NewEnrollmentEvent(t.Type, t.Enrollment, t.Previous, now)
	return common.PublishMessage(ctx, p.Publisher, constant.SubjectEnrollmentPrefix+string(t.Type), event)
}

type NextInLineNotifier interface {
	NotifyNextInLine(ctx context.Context, workshopID int64) (bool, error)
}

// WaitlistStep offers a refunded seat to the waitlist of a capacity-limited workshop.
type WaitlistStep struct {
	Workshops WorkshopFinder
	Waitlist  NextInLineNotifier
}

func (WaitlistStep) Name() string { return "waitlist" }

func (w WaitlistStep) Run(ctx context.Context, t Transition) error {
	if t.Type != model.EnrollmentRefunded {
		return nil
	}

	workshop, err := w.Workshops.FindWorkshopByID(ctx, t.Enrollment.WorkshopID)
	if err != nil {
		return err
	}
	if !workshop.WaitlistEnabled || workshop.Capacity == 0 {
		return nil
	}

	_, err = w.Waitlist.NotifyNextInLine(ctx, workshop.ID)
	return err
}
