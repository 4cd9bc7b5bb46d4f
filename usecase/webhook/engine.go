// Package webhook reconciles enrollments with the payment processor's event stream.
// Every event is authenticated, deduplicated, routed to a handler and only then
// recorded as processed, so redeliveries are harmless.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
	"workshop-enrollment/usecase/checkout"

	"github.com/stripe/stripe-go/v80"
	"go.opentelemetry.io/otel/attribute"
)

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutExpired        = "checkout.session.expired"
	EventChargeRefunded         = "charge.refunded"
	EventPaymentFailed          = "payment_intent.payment_failed"
)

type DedupStore interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	Lock(ctx context.Context, eventID string) (bool, error)
	Unlock(ctx context.Context, eventID string) error
}

type EnrollmentStore interface {
	UpsertCompletedEnrollment(ctx context.Context, e model.Enrollment) (model.EnrollmentUpsert, error)
	FailPendingEnrollmentsBySession(ctx context.Context, sessionID string) ([]model.Enrollment, error)
	FindEnrollmentsByPaymentReference(ctx context.Context, reference string) ([]model.Enrollment, error)
	MarkEnrollmentRefunded(ctx context.Context, id int64, note string) (bool, error)
	AppendEnrollmentNote(ctx context.Context, id int64, note string) error
}

type WorkshopFinder interface {
	FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error)
}

type Converter interface {
	Convert(ctx context.Context, entryID, enrollmentID int64) (bool, error)
}

type ClaimReleaser interface {
	Release(ctx context.Context, ownerKey string, workshopID int64) error
}

type CartClearer interface {
	Delete(ctx context.Context, key string) error
}

type Engine struct {
	Verifier    Verifier
	Dedup       DedupStore
	Enrollments EnrollmentStore
	Workshops   WorkshopFinder
	Waitlist    Converter
	Claims      ClaimReleaser
	Carts       CartClearer
	Steps       []Step
	TimeNow     func() time.Time
}

// Handle authenticates and applies one delivery. The returned message is safe to
// send back to the processor.
func (e Engine) Handle(ctx context.Context, payload []byte, signature string) (string, error) {
	ctx, span := otel.Tracer.Start(ctx, "Engine.Handle")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	if err := e.Verifier.Verify(payload, signature); err != nil {
		slog.WarnContext(ctx, "webhook signature rejected", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return "", err
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		slog.WarnContext(ctx, "malformed webhook event", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return "", fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Type == "" || event.Data == nil {
		return "", errs.ErrMalformedEvent
	}

	eventAttr := slog.String(constant.LogFieldEventID, event.ID)
	typeAttr := slog.String(constant.LogFieldEventType, string(event.Type))
	span.SetAttributes(attribute.String("stripe.event_id", event.ID), attribute.String("stripe.event_type", string(event.Type)))

	processed, err := e.Dedup.Processed(ctx, event.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check processed events", traceIdAttr, eventAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return "", err
	}
	if processed {
		slog.InfoContext(ctx, "webhook event already processed", traceIdAttr, eventAttr, typeAttr)
		return "Event already processed", nil
	}

	locked, err := e.Dedup.Lock(ctx, event.ID)
	if err != nil {
		common.UtilSpanError(span, err)
		return "", err
	}
	if !locked {
		slog.WarnContext(ctx, "webhook event in flight", traceIdAttr, eventAttr, typeAttr)
		return "", errs.ErrEventInFlight
	}
	defer func() {
		if err := e.Dedup.Unlock(context.WithoutCancel(ctx), event.ID); err != nil {
			slog.WarnContext(ctx, "failed to release webhook event lock", traceIdAttr, eventAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	slog.InfoContext(ctx, "processing webhook event", traceIdAttr, eventAttr, typeAttr)

	if err = e.route(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to process webhook event", traceIdAttr, eventAttr, typeAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return "", err
	}

	if err = e.Dedup.MarkProcessed(ctx, event.ID); err != nil {
		slog.WarnContext(ctx, "failed to record processed event", traceIdAttr, eventAttr, slog.Any(constant.LogFieldErr, err))
	}

	return "Webhook processed", nil
}

func (e Engine) route(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
		return e.checkoutCompleted(ctx, event)
	case EventCheckoutExpired:
		return e.checkoutExpired(ctx, event)
	case EventChargeRefunded:
		return e.chargeRefunded(ctx, event)
	case EventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
		}
		slog.WarnContext(ctx, "payment failed", common.ExtractTraceIDFromCtx(ctx), slog.String("payment_intent", intent.ID))
		return nil
	default:
		slog.InfoContext(ctx, "ignoring webhook event", common.ExtractTraceIDFromCtx(ctx), slog.String(constant.LogFieldEventType, string(event.Type)))
		return nil
	}
}

type purchasedLine struct {
	workshopID    int64
	pricingOption string
	amount        int64
}

func (e Engine) checkoutCompleted(ctx context.Context, event stripe.Event) error {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	sessionAttr := slog.String(constant.LogFieldSessionID, session.ID)

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		slog.InfoContext(ctx, "checkout session awaiting payment", traceIdAttr, sessionAttr, slog.String("payment_status", string(session.PaymentStatus)))
		return nil
	}

	metadata, err := checkout.DecodeMetadata(session.Metadata)
	if err != nil {
		return err
	}

	var lines []purchasedLine
	if metadata.Kind == checkout.KindCart {
		for _, item := range metadata.Items {
			lines = append(lines, purchasedLine{workshopID: item.WorkshopID, pricingOption: item.PricingOption, amount: item.Price})
		}
	} else {
		lines = append(lines, purchasedLine{workshopID: metadata.WorkshopID, pricingOption: metadata.PricingOption, amount: session.AmountTotal})
	}

	customer := model.Enrollment{
		CustomerEmail: session.CustomerEmail,
		Currency:      string(session.Currency),
		SessionID:     session.ID,
	}
	if session.CustomerDetails != nil {
		if session.CustomerDetails.Email != "" {
			customer.CustomerEmail = session.CustomerDetails.Email
		}
		customer.CustomerName = session.CustomerDetails.Name
		customer.CustomerPhone = session.CustomerDetails.Phone
	}
	if session.PaymentIntent != nil {
		customer.PaymentReference = session.PaymentIntent.ID
	}

	var completed []model.Enrollment
	for _, line := range lines {
		lineAttr := slog.Int64(constant.LogFieldWorkshopID, line.workshopID)

		if _, err := e.Workshops.FindWorkshopByID(ctx, line.workshopID); err != nil {
			if errors.Is(err, errs.ErrWorkshopNotFound) {
				slog.ErrorContext(ctx, "purchased workshop not found, skipping line", traceIdAttr, sessionAttr, lineAttr)
				continue
			}
			return err
		}

		enrollment := customer
		enrollment.WorkshopID = line.workshopID
		enrollment.PricingOptionID = line.pricingOption
		enrollment.Amount = line.amount

		if !enrollment.Completable() {
			slog.ErrorContext(ctx, "checkout line cannot complete an enrollment, skipping", traceIdAttr, sessionAttr, lineAttr,
				slog.Bool("has_email", enrollment.CustomerEmail != ""), slog.Int64("amount", enrollment.Amount))
			continue
		}

		result, err := e.Enrollments.UpsertCompletedEnrollment(ctx, enrollment)
		if err != nil {
			return err
		}
		completed = append(completed, result.Enrollment)

		if !result.Transitioned {
			slog.InfoContext(ctx, "enrollment already completed", traceIdAttr, sessionAttr, lineAttr,
				slog.Int64(constant.LogFieldEnrollmentID, result.Enrollment.ID))
			continue
		}

		previous := model.EnrollmentStatusPending
		if result.Inserted {
			previous = ""
		}
		slog.InfoContext(ctx, "enrollment completed", traceIdAttr, sessionAttr, lineAttr,
			slog.Int64(constant.LogFieldEnrollmentID, result.Enrollment.ID), slog.Bool("inserted", result.Inserted))

		runSteps(ctx, e.Steps, Transition{Type: model.EnrollmentCompleted, Enrollment: result.Enrollment, Previous: previous})
	}

	if claimed, ok := claimedEnrollment(metadata, completed); ok {
		if _, err = e.Waitlist.Convert(ctx, metadata.WaitlistEntryID, claimed.ID); err != nil {
			return err
		}
		if metadata.ClaimOwner != "" {
			for _, line := range lines {
				if err := e.Claims.Release(ctx, metadata.ClaimOwner, line.workshopID); err != nil {
					slog.WarnContext(ctx, "failed to release claim binding", traceIdAttr, sessionAttr, slog.Any(constant.LogFieldErr, err))
				}
			}
		}
	}

	if metadata.CartKey != "" {
		if err = e.Carts.Delete(ctx, metadata.CartKey); err != nil {
			slog.WarnContext(ctx, "failed to clear purchased cart", traceIdAttr, sessionAttr, slog.Any(constant.LogFieldErr, err))
		}
	}

	return nil
}

// claimedEnrollment picks the completed row for the claimed workshop. Sessions that
// predate the claim workshop key fall back to the first completed row.
func claimedEnrollment(metadata checkout.Metadata, completed []model.Enrollment) (model.Enrollment, bool) {
	if metadata.WaitlistEntryID == 0 || len(completed) == 0 {
		return model.Enrollment{}, false
	}
	if metadata.ClaimWorkshopID == 0 {
		return completed[0], true
	}
	for _, enrollment := range completed {
		if enrollment.WorkshopID == metadata.ClaimWorkshopID {
			return enrollment, true
		}
	}
	return model.Enrollment{}, false
}

func (e Engine) checkoutExpired(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}

	failed, err := e.Enrollments.FailPendingEnrollmentsBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "checkout session expired", common.ExtractTraceIDFromCtx(ctx),
		slog.String(constant.LogFieldSessionID, session.ID), slog.Int("failed", len(failed)))

	for _, enrollment := range failed {
		runSteps(ctx, e.Steps, Transition{Type: model.EnrollmentStatusUpdated, Enrollment: enrollment, Previous: model.EnrollmentStatusPending})
	}

	return nil
}

func (e Engine) chargeRefunded(ctx context.Context, event stripe.Event) error {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		slog.InfoContext(ctx, "refunded charge has no payment intent", traceIdAttr, slog.String("charge", charge.ID))
		return nil
	}

	enrollments, err := e.Enrollments.FindEnrollmentsByPaymentReference(ctx, charge.PaymentIntent.ID)
	if err != nil {
		return err
	}
	if len(enrollments) == 0 {
		slog.InfoContext(ctx, "no enrollment for refunded charge", traceIdAttr, slog.String("payment_intent", charge.PaymentIntent.ID))
		return nil
	}

	if !charge.Refunded {
		note := fmt.Sprintf("%s partial refund of %d on charge %s", e.now().UTC().Format(time.RFC3339), charge.AmountRefunded, charge.ID)
		for _, enrollment := range enrollments {
			if err = e.Enrollments.AppendEnrollmentNote(ctx, enrollment.ID, note); err != nil {
				return err
			}
		}
		return nil
	}

	note := fmt.Sprintf("%s refunded via charge %s", e.now().UTC().Format(time.RFC3339), charge.ID)
	for _, enrollment := range enrollments {
		if _, err = e.refund(ctx, enrollment, note); err != nil {
			return err
		}
	}

	return nil
}

// refund applies the first-writer-wins completed -> refunded transition. A row that
// already left completed only gets the audit note.
func (e Engine) refund(ctx context.Context, enrollment model.Enrollment, note string) (bool, error) {
	refunded, err := e.Enrollments.MarkEnrollmentRefunded(ctx, enrollment.ID, note)
	if err != nil {
		return false, err
	}

	if !refunded {
		if err = e.Enrollments.AppendEnrollmentNote(ctx, enrollment.ID, "duplicate refund notice: "+note); err != nil {
			return false, err
		}
		return false, nil
	}

	slog.InfoContext(ctx, "enrollment refunded", common.ExtractTraceIDFromCtx(ctx),
		slog.Int64(constant.LogFieldEnrollmentID, enrollment.ID), slog.Int64(constant.LogFieldWorkshopID, enrollment.WorkshopID))

	previous := enrollment.Status
	enrollment.Status = model.EnrollmentStatusRefunded
	runSteps(ctx, e.Steps, Transition{Type: model.EnrollmentRefunded, Enrollment: enrollment, Previous: previous})

	return true, nil
}

func (e Engine) now() time.Time {
	if e.TimeNow == nil {
		return time.Now()
	}
	return e.TimeNow()
}
