// Package checkout opens hosted payment sessions for a single admission or a cart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/contract"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"

	"github.com/oklog/ulid/v2"
)

type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req model.CheckoutSessionRequest) (model.CheckoutSession, error)
}

type PendingStore interface {
	InsertPendingEnrollment(ctx context.Context, e *model.Enrollment) (bool, error)
}

type Builder struct {
	Gateway     SessionCreator
	Enrollments PendingStore
	// Publisher receives enrollment.created for every pre-created row. Optional.
	Publisher contract.Publisher
	TimeNow   func() time.Time
}

// Claim is a waitlist claim the checkout was admitted under.
type Claim struct {
	EntryID    int64
	OwnerKey   string
	WorkshopID int64
}

type line struct {
	workshopID int64
	title      string
	currency   string
	optionID   string
	price      int64
}

func (b Builder) Single(ctx context.Context, workshop model.Workshop, option model.PricingOption, email string, claim Claim) (model.CheckoutResponse, error) {
	metadata := Metadata{
		Kind:            KindSingle,
		WorkshopID:      workshop.ID,
		PricingOption:   option.ID,
		WaitlistEntryID: claim.EntryID,
		ClaimOwner:      claim.OwnerKey,
		ClaimWorkshopID: claim.WorkshopID,
	}

	return b.build(ctx, []line{{
		workshopID: workshop.ID,
		title:      workshop.Title,
		currency:   workshop.Currency,
		optionID:   option.ID,
		price:      option.Price,
	}}, metadata, email)
}

// Cart expects a validated cart: every line resolved against the catalog with a fresh
// price snapshot.
func (b Builder) Cart(ctx context.Context, cart model.Cart, email string, claim Claim) (model.CheckoutResponse, error) {
	if len(cart.Items) == 0 {
		return model.CheckoutResponse{}, errs.ErrCartEmpty
	}

	metadata := Metadata{
		Kind:            KindCart,
		WaitlistEntryID: claim.EntryID,
		ClaimOwner:      claim.OwnerKey,
		ClaimWorkshopID: claim.WorkshopID,
		CartKey:         cart.Key,
	}

	lines := make([]line, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, line{
			workshopID: item.WorkshopID,
			title:      item.Title,
			currency:   cart.Currency,
			optionID:   item.PricingOptionID,
			price:      item.Price,
		})
		metadata.Items = append(metadata.Items, MetadataItem{
			WorkshopID:    item.WorkshopID,
			PricingOption: item.PricingOptionID,
			Price:         item.Price,
		})
	}

	return b.build(ctx, lines, metadata, email)
}

func (b Builder) build(ctx context.Context, lines []line, metadata Metadata, email string) (model.CheckoutResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "Builder.build")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	encoded, err := metadata.Encode()
	if err != nil {
		common.UtilSpanError(span, err)
		return model.CheckoutResponse{}, err
	}

	req := model.CheckoutSessionRequest{
		Metadata:       encoded,
		CustomerEmail:  email,
		IdempotencyKey: ulid.Make().String(),
	}
	for _, l := range lines {
		if l.price <= 0 {
			return model.CheckoutResponse{}, errs.ErrInvalidAmount
		}
		req.LineItems = append(req.LineItems, model.CheckoutLineItem{
			Name:     l.title,
			Amount:   l.price,
			Currency: l.currency,
		})
	}

	session, err := b.Gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create checkout session", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		if errors.Is(err, errs.ErrPaymentUnavailable) {
			return model.CheckoutResponse{}, err
		}
		return model.CheckoutResponse{}, fmt.Errorf("%w: %v", errs.ErrPaymentUnavailable, err)
	}

	sessionAttr := slog.String(constant.LogFieldSessionID, session.ID)
	slog.InfoContext(ctx, "checkout session created", traceIdAttr, sessionAttr, slog.String("kind", string(metadata.Kind)))

	for _, l := range lines {
		b.precreate(ctx, session.ID, l, email)
	}

	return model.CheckoutResponse{
		Success:     true,
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

// precreate records a pending enrollment for the line. A failure here is tolerated:
// reconciliation inserts rows that are missing.
func (b Builder) precreate(ctx context.Context, sessionID string, l line, email string) {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	enrollment := model.Enrollment{
		WorkshopID:      l.workshopID,
		CustomerEmail:   email,
		Amount:          l.price,
		Currency:        l.currency,
		PricingOptionID: l.optionID,
		SessionID:       sessionID,
		Status:          model.EnrollmentStatusPending,
	}

	inserted, err := b.Enrollments.InsertPendingEnrollment(ctx, &enrollment)
	if err != nil {
		slog.WarnContext(ctx, "failed to pre-create pending enrollment", traceIdAttr,
			slog.String(constant.LogFieldSessionID, sessionID), slog.Int64(constant.LogFieldWorkshopID, l.workshopID),
			slog.Any(constant.LogFieldErr, err))
		return
	}
	if !inserted || b.Publisher == nil {
		return
	}

	event := model.NewEnrollmentEvent(model.EnrollmentCreated, enrollment, "", b.now())
	if err = common.PublishMessage(ctx, b.Publisher, constant.SubjectEnrollmentCreated, event); err != nil {
		slog.WarnContext(ctx, "failed to publish enrollment created", traceIdAttr,
			slog.Int64(constant.LogFieldEnrollmentID, enrollment.ID), slog.Any(constant.LogFieldErr, err))
	}
}

func (b Builder) now() time.Time {
	if b.TimeNow == nil {
		return time.Now()
	}
	return b.TimeNow()
}
