package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
)

type RefundCreator interface {
	CreateRefund(ctx context.Context, req model.RefundRequest) (string, error)
}

type EnrollmentFinder interface {
	FindEnrollmentByID(ctx context.Context, id int64) (model.Enrollment, error)
}

// Refunder is the operator path to a refund. It refunds the enrollment's share of the
// payment and applies the same transition as the refund webhook, which then finds
// nothing left to do.
type Refunder struct {
	Engine      Engine
	Gateway     RefundCreator
	Enrollments EnrollmentFinder
}

func (r Refunder) Refund(ctx context.Context, enrollmentID int64) (model.RefundResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "Refunder.Refund")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	enrollmentAttr := slog.Int64(constant.LogFieldEnrollmentID, enrollmentID)

	enrollment, err := r.Enrollments.FindEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.RefundResponse{}, err
	}

	if enrollment.Status != model.EnrollmentStatusCompleted || enrollment.PaymentReference == "" {
		slog.InfoContext(ctx, "enrollment not refundable", traceIdAttr, enrollmentAttr, slog.String("status", string(enrollment.Status)))
		return model.RefundResponse{}, errs.ErrNotRefundable
	}

	refundID, err := r.Gateway.CreateRefund(ctx, model.RefundRequest{
		PaymentReference: enrollment.PaymentReference,
		Amount:           enrollment.Amount,
		IdempotencyKey:   fmt.Sprintf("refund-enrollment-%d", enrollment.ID),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create refund", traceIdAttr, enrollmentAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		if errors.Is(err, errs.ErrPaymentUnavailable) {
			return model.RefundResponse{}, err
		}
		return model.RefundResponse{}, fmt.Errorf("%w: %v", errs.ErrPaymentUnavailable, err)
	}

	note := fmt.Sprintf("%s refunded by operator, refund %s", r.Engine.now().UTC().Format(time.RFC3339), refundID)
	refunded, err := r.Engine.refund(ctx, enrollment, note)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.RefundResponse{}, err
	}

	message := "Enrollment refunded"
	if !refunded {
		message = "Refund already recorded"
	}

	return model.RefundResponse{
		Success:      true,
		Message:      message,
		EnrollmentID: enrollment.ID,
		Status:       model.EnrollmentStatusRefunded,
	}, nil
}
