package event

import (
	"context"
	"encoding/json"
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

	"golang.org/x/text/message"
)

type WorkshopFinder interface {
	FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error)
}

// EnrollmentEvent turns enrollment transitions into customer emails.
type EnrollmentEvent struct {
	Workshops       WorkshopFinder
	Publisher       contract.Publisher
	AmountFormatter *message.Printer

	Timeout time.Duration
}

func (in EnrollmentEvent) Handler(ctx context.Context, subject string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.EnrollmentEvent
	if err := json.Unmarshal(msg, &req); err != nil {
		slog.WarnContext(ctx, "enrollment event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "EnrollmentEvent.handle")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	idAttr := slog.Int64(constant.LogFieldEnrollmentID, req.EnrollmentID)

	var subjectLine, template string
	switch subject {
	case constant.SubjectEnrollmentDone:
		subjectLine, template = "Enrollment confirmed", constant.EmailEnrollmentConfirmationTemplate
	case constant.SubjectEnrollmentRefund:
		subjectLine, template = "Enrollment refunded", constant.EmailEnrollmentRefundTemplate
	default:
		slog.DebugContext(ctx, "enrollment event needs no email", traceIdAttr, idAttr, slog.String("subject", subject))
		return nil
	}

	if req.CustomerEmail == "" {
		slog.WarnContext(ctx, "enrollment event without customer email", traceIdAttr, idAttr)
		return nil
	}

	title, err := in.workshopTitle(ctx, req.WorkshopID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find workshop for email", traceIdAttr, idAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return err
	}

	sendEmailReq := model.SendEmailEventMessage{
		To:      req.CustomerEmail,
		Subject: fmt.Sprintf("%s: %s", subjectLine, title),
		Body: fmt.Sprintf(template,
			greeting(req.CustomerName),
			fmt.Sprintf("ENR-%d", req.EnrollmentID),
			title,
			common.FormatAmount(in.AmountFormatter, req.Currency, req.Amount),
		),
	}

	if err = common.PublishMessage(ctx, in.Publisher, constant.SubjectSendEmail, sendEmailReq); err != nil {
		slog.ErrorContext(ctx, "enrollment email publish error", traceIdAttr, idAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return err
	}

	slog.DebugContext(ctx, "enrollment email queued", traceIdAttr, idAttr)
	return nil
}

func (in EnrollmentEvent) workshopTitle(ctx context.Context, id int64) (string, error) {
	workshop, err := in.Workshops.FindWorkshopByID(ctx, id)
	if errors.Is(err, errs.ErrWorkshopNotFound) {
		return fmt.Sprintf("Workshop #%d", id), nil
	}
	if err != nil {
		return "", err
	}
	return workshop.Title, nil
}

func greeting(name string) string {
	if name == "" {
		return "participant"
	}
	return name
}
