package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/model"

	"github.com/oklog/ulid/v2"
)

type Sender interface {
	Send(to []string, subject string, body string) error
}

type EmailEvent struct {
	Sender  Sender
	Timeout time.Duration
}

func (in EmailEvent) SendEmailHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.SendEmailEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "send email event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	// Bodies may carry claim links, so only the envelope is logged.
	traceIdAttr := slog.String(constant.LogFieldTraceId, ulid.Make().String())
	envelopeAttr := slog.Group("email", slog.String("to", req.To), slog.String("subject", req.Subject))

	err = in.Sender.Send([]string{req.To}, req.Subject, req.Body)
	if err != nil {
		slog.ErrorContext(ctx, "send email error", slog.Any(constant.LogFieldErr, err), envelopeAttr, traceIdAttr)
		return err
	}

	slog.InfoContext(ctx, "email sent", envelopeAttr, traceIdAttr)
	return nil
}
