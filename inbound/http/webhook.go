package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 20

type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) (string, error)
}

type WebhookHttp struct {
	Engine WebhookHandler
}

func RegisterWebhookHttp(mux *http.ServeMux, engine WebhookHandler) *WebhookHttp {
	in := &WebhookHttp{Engine: engine}

	mux.HandleFunc("POST /api/webhooks/stripe", in.stripe)

	return in
}

func (in *WebhookHttp) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeErrorResponse(w, errInvalidRequest)
		return
	}

	message, err := in.Engine.Handle(ctx, payload, r.Header.Get(constant.SignatureHeader))
	if err != nil {
		if errs.FromDomain(err) == nil && !errors.Is(err, errs.ErrEventInFlight) {
			slog.ErrorContext(ctx, "webhook processing failed", common.ExtractTraceIDFromCtx(ctx), slog.Any(constant.LogFieldErr, err))
		}
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, model.MessageResponse{Success: true, Message: message})
}
