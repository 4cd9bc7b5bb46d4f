package http

import (
	"context"
	"log/slog"
	"net/http"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"

	"github.com/go-playground/validator/v10"
)

type CheckoutService interface {
	Direct(ctx context.Context, owner model.Owner, req model.CheckoutRequest) (model.CheckoutResponse, error)
	Cart(ctx context.Context, owner model.Owner, req model.CartCheckoutRequest) (model.CheckoutResponse, error)
}

type CheckoutHttp struct {
	Checkout CheckoutService
	Validate *validator.Validate
}

func RegisterCheckoutHttp(mux *http.ServeMux, checkout CheckoutService, validate *validator.Validate) *CheckoutHttp {
	in := &CheckoutHttp{Checkout: checkout, Validate: validate}

	mux.HandleFunc("POST /api/checkout", in.direct)
	mux.HandleFunc("POST /api/cart/checkout", in.cart)

	return in
}

func (in *CheckoutHttp) direct(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CheckoutHttp.direct")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "checkout receive request", traceIdAttr, slog.Int64(constant.LogFieldWorkshopID, req.WorkshopID))

	resp, err := in.Checkout.Direct(ctx, ownerFromContext(ctx), req)
	if err != nil {
		slog.WarnContext(ctx, "checkout refused", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (in *CheckoutHttp) cart(w http.ResponseWriter, r *http.Request) {
	var req model.CartCheckoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeErrorResponse(w, err)
			return
		}
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CheckoutHttp.cart")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	resp, err := in.Checkout.Cart(ctx, ownerFromContext(ctx), req)
	if err != nil {
		slog.WarnContext(ctx, "cart checkout refused", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
