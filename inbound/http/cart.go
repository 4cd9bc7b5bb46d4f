package http

import (
	"context"
	"log/slog"
	"net/http"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
	"workshop-enrollment/usecase/cart"

	"github.com/go-playground/validator/v10"
)

type CartService interface {
	Get(ctx context.Context, owner model.Owner) (model.Cart, error)
	Add(ctx context.Context, owner model.Owner, workshopID int64, pricingOption string) (model.Cart, error)
	Remove(ctx context.Context, owner model.Owner, workshopID int64) (model.Cart, error)
	UpdatePricingOption(ctx context.Context, owner model.Owner, workshopID int64, pricingOption string) (model.Cart, error)
	Clear(ctx context.Context, owner model.Owner) error
	Validate(ctx context.Context, owner model.Owner) (cart.Validation, error)
	MergeOnLogin(ctx context.Context, sessionID, userID string) (model.Cart, error)
}

type CartHttp struct {
	Carts    CartService
	Validate *validator.Validate
}

func RegisterCartHttp(mux *http.ServeMux, carts CartService, validate *validator.Validate) *CartHttp {
	in := &CartHttp{Carts: carts, Validate: validate}

	mux.HandleFunc("GET /api/cart", in.get)
	mux.HandleFunc("POST /api/cart/items", in.add)
	mux.HandleFunc("PUT /api/cart/items/{workshop_id}", in.update)
	mux.HandleFunc("DELETE /api/cart/items/{workshop_id}", in.remove)
	mux.HandleFunc("DELETE /api/cart", in.clear)
	mux.HandleFunc("POST /api/cart/validate", in.validate)
	mux.HandleFunc("POST /api/cart/merge", in.merge)

	return in
}

func cartResponse(c model.Cart, message string) model.CartResponse {
	if c.Items == nil {
		c.Items = []model.CartItem{}
	}
	return model.CartResponse{Success: true, Message: message, Cart: &c}
}

func (in *CartHttp) get(w http.ResponseWriter, r *http.Request) {
	c, err := in.Carts.Get(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeErrorResponse(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse(c, ""))
}

func (in *CartHttp) add(w http.ResponseWriter, r *http.Request) {
	var req model.AddCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CartHttp.add")
	defer span.End()

	c, err := in.Carts.Add(ctx, ownerFromContext(ctx), req.WorkshopID, req.PricingOption)
	if err != nil {
		slog.InfoContext(ctx, "cart add rejected", common.ExtractTraceIDFromCtx(ctx),
			slog.Int64(constant.LogFieldWorkshopID, req.WorkshopID), slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse(c, "Workshop added to cart"))
}

func (in *CartHttp) update(w http.ResponseWriter, r *http.Request) {
	workshopID, err := pathID(r, "workshop_id")
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	var req model.UpdateCartItemRequest
	if err = decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	if err = in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	c, err := in.Carts.UpdatePricingOption(r.Context(), ownerFromContext(r.Context()), workshopID, req.PricingOption)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse(c, "Cart updated"))
}

func (in *CartHttp) remove(w http.ResponseWriter, r *http.Request) {
	workshopID, err := pathID(r, "workshop_id")
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	c, err := in.Carts.Remove(r.Context(), ownerFromContext(r.Context()), workshopID)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse(c, "Workshop removed from cart"))
}

func (in *CartHttp) clear(w http.ResponseWriter, r *http.Request) {
	if err := in.Carts.Clear(r.Context(), ownerFromContext(r.Context())); err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse(model.Cart{}, "Cart cleared"))
}

func (in *CartHttp) validate(w http.ResponseWriter, r *http.Request) {
	validation, err := in.Carts.Validate(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	resp := cartResponse(validation.Cart, "Cart is valid")
	if !validation.Valid {
		resp.Success = false
		resp.Message = "Cart changed, please review"
		resp.Errors = validation.Errors
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (in *CartHttp) merge(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	if owner.UserID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Login required"})
		return
	}

	c, err := in.Carts.MergeOnLogin(r.Context(), owner.SessionID, owner.UserID)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse(c, "Cart merged"))
}
