package checkout

import (
	"context"
	"log/slog"
	"strings"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
	"workshop-enrollment/usecase/capacity"
	"workshop-enrollment/usecase/cart"
)

type WorkshopFinder interface {
	FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error)
}

type AdmissionChecker interface {
	Check(ctx context.Context, w model.Workshop) (capacity.Decision, error)
}

// ClaimLookup returns the entry id of a live claim and the owner key it is bound to.
type ClaimLookup interface {
	Lookup(ctx context.Context, owner model.Owner, workshopID int64) (int64, string, bool, error)
}

type CartValidator interface {
	Validate(ctx context.Context, owner model.Owner) (cart.Validation, error)
}

// InvalidCartError carries the problems found while validating the cart at checkout.
type InvalidCartError struct {
	Problems []string
}

func (e *InvalidCartError) Error() string {
	return "cart needs review: " + strings.Join(e.Problems, "; ")
}

func (e *InvalidCartError) Is(target error) bool {
	return target == errs.ErrCartInvalid
}

type Service struct {
	Builder   Builder
	Workshops WorkshopFinder
	Capacity  AdmissionChecker
	Claims    ClaimLookup
	Carts     CartValidator
}

// Direct opens a session for one seat. A claim bound to the owner for the workshop
// skips the capacity check and travels in the session metadata.
func (s Service) Direct(ctx context.Context, owner model.Owner, req model.CheckoutRequest) (model.CheckoutResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "CheckoutService.Direct")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	workshopAttr := slog.Int64(constant.LogFieldWorkshopID, req.WorkshopID)

	workshop, err := s.Workshops.FindWorkshopByID(ctx, req.WorkshopID)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.CheckoutResponse{}, err
	}
	if !workshop.Published {
		return model.CheckoutResponse{}, errs.ErrWorkshopNotFound
	}
	if !workshop.CheckoutEnabled {
		return model.CheckoutResponse{}, errs.ErrCheckoutDisabled
	}

	option, ok := workshop.PricingOption(req.PricingOption)
	if !ok {
		return model.CheckoutResponse{}, errs.ErrInvalidPricingOption
	}
	if option.Price <= 0 {
		return model.CheckoutResponse{}, errs.ErrInvalidAmount
	}

	claim, claimed, err := s.claim(ctx, owner, workshop.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up claim", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.CheckoutResponse{}, err
	}

	if !claimed {
		decision, err := s.Capacity.Check(ctx, workshop)
		if err != nil {
			common.UtilSpanError(span, err)
			return model.CheckoutResponse{}, err
		}
		if err = decision.Err(); err != nil {
			slog.InfoContext(ctx, "checkout refused", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
			return model.CheckoutResponse{}, err
		}
	}

	return s.Builder.Single(ctx, workshop, option, req.Email, claim)
}

// Cart validates the owner's cart and opens one session for all of its lines. A cart
// that changed during validation is refused so the visitor can review it.
func (s Service) Cart(ctx context.Context, owner model.Owner, req model.CartCheckoutRequest) (model.CheckoutResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "CheckoutService.Cart")
	defer span.End()

	validation, err := s.Carts.Validate(ctx, owner)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.CheckoutResponse{}, err
	}
	if !validation.Valid {
		return model.CheckoutResponse{}, &InvalidCartError{Problems: validation.Errors}
	}
	if len(validation.Cart.Items) == 0 {
		return model.CheckoutResponse{}, errs.ErrCartEmpty
	}

	// Only the first claimed line is carried; any other claim stays notified.
	var claim Claim
	for _, item := range validation.Cart.Items {
		found, claimed, err := s.claim(ctx, owner, item.WorkshopID)
		if err != nil {
			common.UtilSpanError(span, err)
			return model.CheckoutResponse{}, err
		}
		if claimed {
			claim = found
			break
		}
	}

	return s.Builder.Cart(ctx, validation.Cart, req.Email, claim)
}

func (s Service) claim(ctx context.Context, owner model.Owner, workshopID int64) (Claim, bool, error) {
	entryID, ownerKey, claimed, err := s.Claims.Lookup(ctx, owner, workshopID)
	if err != nil || !claimed {
		return Claim{}, false, err
	}
	return Claim{EntryID: entryID, OwnerKey: ownerKey, WorkshopID: workshopID}, true, nil
}
