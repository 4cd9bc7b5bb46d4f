// Package cart manages the multi-workshop basket kept per visitor until checkout.
package cart

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
	"workshop-enrollment/usecase/capacity"

	"golang.org/x/text/message"
)

// Store persists cart documents under their full key. Get refreshes the expiry.
type Store interface {
	Get(ctx context.Context, key string) (model.Cart, bool, error)
	Save(ctx context.Context, cart model.Cart) error
	Delete(ctx context.Context, key string) error
}

type WorkshopFinder interface {
	FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error)
}

type AdmissionChecker interface {
	Check(ctx context.Context, w model.Workshop) (capacity.Decision, error)
}

type ClaimLookup interface {
	Lookup(ctx context.Context, owner model.Owner, workshopID int64) (int64, string, bool, error)
}

type Service struct {
	Store     Store
	Workshops WorkshopFinder
	Capacity  AdmissionChecker
	Claims    ClaimLookup
	Printer   *message.Printer
	TimeNow   func() time.Time
}

// Validation is the outcome of re-checking every line of a cart.
type Validation struct {
	Valid  bool
	Errors []string
	Cart   model.Cart
}

func Key(owner model.Owner) string {
	return fmt.Sprintf(constant.CartKey, owner.Key())
}

func (s Service) Get(ctx context.Context, owner model.Owner) (model.Cart, error) {
	return s.load(ctx, Key(owner))
}

func (s Service) Add(ctx context.Context, owner model.Owner, workshopID int64, pricingOption string) (model.Cart, error) {
	ctx, span := otel.Tracer.Start(ctx, "CartService.Add")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	workshopAttr := slog.Int64(constant.LogFieldWorkshopID, workshopID)

	cart, err := s.load(ctx, Key(owner))
	if err != nil {
		common.UtilSpanError(span, err)
		return model.Cart{}, err
	}

	if cart.Index(workshopID) >= 0 {
		return model.Cart{}, errs.ErrDuplicateCartItem
	}

	workshop, option, err := s.resolve(ctx, workshopID, pricingOption)
	if err != nil {
		return model.Cart{}, err
	}

	if cart.Currency != "" && cart.Currency != workshop.Currency {
		return model.Cart{}, errs.ErrCurrencyMismatch
	}

	if err = s.admit(ctx, owner, workshop); err != nil {
		slog.InfoContext(ctx, "cart add refused", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		return model.Cart{}, err
	}

	cart.Currency = workshop.Currency
	cart.Items = append(cart.Items, model.CartItem{
		WorkshopID:      workshop.ID,
		PricingOptionID: option.ID,
		Price:           option.Price,
		Title:           workshop.Title,
	})

	if err = s.save(ctx, &cart); err != nil {
		slog.ErrorContext(ctx, "failed to save cart", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.Cart{}, err
	}

	return cart, nil
}

func (s Service) Remove(ctx context.Context, owner model.Owner, workshopID int64) (model.Cart, error) {
	cart, err := s.load(ctx, Key(owner))
	if err != nil {
		return model.Cart{}, err
	}

	i := cart.Index(workshopID)
	if i < 0 {
		return model.Cart{}, errs.ErrCartItemNotFound
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	if len(cart.Items) == 0 {
		cart.Currency = ""
	}

	if err = s.save(ctx, &cart); err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// UpdatePricingOption switches a line to another option and snapshots its price.
func (s Service) UpdatePricingOption(ctx context.Context, owner model.Owner, workshopID int64, pricingOption string) (model.Cart, error) {
	cart, err := s.load(ctx, Key(owner))
	if err != nil {
		return model.Cart{}, err
	}

	i := cart.Index(workshopID)
	if i < 0 {
		return model.Cart{}, errs.ErrCartItemNotFound
	}

	workshop, option, err := s.resolve(ctx, workshopID, pricingOption)
	if err != nil {
		return model.Cart{}, err
	}

	cart.Items[i].PricingOptionID = option.ID
	cart.Items[i].Price = option.Price
	cart.Items[i].Title = workshop.Title

	if err = s.save(ctx, &cart); err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (s Service) Clear(ctx context.Context, owner model.Owner) error {
	return s.Store.Delete(ctx, Key(owner))
}

// Validate re-resolves every line against the catalog. Lines that can no longer be
// bought are dropped, prices are refreshed, and the normalized cart is persisted.
// Every change is reported so the visitor can review before paying.
func (s Service) Validate(ctx context.Context, owner model.Owner) (Validation, error) {
	ctx, span := otel.Tracer.Start(ctx, "CartService.Validate")
	defer span.End()

	cart, err := s.load(ctx, Key(owner))
	if err != nil {
		common.UtilSpanError(span, err)
		return Validation{}, err
	}

	var (
		problems []string
		kept     = make([]model.CartItem, 0, len(cart.Items))
		currency string
	)

	for _, item := range cart.Items {
		workshop, option, err := s.resolve(ctx, item.WorkshopID, item.PricingOptionID)
		switch {
		case errors.Is(err, errs.ErrWorkshopNotFound), errors.Is(err, errs.ErrCheckoutDisabled):
			problems = append(problems, fmt.Sprintf("%s is no longer available and was removed", item.Title))
			continue
		case errors.Is(err, errs.ErrInvalidPricingOption), errors.Is(err, errs.ErrInvalidAmount):
			problems = append(problems, fmt.Sprintf("The selected price for %s is no longer offered and was removed", item.Title))
			continue
		case err != nil:
			common.UtilSpanError(span, err)
			return Validation{}, err
		}

		if currency != "" && workshop.Currency != currency {
			problems = append(problems, fmt.Sprintf("%s is priced in another currency and was removed", workshop.Title))
			continue
		}

		if err = s.admit(ctx, owner, workshop); err != nil {
			if errors.Is(err, errs.ErrSoldOut) || errors.Is(err, errs.ErrWaitlistAvailable) {
				problems = append(problems, fmt.Sprintf("%s is sold out and was removed", workshop.Title))
				continue
			}
			common.UtilSpanError(span, err)
			return Validation{}, err
		}

		if option.Price != item.Price {
			problems = append(problems, fmt.Sprintf("The price of %s changed from %s to %s",
				workshop.Title,
				common.FormatAmount(s.Printer, workshop.Currency, item.Price),
				common.FormatAmount(s.Printer, workshop.Currency, option.Price),
			))
		}

		currency = workshop.Currency
		kept = append(kept, model.CartItem{
			WorkshopID:      workshop.ID,
			PricingOptionID: option.ID,
			Price:           option.Price,
			Title:           workshop.Title,
		})
	}

	cart.Items = kept
	cart.Currency = currency

	if len(problems) > 0 {
		if err = s.save(ctx, &cart); err != nil {
			common.UtilSpanError(span, err)
			return Validation{}, err
		}
		slog.InfoContext(ctx, "cart normalized", common.ExtractTraceIDFromCtx(ctx), slog.Int("problems", len(problems)))
	}

	return Validation{Valid: len(problems) == 0, Errors: problems, Cart: cart}, nil
}

// MergeOnLogin folds the anonymous session cart into the account cart. Account lines
// win when both carts hold the same workshop. The session cart is removed.
func (s Service) MergeOnLogin(ctx context.Context, sessionID, userID string) (model.Cart, error) {
	ctx, span := otel.Tracer.Start(ctx, "CartService.MergeOnLogin")
	defer span.End()

	anonKey := Key(model.Owner{SessionID: sessionID})
	userKey := Key(model.Owner{UserID: userID})

	anon, err := s.load(ctx, anonKey)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.Cart{}, err
	}

	account, err := s.load(ctx, userKey)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.Cart{}, err
	}

	if len(anon.Items) == 0 {
		return account, nil
	}

	if account.Currency == "" {
		account.Currency = anon.Currency
	}

	for _, item := range anon.Items {
		if account.Index(item.WorkshopID) >= 0 {
			continue
		}
		if anon.Currency != account.Currency {
			continue
		}
		account.Items = append(account.Items, item)
	}

	if err = s.save(ctx, &account); err != nil {
		common.UtilSpanError(span, err)
		return model.Cart{}, err
	}

	if err = s.Store.Delete(ctx, anonKey); err != nil {
		slog.WarnContext(ctx, "failed to delete session cart after merge", common.ExtractTraceIDFromCtx(ctx), slog.Any(constant.LogFieldErr, err))
	}

	return account, nil
}

func (s Service) load(ctx context.Context, key string) (model.Cart, error) {
	cart, ok, err := s.Store.Get(ctx, key)
	if err != nil {
		return model.Cart{}, err
	}
	if !ok {
		cart = model.Cart{Items: []model.CartItem{}}
	}
	cart.Key = key
	return cart, nil
}

func (s Service) save(ctx context.Context, cart *model.Cart) error {
	cart.UpdatedAt = s.now()
	return s.Store.Save(ctx, *cart)
}

func (s Service) resolve(ctx context.Context, workshopID int64, pricingOption string) (model.Workshop, model.PricingOption, error) {
	workshop, err := s.Workshops.FindWorkshopByID(ctx, workshopID)
	if err != nil {
		return model.Workshop{}, model.PricingOption{}, err
	}
	if !workshop.Published {
		return model.Workshop{}, model.PricingOption{}, errs.ErrWorkshopNotFound
	}
	if !workshop.CheckoutEnabled {
		return model.Workshop{}, model.PricingOption{}, errs.ErrCheckoutDisabled
	}

	option, ok := workshop.PricingOption(pricingOption)
	if !ok {
		return model.Workshop{}, model.PricingOption{}, errs.ErrInvalidPricingOption
	}
	if option.Price <= 0 {
		return model.Workshop{}, model.PricingOption{}, errs.ErrInvalidAmount
	}

	return workshop, option, nil
}

// admit runs the capacity check unless the owner holds a claim for the workshop.
func (s Service) admit(ctx context.Context, owner model.Owner, workshop model.Workshop) error {
	if s.Claims != nil {
		_, _, claimed, err := s.Claims.Lookup(ctx, owner, workshop.ID)
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}
	}

	decision, err := s.Capacity.Check(ctx, workshop)
	if err != nil {
		return err
	}
	return decision.Err()
}

func (s Service) now() time.Time {
	if s.TimeNow == nil {
		return time.Now()
	}
	return s.TimeNow()
}
