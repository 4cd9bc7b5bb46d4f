package errs

import "errors"

// Validation.
var (
	ErrWorkshopNotFound     = errors.New("workshop not found")
	ErrCheckoutDisabled     = errors.New("checkout disabled for workshop")
	ErrInvalidPricingOption = errors.New("invalid pricing option")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrDuplicateCartItem    = errors.New("workshop already in cart")
	ErrCartItemNotFound     = errors.New("workshop not in cart")
	ErrCartEmpty            = errors.New("cart is empty")
	ErrCartInvalid          = errors.New("cart needs review")
	ErrCartTooLarge         = errors.New("cart too large")
	ErrCurrencyMismatch     = errors.New("cart mixes currencies")
	ErrEnrollmentNotFound   = errors.New("enrollment not found")
	ErrEntryNotFound        = errors.New("waitlist entry not found")
	ErrMalformedMetadata    = errors.New("malformed checkout metadata")
)

// Capacity and availability.
var (
	ErrSoldOut           = errors.New("sold out")
	ErrWaitlistAvailable = errors.New("workshop full, waitlist available")
	ErrWaitlistDisabled  = errors.New("waitlist disabled")
	ErrClaimInvalid      = errors.New("claim link invalid or expired")
)

// Authentication.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Upstream and concurrency.
var (
	ErrPaymentUnavailable = errors.New("payment processor unavailable")
	ErrEventInFlight      = errors.New("webhook event already in flight")
	ErrNotRefundable      = errors.New("enrollment not refundable")
)
