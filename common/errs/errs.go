package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type HttpError struct {
	Code    int
	Message string
	Data    any
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("code %d: %s, data: %v", e.Code, e.Message, e.Data)
}

var domainHttpErrors = []struct {
	err     error
	code    int
	message string
}{
	{ErrWorkshopNotFound, http.StatusNotFound, "Workshop not found"},
	{ErrEnrollmentNotFound, http.StatusNotFound, "Enrollment not found"},
	{ErrEntryNotFound, http.StatusNotFound, "Waitlist entry not found"},
	{ErrCartItemNotFound, http.StatusNotFound, "Workshop not in cart"},
	{ErrCheckoutDisabled, http.StatusBadRequest, "Checkout is not available for this workshop"},
	{ErrInvalidPricingOption, http.StatusBadRequest, "Invalid pricing option"},
	{ErrInvalidAmount, http.StatusBadRequest, "Invalid amount"},
	{ErrCartEmpty, http.StatusBadRequest, "Cart is empty"},
	{ErrCartTooLarge, http.StatusBadRequest, "Too many workshops in cart"},
	{ErrCurrencyMismatch, http.StatusBadRequest, "Workshops in a cart must share one currency"},
	{ErrCartInvalid, http.StatusConflict, "Cart changed, please review"},
	{ErrDuplicateCartItem, http.StatusConflict, "Workshop already in cart"},
	{ErrSoldOut, http.StatusConflict, "sold out"},
	{ErrWaitlistAvailable, http.StatusConflict, "Workshop is full, join the waitlist"},
	{ErrWaitlistDisabled, http.StatusBadRequest, "Waitlist is not available for this workshop"},
	{ErrClaimInvalid, http.StatusGone, "Claim link is invalid or expired"},
	{ErrNotRefundable, http.StatusConflict, "Enrollment cannot be refunded"},
	{ErrInvalidSignature, http.StatusBadRequest, "Invalid signature"},
	{ErrStaleTimestamp, http.StatusBadRequest, "Invalid signature"},
	{ErrMalformedEvent, http.StatusBadRequest, "Invalid event"},
	{ErrMalformedMetadata, http.StatusBadRequest, "Invalid event"},
	{ErrPaymentUnavailable, http.StatusBadGateway, "Payment is temporarily unavailable, please try again"},
}

// FromDomain maps a known domain error to an HttpError. Unknown errors return nil.
func FromDomain(err error) *HttpError {
	for _, candidate := range domainHttpErrors {
		if errors.Is(err, candidate.err) {
			return &HttpError{Code: candidate.code, Message: candidate.message}
		}
	}
	return nil
}
