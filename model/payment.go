package model

type CheckoutLineItem struct {
	Name     string
	Amount   int64
	Currency string
}

// CheckoutSessionRequest is what the payment gateway needs to open a hosted checkout.
type CheckoutSessionRequest struct {
	LineItems      []CheckoutLineItem
	Metadata       map[string]string
	CustomerEmail  string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// RefundRequest refunds Amount of the payment, or all of it when Amount is 0.
type RefundRequest struct {
	PaymentReference string
	Amount           int64
	IdempotencyKey   string
}
