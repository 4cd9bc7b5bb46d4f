package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"workshop-enrollment/model"
	"workshop-enrollment/outbound/retry"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v80"
)

type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

type recordedRequest struct {
	path           string
	idempotencyKey string
	form           map[string]string
}

type GatewayTestSuite struct {
	suite.Suite
	mu        sync.Mutex
	requests  []recordedRequest
	failFirst int
	server    *httptest.Server
	gateway   *Gateway
}

func (s *GatewayTestSuite) SetupTest() {
	s.requests = nil
	s.failFirst = 0
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Require().NoError(r.ParseForm())

		s.mu.Lock()
		form := map[string]string{}
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		s.requests = append(s.requests, recordedRequest{path: r.URL.Path, idempotencyKey: r.Header.Get("Idempotency-Key"), form: form})
		fail := len(s.requests) <= s.failFirst
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"try again"}}`))
			return
		}

		switch r.URL.Path {
		case "/v1/checkout/sessions":
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
		case "/v1/refunds":
			_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown"}}`))
		}
	}))

	retrier := retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, AttemptTimeout: 5 * time.Second})
	retrier.NewTimer = func() backoff.Timer { return &instantTimer{c: make(chan time.Time, 1)} }

	s.gateway = NewGateway(Config{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://workshops.example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://workshops.example.com/cart",
		BackendURL: s.server.URL,
		HTTPClient: s.server.Client(),
	}, retrier)
}

func (s *GatewayTestSuite) TearDownTest() {
	s.server.Close()
}

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) TestCreateCheckoutSession() {
	s.failFirst = 1

	session, err := s.gateway.CreateCheckoutSession(context.Background(), model.CheckoutSessionRequest{
		LineItems: []model.CheckoutLineItem{
			{Name: "Pottery", Amount: 7500, Currency: "eur"},
			{Name: "Glass", Amount: 4000, Currency: "eur"},
		},
		Metadata:       map[string]string{"kind": "cart", "items": `[{"id":5,"price":7500}]`},
		CustomerEmail:  "ada@example.com",
		IdempotencyKey: "01JTESTKEY",
	})
	s.Require().NoError(err)
	s.Equal(model.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, session)

	s.Require().Len(s.requests, 2)
	s.Equal(s.requests[0].idempotencyKey, s.requests[1].idempotencyKey)
	s.Equal("01JTESTKEY", s.requests[1].idempotencyKey)

	form := s.requests[1].form
	s.Equal("/v1/checkout/sessions", s.requests[1].path)
	s.Equal("payment", form["mode"])
	s.Equal("ada@example.com", form["customer_email"])
	s.Equal("cart", form["metadata[kind]"])
	s.Equal("7500", form["line_items[0][price_data][unit_amount]"])
	s.Equal("Glass", form["line_items[1][price_data][product_data][name]"])
	s.Equal("eur", form["line_items[1][price_data][currency]"])
}

func (s *GatewayTestSuite) TestCreateCheckoutSessionUnavailable() {
	s.failFirst = 10

	_, err := s.gateway.CreateCheckoutSession(context.Background(), model.CheckoutSessionRequest{
		LineItems:      []model.CheckoutLineItem{{Name: "Pottery", Amount: 7500, Currency: "eur"}},
		IdempotencyKey: "01JTESTKEY",
	})

	var stripeErr *stripe.Error
	s.Require().ErrorAs(err, &stripeErr)
	s.Equal(http.StatusServiceUnavailable, stripeErr.HTTPStatusCode)
	s.Len(s.requests, 3)
}

func (s *GatewayTestSuite) TestCreateRefund() {
	id, err := s.gateway.CreateRefund(context.Background(), model.RefundRequest{
		PaymentReference: "pi_1",
		Amount:           7500,
		IdempotencyKey:   "refund-enrollment-1",
	})
	s.Require().NoError(err)
	s.Equal("re_1", id)

	s.Require().Len(s.requests, 1)
	s.Equal("pi_1", s.requests[0].form["payment_intent"])
	s.Equal("7500", s.requests[0].form["amount"])
	s.Equal("refund-enrollment-1", s.requests[0].idempotencyKey)
}
