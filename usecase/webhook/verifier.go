package webhook

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"

	stripewebhook "github.com/stripe/stripe-go/v80/webhook"
)

// Verifier checks the Stripe-Signature header: t=<unix>,v1=<hex>[,v1=<hex>...].
// Signatures are checked by stripe-go. The timestamp must lie within Tolerance of
// now on either side, which stripe-go only enforces for old timestamps.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	TimeNow   func() time.Time
}

func (v Verifier) Verify(payload []byte, header string) error {
	if err := stripewebhook.ValidatePayloadIgnoringTolerance(payload, header, v.Secret); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidSignature, err)
	}

	timestamp, err := signedAt(header)
	if err != nil {
		return err
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = constant.WebhookDefaultTolerance
	}

	skew := v.now().Sub(timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return fmt.Errorf("%w: skew %s", errs.ErrStaleTimestamp, skew)
	}

	return nil
}

func signedAt(header string) (time.Time, error) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key != "t" {
			continue
		}

		t, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad timestamp", errs.ErrInvalidSignature)
		}
		return time.Unix(t, 0), nil
	}

	return time.Time{}, fmt.Errorf("%w: missing timestamp", errs.ErrInvalidSignature)
}

func (v Verifier) now() time.Time {
	if v.TimeNow == nil {
		return time.Now()
	}
	return v.TimeNow()
}
