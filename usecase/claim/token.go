package claim

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"
)

const tokenBytes = 32

type TokenRepository interface {
	SetClaimToken(ctx context.Context, entryID int64, token string, expiresAt time.Time) error
	FindWaitlistEntryByToken(ctx context.Context, token string) (model.WaitlistEntry, error)
	MarkEntryExpired(ctx context.Context, entryID int64) (bool, error)
}

// Tokens issues and checks the single-use claim right attached to a waitlist entry.
type Tokens struct {
	Repo    TokenRepository
	TTL     time.Duration
	TimeNow func() time.Time
	// Random defaults to crypto/rand.
	Random io.Reader
}

// Generate stores a fresh token on the entry, replacing any earlier one.
func (t Tokens) Generate(ctx context.Context, entryID int64) (string, time.Time, error) {
	random := t.Random
	if random == nil {
		random = rand.Reader
	}

	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", time.Time{}, fmt.Errorf("read token entropy: %w", err)
	}

	token := hex.EncodeToString(buf)
	expiresAt := t.now().Add(t.ttl()).UTC()

	if err := t.Repo.SetClaimToken(ctx, entryID, token, expiresAt); err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// Validate returns the entry a live token belongs to. It never consumes the token;
// the only state it changes is flipping a lapsed entry to expired.
func (t Tokens) Validate(ctx context.Context, token string) (model.WaitlistEntry, bool, error) {
	if len(token) != tokenBytes*2 {
		return model.WaitlistEntry{}, false, nil
	}

	entry, err := t.Repo.FindWaitlistEntryByToken(ctx, token)
	if errors.Is(err, errs.ErrEntryNotFound) {
		return model.WaitlistEntry{}, false, nil
	}
	if err != nil {
		return model.WaitlistEntry{}, false, err
	}

	if entry.ClaimExpiresAt == nil || !t.now().Before(*entry.ClaimExpiresAt) {
		if entry.Status == model.WaitlistStatusNotified {
			expired, err := t.Repo.MarkEntryExpired(ctx, entry.ID)
			if err != nil {
				return model.WaitlistEntry{}, false, err
			}
			if expired {
				slog.InfoContext(ctx, "claim token lapsed", slog.Int64(constant.LogFieldEntryID, entry.ID))
			}
		}
		return model.WaitlistEntry{}, false, nil
	}

	if entry.Status != model.WaitlistStatusNotified {
		return model.WaitlistEntry{}, false, nil
	}

	return entry, true, nil
}

func (t Tokens) now() time.Time {
	if t.TimeNow == nil {
		return time.Now()
	}
	return t.TimeNow()
}

func (t Tokens) ttl() time.Duration {
	if t.TTL <= 0 {
		return constant.ClaimTokenDefaultTTL
	}
	return t.TTL
}
