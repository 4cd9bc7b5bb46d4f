// Package waitlist keeps the per-workshop FIFO queue of people waiting for a seat.
// Positions are assigned once at join time and never renumbered; the number of
// people ahead is derived from the entries still waiting.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

type Repository interface {
	FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error)
	FindActiveWaitlistEntry(ctx context.Context, workshopID int64, email string) (model.WaitlistEntry, error)
	MaxWaitlistPosition(ctx context.Context, workshopID int64) (int32, error)
	InsertWaitlistEntry(ctx context.Context, entry *model.WaitlistEntry) (bool, error)
	CountWaitingAhead(ctx context.Context, workshopID int64, position int32) (int64, error)
	NextWaitingEntry(ctx context.Context, workshopID int64) (model.WaitlistEntry, error)
	MarkEntryNotified(ctx context.Context, entryID int64, at time.Time) (bool, error)
	MarkEntryConverted(ctx context.Context, entryID, enrollmentID int64) (bool, error)
	ExpireLapsedClaims(ctx context.Context, now time.Time) ([]int64, error)
}

type TokenIssuer interface {
	Generate(ctx context.Context, entryID int64) (string, time.Time, error)
}

// Notifier delivers the claim link to the person at the head of the queue.
type Notifier interface {
	NotifyClaim(ctx context.Context, entry model.WaitlistEntry, workshop model.Workshop, token string, expiresAt time.Time) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Queue struct {
	Repo     Repository
	Tokens   TokenIssuer
	Notifier Notifier
	// Lock serialises notifications per workshop across processes. Optional.
	Lock      Locker
	Validator *validator.Validate
	TimeNow   func() time.Time
}

func (q Queue) Join(ctx context.Context, workshopID int64, req model.JoinWaitlistRequest) (model.JoinWaitlistResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "Queue.Join")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	workshopAttr := slog.Int64(constant.LogFieldWorkshopID, workshopID)

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := q.validator().Struct(req); err != nil {
		return model.JoinWaitlistResponse{}, err
	}

	workshop, err := q.Repo.FindWorkshopByID(ctx, workshopID)
	if err != nil {
		common.UtilSpanError(span, err)
		return model.JoinWaitlistResponse{}, err
	}
	if !workshop.Published {
		return model.JoinWaitlistResponse{}, errs.ErrWorkshopNotFound
	}
	if !workshop.WaitlistEnabled {
		return model.JoinWaitlistResponse{}, errs.ErrWaitlistDisabled
	}

	entry, err := q.Repo.FindActiveWaitlistEntry(ctx, workshopID, req.Email)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "waitlist join repeated", traceIdAttr, workshopAttr, slog.Int64(constant.LogFieldEntryID, entry.ID))
		return q.joined(ctx, entry, "You are already on the waitlist")
	case !errors.Is(err, errs.ErrEntryNotFound):
		slog.ErrorContext(ctx, "failed to find waitlist entry", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.JoinWaitlistResponse{}, err
	}

	maxPosition, err := q.Repo.MaxWaitlistPosition(ctx, workshopID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read waitlist position", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.JoinWaitlistResponse{}, err
	}

	entry = model.WaitlistEntry{
		WorkshopID: workshopID,
		Email:      req.Email,
		Name:       req.Name,
		Phone:      strings.TrimSpace(req.Phone),
		Position:   maxPosition + 1,
	}

	inserted, err := q.Repo.InsertWaitlistEntry(ctx, &entry)
	if err != nil {
		slog.ErrorContext(ctx, "failed to insert waitlist entry", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.JoinWaitlistResponse{}, err
	}

	if !inserted {
		// a concurrent join for the same email won
		entry, err = q.Repo.FindActiveWaitlistEntry(ctx, workshopID, req.Email)
		if err != nil {
			common.UtilSpanError(span, err)
			return model.JoinWaitlistResponse{}, err
		}
		return q.joined(ctx, entry, "You are already on the waitlist")
	}

	slog.InfoContext(ctx, "joined waitlist", traceIdAttr, workshopAttr,
		slog.Int64(constant.LogFieldEntryID, entry.ID), slog.Int("position", int(entry.Position)))

	return q.joined(ctx, entry, "You have been added to the waitlist")
}

func (q Queue) joined(ctx context.Context, entry model.WaitlistEntry, message string) (model.JoinWaitlistResponse, error) {
	ahead, err := q.WaitingAhead(ctx, entry.WorkshopID, entry.Position)
	if err != nil {
		return model.JoinWaitlistResponse{}, err
	}

	return model.JoinWaitlistResponse{
		Success:      true,
		Position:     entry.Position,
		EntryID:      entry.ID,
		WaitingAhead: ahead,
		Message:      message,
	}, nil
}

// WaitingAhead counts entries still waiting with a lower position.
func (q Queue) WaitingAhead(ctx context.Context, workshopID int64, position int32) (int64, error) {
	return q.Repo.CountWaitingAhead(ctx, workshopID, position)
}

// NotifyNextInLine offers the freed seat to the head of the queue. It reports false
// when nobody is waiting. The entry only becomes notified after the message was handed
// off, so a failed send leaves it waiting for the next attempt.
func (q Queue) NotifyNextInLine(ctx context.Context, workshopID int64) (bool, error) {
	ctx, span := otel.Tracer.Start(ctx, "Queue.NotifyNextInLine")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	workshopAttr := slog.Int64(constant.LogFieldWorkshopID, workshopID)

	unlock, err := q.lock(ctx, workshopID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to lock waitlist", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return false, err
	}
	defer unlock()

	entry, err := q.Repo.NextWaitingEntry(ctx, workshopID)
	if errors.Is(err, errs.ErrEntryNotFound) {
		slog.InfoContext(ctx, "waitlist empty", traceIdAttr, workshopAttr)
		return false, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find next waiting entry", traceIdAttr, workshopAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return false, err
	}

	entryAttr := slog.Int64(constant.LogFieldEntryID, entry.ID)

	workshop, err := q.Repo.FindWorkshopByID(ctx, workshopID)
	if err != nil {
		common.UtilSpanError(span, err)
		return false, err
	}

	token, expiresAt, err := q.Tokens.Generate(ctx, entry.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate claim token", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return false, err
	}

	if err = q.Notifier.NotifyClaim(ctx, entry, workshop, token, expiresAt); err != nil {
		slog.ErrorContext(ctx, "failed to send claim notification", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return false, err
	}

	if _, err = q.Repo.MarkEntryNotified(ctx, entry.ID, q.now()); err != nil {
		slog.ErrorContext(ctx, "failed to mark entry notified", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return false, err
	}

	slog.InfoContext(ctx, "next in line notified", traceIdAttr, workshopAttr, entryAttr)

	return true, nil
}

// Convert links the entry to the enrollment that used its claim. Converting twice is
// a no-op that reports false.
func (q Queue) Convert(ctx context.Context, entryID, enrollmentID int64) (bool, error) {
	converted, err := q.Repo.MarkEntryConverted(ctx, entryID, enrollmentID)
	if err != nil {
		return false, err
	}

	slog.InfoContext(ctx, "waitlist entry converted", common.ExtractTraceIDFromCtx(ctx),
		slog.Int64(constant.LogFieldEntryID, entryID), slog.Int64(constant.LogFieldEnrollmentID, enrollmentID),
		slog.Bool("changed", converted))

	return converted, nil
}

// ExpireLapsedClaims expires notified entries whose claim ran out and offers each
// freed claim to the next person. It returns the number of notifications sent.
func (q Queue) ExpireLapsedClaims(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer.Start(ctx, "Queue.ExpireLapsedClaims")
	defer span.End()

	workshopIDs, err := q.Repo.ExpireLapsedClaims(ctx, q.now())
	if err != nil {
		common.UtilSpanError(span, err)
		return 0, err
	}

	var (
		notified int
		failures []error
	)
	for _, workshopID := range workshopIDs {
		ok, err := q.NotifyNextInLine(ctx, workshopID)
		if err != nil {
			failures = append(failures, fmt.Errorf("workshop %d: %w", workshopID, err))
			continue
		}
		if ok {
			notified++
		}
	}

	return notified, errors.Join(failures...)
}

func (q Queue) lock(ctx context.Context, workshopID int64) (func(), error) {
	if q.Lock == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf(constant.WaitlistNotifyLockKey, workshopID)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 50), ctx)

	err := backoff.Retry(func() error {
		acquired, err := q.Lock.Acquire(ctx, key, constant.WaitlistNotifyLockTTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !acquired {
			return fmt.Errorf("waitlist %d busy", workshopID)
		}
		return nil
	}, b)
	if err != nil {
		return nil, err
	}

	return func() {
		if err := q.Lock.Release(context.WithoutCancel(ctx), key); err != nil {
			slog.WarnContext(ctx, "failed to release waitlist lock", slog.Int64(constant.LogFieldWorkshopID, workshopID), slog.Any(constant.LogFieldErr, err))
		}
	}, nil
}

func (q Queue) validator() *validator.Validate {
	if q.Validator == nil {
		return validator.New()
	}
	return q.Validator
}

func (q Queue) now() time.Time {
	if q.TimeNow == nil {
		return time.Now()
	}
	return q.TimeNow()
}
