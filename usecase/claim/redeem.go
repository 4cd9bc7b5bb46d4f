package claim

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
)

type BindingStore interface {
	Bind(ctx context.Context, ownerKey string, workshopID, entryID int64, ttl time.Duration) error
	Lookup(ctx context.Context, ownerKey string, workshopID int64) (int64, bool, error)
	Release(ctx context.Context, ownerKey string, workshopID int64) error
}

type EntryFinder interface {
	FindWaitlistEntryByID(ctx context.Context, id int64) (model.WaitlistEntry, error)
}

type WorkshopFinder interface {
	FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error)
}

// Redeemer binds a validated claim to the visitor's session so admission for that
// workshop is force-allowed during the working window.
type Redeemer struct {
	Tokens     Tokens
	Bindings   BindingStore
	Entries    EntryFinder
	Workshops  WorkshopFinder
	SessionTTL time.Duration
}

func (r Redeemer) Redeem(ctx context.Context, token string, entryID int64, owner model.Owner) (model.Workshop, error) {
	ctx, span := otel.Tracer.Start(ctx, "Redeemer.Redeem")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	entryAttr := slog.Int64(constant.LogFieldEntryID, entryID)

	entry, ok, err := r.Tokens.Validate(ctx, token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to validate claim token", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.Workshop{}, err
	}

	if !ok || entry.ID != entryID {
		slog.InfoContext(ctx, "claim rejected", traceIdAttr, entryAttr)
		return model.Workshop{}, errs.ErrClaimInvalid
	}

	workshop, err := r.Workshops.FindWorkshopByID(ctx, entry.WorkshopID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find claimed workshop", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.Workshop{}, err
	}

	if err := r.Bindings.Bind(ctx, owner.Key(), workshop.ID, entry.ID, r.sessionTTL()); err != nil {
		slog.ErrorContext(ctx, "failed to bind claim", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return model.Workshop{}, err
	}

	slog.InfoContext(ctx, "claim bound to session", traceIdAttr, entryAttr, slog.Int64(constant.LogFieldWorkshopID, workshop.ID))

	return workshop, nil
}

// Lookup returns the entry id of a live claim for the workshop under any of the
// owner's identities, together with the owner key holding the binding. Bindings whose
// entry was converted or lapsed in the meantime are dropped.
func (r Redeemer) Lookup(ctx context.Context, owner model.Owner, workshopID int64) (int64, string, bool, error) {
	for _, key := range owner.Keys() {
		entryID, ok, err := r.Bindings.Lookup(ctx, key, workshopID)
		if err != nil {
			return 0, "", false, err
		}
		if !ok {
			continue
		}

		live, err := r.live(ctx, entryID)
		if err != nil {
			return 0, "", false, err
		}
		if live {
			return entryID, key, true, nil
		}

		if err = r.Bindings.Release(ctx, key, workshopID); err != nil {
			slog.WarnContext(ctx, "failed to release stale claim binding", slog.Int64(constant.LogFieldEntryID, entryID), slog.Any(constant.LogFieldErr, err))
		}
	}
	return 0, "", false, nil
}

func (r Redeemer) live(ctx context.Context, entryID int64) (bool, error) {
	entry, err := r.Entries.FindWaitlistEntryByID(ctx, entryID)
	if errors.Is(err, errs.ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if entry.Status != model.WaitlistStatusNotified || entry.ClaimExpiresAt == nil {
		return false, nil
	}
	return r.Tokens.now().Before(*entry.ClaimExpiresAt), nil
}

// Release drops the binding stored under ownerKey.
func (r Redeemer) Release(ctx context.Context, ownerKey string, workshopID int64) error {
	return r.Bindings.Release(ctx, ownerKey, workshopID)
}

func (r Redeemer) sessionTTL() time.Duration {
	if r.SessionTTL <= 0 {
		return constant.ClaimSessionDefaultTTL
	}
	return r.SessionTTL
}
