package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const waitlistColumns = `id, workshop_id, email, name, phone, position, status, created_at, notified_at,
enrollment_id, claim_token, claim_expires_at`

func scanWaitlistEntry(row pgx.Row) (model.WaitlistEntry, error) {
	var (
		entry          model.WaitlistEntry
		status         string
		notifiedAt     pgtype.Timestamptz
		enrollmentID   pgtype.Int8
		claimToken     pgtype.Text
		claimExpiresAt pgtype.Timestamptz
	)

	err := row.Scan(
		&entry.ID, &entry.WorkshopID, &entry.Email, &entry.Name, &entry.Phone, &entry.Position, &status,
		&entry.CreatedAt, &notifiedAt, &enrollmentID, &claimToken, &claimExpiresAt,
	)
	if err != nil {
		return model.WaitlistEntry{}, err
	}

	entry.Status = model.WaitlistStatus(status)
	if notifiedAt.Valid {
		entry.NotifiedAt = &notifiedAt.Time
	}
	if enrollmentID.Valid {
		entry.EnrollmentID = &enrollmentID.Int64
	}
	if claimToken.Valid {
		entry.ClaimToken = claimToken.String
	}
	if claimExpiresAt.Valid {
		entry.ClaimExpiresAt = &claimExpiresAt.Time
	}

	return entry, nil
}

func entryOrNotFound(entry model.WaitlistEntry, err error, what string) (model.WaitlistEntry, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WaitlistEntry{}, errs.ErrEntryNotFound
	}
	if err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("%s: %w", what, err)
	}
	return entry, nil
}

const findActiveWaitlistEntry = `SELECT ` + waitlistColumns + `
FROM waitlist_entries
WHERE workshop_id = $1 AND lower(email) = lower($2) AND status IN ('waiting', 'notified')
ORDER BY position LIMIT 1`

func (q *Queries) FindActiveWaitlistEntry(ctx context.Context, workshopID int64, email string) (model.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(q.db.QueryRow(ctx, findActiveWaitlistEntry, workshopID, email))
	return entryOrNotFound(entry, err, "find active waitlist entry")
}

const findWaitlistEntryByID = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`

func (q *Queries) FindWaitlistEntryByID(ctx context.Context, id int64) (model.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(q.db.QueryRow(ctx, findWaitlistEntryByID, id))
	return entryOrNotFound(entry, err, "find waitlist entry")
}

const findWaitlistEntryByToken = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE claim_token = $1`

func (q *Queries) FindWaitlistEntryByToken(ctx context.Context, token string) (model.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(q.db.QueryRow(ctx, findWaitlistEntryByToken, token))
	return entryOrNotFound(entry, err, "find waitlist entry by token")
}

const maxWaitlistPosition = `SELECT COALESCE(MAX(position), 0) FROM waitlist_entries WHERE workshop_id = $1`

func (q *Queries) MaxWaitlistPosition(ctx context.Context, workshopID int64) (int32, error) {
	var position int32
	if err := q.db.QueryRow(ctx, maxWaitlistPosition, workshopID).Scan(&position); err != nil {
		return 0, fmt.Errorf("max waitlist position %d: %w", workshopID, err)
	}
	return position, nil
}

const insertWaitlistEntry = `INSERT INTO waitlist_entries (workshop_id, email, name, phone, position, status)
VALUES ($1, $2, $3, $4, $5, 'waiting')
ON CONFLICT DO NOTHING
RETURNING id, created_at`

// InsertWaitlistEntry returns false when a live entry for the same email won the race.
func (q *Queries) InsertWaitlistEntry(ctx context.Context, entry *model.WaitlistEntry) (bool, error) {
	err := q.db.QueryRow(ctx, insertWaitlistEntry,
		entry.WorkshopID, entry.Email, entry.Name, entry.Phone, entry.Position,
	).Scan(&entry.ID, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert waitlist entry: %w", err)
	}

	entry.Status = model.WaitlistStatusWaiting
	return true, nil
}

const nextWaitingEntry = `SELECT ` + waitlistColumns + `
FROM waitlist_entries
WHERE workshop_id = $1 AND status = 'waiting'
ORDER BY position, created_at, id
LIMIT 1`

func (q *Queries) NextWaitingEntry(ctx context.Context, workshopID int64) (model.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(q.db.QueryRow(ctx, nextWaitingEntry, workshopID))
	return entryOrNotFound(entry, err, "next waiting entry")
}

const countWaitingAhead = `SELECT COUNT(*) FROM waitlist_entries
WHERE workshop_id = $1 AND status = 'waiting' AND position < $2`

func (q *Queries) CountWaitingAhead(ctx context.Context, workshopID int64, position int32) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, countWaitingAhead, workshopID, position).Scan(&count); err != nil {
		return 0, fmt.Errorf("count waiting ahead %d: %w", workshopID, err)
	}
	return count, nil
}

const setClaimToken = `UPDATE waitlist_entries
SET claim_token = $2, claim_expires_at = $3, updated_at = now()
WHERE id = $1 AND status IN ('waiting', 'notified')`

func (q *Queries) SetClaimToken(ctx context.Context, entryID int64, token string, expiresAt time.Time) error {
	cmd, err := q.db.Exec(ctx, setClaimToken, entryID, token, pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true})
	if err != nil {
		return fmt.Errorf("set claim token for entry %d: %w", entryID, err)
	}
	if cmd.RowsAffected() == 0 {
		return errs.ErrEntryNotFound
	}
	return nil
}

const markEntryNotified = `UPDATE waitlist_entries
SET status = 'notified', notified_at = $2, updated_at = now()
WHERE id = $1 AND status = 'waiting'`

func (q *Queries) MarkEntryNotified(ctx context.Context, entryID int64, at time.Time) (bool, error) {
	cmd, err := q.db.Exec(ctx, markEntryNotified, entryID, pgtype.Timestamptz{Time: at.UTC(), Valid: true})
	if err != nil {
		return false, fmt.Errorf("mark entry %d notified: %w", entryID, err)
	}
	return cmd.RowsAffected() > 0, nil
}

const markEntryConverted = `UPDATE waitlist_entries
SET status = 'converted', enrollment_id = $2, updated_at = now()
WHERE id = $1 AND status <> 'converted'`

func (q *Queries) MarkEntryConverted(ctx context.Context, entryID, enrollmentID int64) (bool, error) {
	cmd, err := q.db.Exec(ctx, markEntryConverted, entryID, enrollmentID)
	if err != nil {
		return false, fmt.Errorf("mark entry %d converted: %w", entryID, err)
	}
	return cmd.RowsAffected() > 0, nil
}

const markEntryExpired = `UPDATE waitlist_entries
SET status = 'expired', updated_at = now()
WHERE id = $1 AND status = 'notified'`

func (q *Queries) MarkEntryExpired(ctx context.Context, entryID int64) (bool, error) {
	cmd, err := q.db.Exec(ctx, markEntryExpired, entryID)
	if err != nil {
		return false, fmt.Errorf("mark entry %d expired: %w", entryID, err)
	}
	return cmd.RowsAffected() > 0, nil
}

const expireLapsedClaims = `UPDATE waitlist_entries
SET status = 'expired', updated_at = now()
WHERE status = 'notified' AND claim_expires_at < $1
RETURNING workshop_id`

// ExpireLapsedClaims returns the workshop id of every entry it expired.
func (q *Queries) ExpireLapsedClaims(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := q.db.Query(ctx, expireLapsedClaims, pgtype.Timestamptz{Time: now.UTC(), Valid: true})
	if err != nil {
		return nil, fmt.Errorf("expire lapsed claims: %w", err)
	}
	defer rows.Close()

	var workshopIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired workshop id: %w", err)
		}
		workshopIDs = append(workshopIDs, id)
	}

	return workshopIDs, rows.Err()
}
