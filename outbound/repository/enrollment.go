package repository

import (
	"context"
	"errors"
	"fmt"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"

	"github.com/jackc/pgx/v5"
)

const enrollmentColumns = `id, workshop_id, customer_email, customer_name, customer_phone, amount, currency,
pricing_option_id, session_id, payment_reference, status, notes, created_at`

func scanEnrollment(row pgx.Row) (model.Enrollment, error) {
	var e model.Enrollment
	var status string
	err := row.Scan(
		&e.ID, &e.WorkshopID, &e.CustomerEmail, &e.CustomerName, &e.CustomerPhone, &e.Amount, &e.Currency,
		&e.PricingOptionID, &e.SessionID, &e.PaymentReference, &status, &e.Notes, &e.CreatedAt,
	)
	e.Status = model.EnrollmentStatus(status)
	return e, err
}

func collectEnrollments(rows pgx.Rows) ([]model.Enrollment, error) {
	defer rows.Close()

	var result []model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

const countCompletedEnrollments = `SELECT COUNT(*) FROM enrollments WHERE workshop_id = $1 AND status = 'completed'`

func (q *Queries) CountCompletedEnrollments(ctx context.Context, workshopID int64) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, countCompletedEnrollments, workshopID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed enrollments %d: %w", workshopID, err)
	}
	return count, nil
}

const findEnrollmentByID = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`

func (q *Queries) FindEnrollmentByID(ctx context.Context, id int64) (model.Enrollment, error) {
	e, err := scanEnrollment(q.db.QueryRow(ctx, findEnrollmentByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Enrollment{}, errs.ErrEnrollmentNotFound
	}
	if err != nil {
		return model.Enrollment{}, fmt.Errorf("find enrollment %d: %w", id, err)
	}
	return e, nil
}

const findEnrollmentBySessionAndWorkshop = `SELECT ` + enrollmentColumns + `
FROM enrollments WHERE session_id = $1 AND workshop_id = $2`

func (q *Queries) FindEnrollmentBySessionAndWorkshop(ctx context.Context, sessionID string, workshopID int64) (model.Enrollment, error) {
	e, err := scanEnrollment(q.db.QueryRow(ctx, findEnrollmentBySessionAndWorkshop, sessionID, workshopID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Enrollment{}, errs.ErrEnrollmentNotFound
	}
	if err != nil {
		return model.Enrollment{}, fmt.Errorf("find enrollment for session %s: %w", sessionID, err)
	}
	return e, nil
}

const findEnrollmentsByPaymentReference = `SELECT ` + enrollmentColumns + `
FROM enrollments WHERE payment_reference = $1 ORDER BY id`

func (q *Queries) FindEnrollmentsByPaymentReference(ctx context.Context, reference string) ([]model.Enrollment, error) {
	rows, err := q.db.Query(ctx, findEnrollmentsByPaymentReference, reference)
	if err != nil {
		return nil, fmt.Errorf("find enrollments by payment reference: %w", err)
	}
	return collectEnrollments(rows)
}

const insertPendingEnrollment = `INSERT INTO enrollments
    (workshop_id, customer_email, customer_name, customer_phone, amount, currency, pricing_option_id, session_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
ON CONFLICT (session_id, workshop_id) DO NOTHING
RETURNING id, created_at`

// InsertPendingEnrollment returns false when a row for the session and workshop
// already exists.
func (q *Queries) InsertPendingEnrollment(ctx context.Context, e *model.Enrollment) (bool, error) {
	err := q.db.QueryRow(ctx, insertPendingEnrollment,
		e.WorkshopID, e.CustomerEmail, e.CustomerName, e.CustomerPhone, e.Amount, e.Currency, e.PricingOptionID, e.SessionID,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert pending enrollment: %w", err)
	}

	e.Status = model.EnrollmentStatusPending
	return true, nil
}

const upsertCompletedEnrollment = `INSERT INTO enrollments
    (workshop_id, customer_email, customer_name, customer_phone, amount, currency, pricing_option_id,
     session_id, payment_reference, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'completed')
ON CONFLICT (session_id, workshop_id) DO UPDATE
SET customer_email    = EXCLUDED.customer_email,
    customer_name     = EXCLUDED.customer_name,
    customer_phone    = EXCLUDED.customer_phone,
    amount            = EXCLUDED.amount,
    currency          = EXCLUDED.currency,
    payment_reference = EXCLUDED.payment_reference,
    status            = 'completed',
    updated_at        = now()
WHERE enrollments.status = 'pending'
RETURNING id, created_at, (xmax = 0) AS inserted`

// UpsertCompletedEnrollment completes the pending row for (session, workshop) in place
// or inserts a completed row when none exists. Replays against a row that already
// left pending change nothing.
func (q *Queries) UpsertCompletedEnrollment(ctx context.Context, e model.Enrollment) (model.EnrollmentUpsert, error) {
	var inserted bool
	err := q.db.QueryRow(ctx, upsertCompletedEnrollment,
		e.WorkshopID, e.CustomerEmail, e.CustomerName, e.CustomerPhone, e.Amount, e.Currency, e.PricingOptionID,
		e.SessionID, e.PaymentReference,
	).Scan(&e.ID, &e.CreatedAt, &inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := q.FindEnrollmentBySessionAndWorkshop(ctx, e.SessionID, e.WorkshopID)
		if findErr != nil {
			return model.EnrollmentUpsert{}, findErr
		}
		return model.EnrollmentUpsert{Enrollment: existing}, nil
	}
	if err != nil {
		return model.EnrollmentUpsert{}, fmt.Errorf("upsert completed enrollment: %w", err)
	}

	e.Status = model.EnrollmentStatusCompleted
	return model.EnrollmentUpsert{Enrollment: e, Inserted: inserted, Transitioned: true}, nil
}

const markEnrollmentRefunded = `UPDATE enrollments
SET status = 'refunded', notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END, updated_at = now()
WHERE id = $1 AND status = 'completed'`

// MarkEnrollmentRefunded is first-writer-wins: it returns false when the row is not
// completed anymore.
func (q *Queries) MarkEnrollmentRefunded(ctx context.Context, id int64, note string) (bool, error) {
	cmd, err := q.db.Exec(ctx, markEnrollmentRefunded, id, note)
	if err != nil {
		return false, fmt.Errorf("mark enrollment %d refunded: %w", id, err)
	}
	return cmd.RowsAffected() > 0, nil
}

const appendEnrollmentNote = `UPDATE enrollments
SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END, updated_at = now()
WHERE id = $1`

func (q *Queries) AppendEnrollmentNote(ctx context.Context, id int64, note string) error {
	if _, err := q.db.Exec(ctx, appendEnrollmentNote, id, note); err != nil {
		return fmt.Errorf("append note to enrollment %d: %w", id, err)
	}
	return nil
}

const failPendingEnrollmentsBySession = `UPDATE enrollments
SET status = 'failed', updated_at = now()
WHERE session_id = $1 AND status = 'pending'
RETURNING ` + enrollmentColumns

func (q *Queries) FailPendingEnrollmentsBySession(ctx context.Context, sessionID string) ([]model.Enrollment, error) {
	rows, err := q.db.Query(ctx, failPendingEnrollmentsBySession, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fail pending enrollments for session %s: %w", sessionID, err)
	}
	return collectEnrollments(rows)
}
