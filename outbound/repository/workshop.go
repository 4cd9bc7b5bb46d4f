package repository

import (
	"context"
	"errors"
	"fmt"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/model"

	"github.com/jackc/pgx/v5"
)

const findWorkshopByID = `SELECT id, title, url, capacity, waitlist_enabled, checkout_enabled, published, currency
FROM workshops WHERE id = $1`

const findPricingOptionsByWorkshopID = `SELECT option_id, label, price, is_default
FROM workshop_pricing_options WHERE workshop_id = $1 ORDER BY sort_order, option_id`

func (q *Queries) FindWorkshopByID(ctx context.Context, id int64) (model.Workshop, error) {
	var w model.Workshop
	err := q.db.QueryRow(ctx, findWorkshopByID, id).Scan(
		&w.ID, &w.Title, &w.URL, &w.Capacity, &w.WaitlistEnabled, &w.CheckoutEnabled, &w.Published, &w.Currency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Workshop{}, errs.ErrWorkshopNotFound
	}
	if err != nil {
		return model.Workshop{}, fmt.Errorf("find workshop %d: %w", id, err)
	}

	rows, err := q.db.Query(ctx, findPricingOptionsByWorkshopID, id)
	if err != nil {
		return model.Workshop{}, fmt.Errorf("find pricing options %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var option model.PricingOption
		if err := rows.Scan(&option.ID, &option.Label, &option.Price, &option.Default); err != nil {
			return model.Workshop{}, fmt.Errorf("scan pricing option: %w", err)
		}
		w.PricingOptions = append(w.PricingOptions, option)
	}

	if err := rows.Err(); err != nil {
		return model.Workshop{}, fmt.Errorf("iterate pricing options: %w", err)
	}

	return w, nil
}

const listWorkshopAvailability = `SELECT w.id, w.title, w.capacity, w.waitlist_enabled,
       COUNT(e.id) FILTER (WHERE e.status = 'completed') AS completed
FROM workshops w
LEFT JOIN enrollments e ON e.workshop_id = w.id
WHERE w.published
GROUP BY w.id
ORDER BY w.id`

func (q *Queries) ListWorkshopAvailability(ctx context.Context) ([]model.WorkshopAvailability, error) {
	rows, err := q.db.Query(ctx, listWorkshopAvailability)
	if err != nil {
		return nil, fmt.Errorf("list workshop availability: %w", err)
	}
	defer rows.Close()

	var result []model.WorkshopAvailability
	for rows.Next() {
		var a model.WorkshopAvailability
		if err := rows.Scan(&a.ID, &a.Title, &a.Capacity, &a.WaitlistEnabled, &a.Completed); err != nil {
			return nil, fmt.Errorf("scan workshop availability: %w", err)
		}

		a.Unlimited = a.Capacity == 0
		if !a.Unlimited {
			a.Remaining = max(int64(a.Capacity)-a.Completed, 0)
		}
		result = append(result, a)
	}

	return result, rows.Err()
}
