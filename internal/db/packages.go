package db

import (
	"context"

	"github.com/Spok95/learning-platform/internal/models"
)

const packageColumns = `id, title, price_cents, currency, billing_frequency, class_duration_minutes, classes_per_month, stripe_price_id, created_at`

func (s *Store) CreatePackage(ctx context.Context, p *models.Package) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	return s.db.QueryRowxContext(ctx, `
		INSERT INTO packages (title, price_cents, currency, billing_frequency, class_duration_minutes, classes_per_month, stripe_price_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, p.Title, p.PriceCents, p.Currency, string(p.BillingFrequency), p.ClassDurationMinutes, p.ClassesPerMonth, p.StripePriceID).
		Scan(&p.ID, &p.CreatedAt)
}

func (s *Store) GetPackage(ctx context.Context, id int64) (*models.Package, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var p models.Package
	if err := s.db.GetContext(ctx, &p, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "package")
	}
	return &p, nil
}

func (s *Store) ListPackages(ctx context.Context) ([]models.Package, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	out := []models.Package{}
	err := s.db.SelectContext(ctx, &out, `SELECT `+packageColumns+` FROM packages ORDER BY price_cents, id`)
	return out, err
}
