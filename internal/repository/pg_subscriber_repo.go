package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/newsdigest/internal/domain"
)

type pgSubscriberRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubscriberRepository returns a SubscriberRepository backed by PostgreSQL.
func NewPgSubscriberRepository(pool *pgxpool.Pool) SubscriberRepository {
	return &pgSubscriberRepository{pool: pool}
}

func (r *pgSubscriberRepository) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT email, quota
		FROM subscribers
		ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}

	recipients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Recipient, error) {
		var (
			email string
			quota *int64
		)
		if err := row.Scan(&email, &quota); err != nil {
			return domain.Recipient{}, err
		}
		return domain.Recipient{
			Email: email,
			Quota: domain.QuotaFromStore(derefInt64(quota), quota != nil),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan subscribers: %w", err)
	}
	return recipients, nil
}

// Close releases the pool. pgxpool.Close cannot fail.
func (r *pgSubscriberRepository) Close() error {
	r.pool.Close()
	return nil
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
