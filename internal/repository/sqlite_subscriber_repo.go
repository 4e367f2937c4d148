package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ricirt/newsdigest/internal/domain"
)

type sqliteSubscriberRepository struct {
	conn *sql.DB
}

// NewSQLiteSubscriberRepository returns a SubscriberRepository backed by a
// SQLite file.
func NewSQLiteSubscriberRepository(conn *sql.DB) SubscriberRepository {
	return &sqliteSubscriberRepository{conn: conn}
}

func (r *sqliteSubscriberRepository) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT email, count FROM users ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var (
			email sql.NullString
			// SQLite columns are dynamically typed; a quota stored as text
			// must fall back to the default instead of failing the scan.
			quota any
		)
		if err := rows.Scan(&email, &quota); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		v, ok := quota.(int64)
		recipients = append(recipients, domain.Recipient{
			Email: email.String,
			Quota: domain.QuotaFromStore(v, ok),
		})
	}
	return recipients, rows.Err()
}

func (r *sqliteSubscriberRepository) Close() error {
	return r.conn.Close()
}
