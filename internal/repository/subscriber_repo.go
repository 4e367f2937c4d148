package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/config"
	"github.com/ricirt/newsdigest/internal/db"
	"github.com/ricirt/newsdigest/internal/domain"
)

// SubscriberRepository is the read-only view of the recipient store used
// by a digest run. The pgx implementation is in pg_subscriber_repo.go, the
// SQLite one in sqlite_subscriber_repo.go. Tests use a hand-written mock
// (mock_subscriber_repo.go).
type SubscriberRepository interface {
	// ListRecipients returns every subscriber in load order.
	ListRecipients(ctx context.Context) ([]domain.Recipient, error)
	Close() error
}

// Open connects to the backend selected by cfg.DatabaseURL and makes sure
// its recipient table exists: subscribers on PostgreSQL, users on SQLite. A failure to create the table is logged and
// ignored; the read that follows reports the real problem, if any.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (SubscriberRepository, error) {
	if cfg.IsPostgres() {
		pool, err := db.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Warn("failed to apply migrations, proceeding anyway", zap.Error(err))
		}
		return NewPgSubscriberRepository(pool), nil
	}

	conn, err := db.OpenSQLite(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSQLiteSchema(conn); err != nil {
		logger.Warn("failed to create users table, proceeding anyway", zap.Error(err))
	}
	return NewSQLiteSubscriberRepository(conn), nil
}
