package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalsRepo tracks trusted members exempt from flood detection.
type ApprovalsRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalsRepo(pool *pgxpool.Pool) *ApprovalsRepo {
	return &ApprovalsRepo{pool: pool}
}

func (r *ApprovalsRepo) Approve(ctx context.Context, chatID, userID, approvedBy int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO approved_users (chat_id, user_id, approved_by)
VALUES ($1, $2, NULLIF($3, 0))
ON CONFLICT (chat_id, user_id) DO NOTHING
`, chatID, userID, approvedBy); err != nil {
		return fmt.Errorf("approve user: %w", err)
	}

	return nil
}

func (r *ApprovalsRepo) Unapprove(ctx context.Context, chatID, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM approved_users WHERE chat_id = $1 AND user_id = $2
`, chatID, userID); err != nil {
		return fmt.Errorf("unapprove user: %w", err)
	}

	return nil
}

func (r *ApprovalsRepo) IsApproved(ctx context.Context, chatID, userID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var approved bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM approved_users WHERE chat_id = $1 AND user_id = $2)
`, chatID, userID).Scan(&approved)
	if err != nil {
		return false, fmt.Errorf("check approval: %w", err)
	}

	return approved, nil
}
