package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"groupwarden/internal/domain/model"
)

type ActionsRepo struct {
	pool *pgxpool.Pool
}

func NewActionsRepo(pool *pgxpool.Pool) *ActionsRepo {
	return &ActionsRepo{pool: pool}
}

func (r *ActionsRepo) Create(ctx context.Context, action model.ScheduledAction) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if action.ChatID == 0 || action.Kind == "" || action.ExecuteAt.IsZero() {
		return 0, fmt.Errorf("invalid scheduled action payload")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO scheduled_actions (chat_id, user_id, kind, execute_at, completed, metadata)
VALUES ($1, NULLIF($2, 0), $3, $4, FALSE, $5)
RETURNING id
`, action.ChatID, action.UserID, string(action.Kind), action.ExecuteAt, action.Metadata).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create scheduled action: %w", err)
	}

	return id, nil
}

// ListDue returns at most limit incomplete actions due at or before now, in
// ascending execute_at order.
func (r *ActionsRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledAction, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, chat_id, COALESCE(user_id, 0), kind, execute_at, completed, COALESCE(metadata, '{}'::jsonb)
FROM scheduled_actions
WHERE completed = FALSE AND execute_at <= $1
ORDER BY execute_at ASC
LIMIT $2
`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due actions: %w", err)
	}
	defer rows.Close()

	var actions []model.ScheduledAction
	for rows.Next() {
		var a model.ScheduledAction
		var kind string
		if err := rows.Scan(&a.ID, &a.ChatID, &a.UserID, &kind, &a.ExecuteAt, &a.Completed, &a.Metadata); err != nil {
			return nil, fmt.Errorf("scan scheduled action: %w", err)
		}
		a.Kind = model.ActionKind(kind)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due actions: %w", err)
	}

	return actions, nil
}

func (r *ActionsRepo) MarkCompleted(ctx context.Context, id int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE scheduled_actions SET completed = TRUE WHERE id = $1
`, id); err != nil {
		return fmt.Errorf("mark action completed: %w", err)
	}

	return nil
}

// CompleteKicksFor finalizes any pending captcha_kick rows for the pair.
// Purely an optimization on the solve path; the scheduler's missing-record
// no-op is what actually guarantees a solved user is never kicked.
func (r *ActionsRepo) CompleteKicksFor(ctx context.Context, chatID, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE scheduled_actions
SET completed = TRUE
WHERE chat_id = $1 AND user_id = $2 AND kind = $3 AND completed = FALSE
`, chatID, userID, string(model.ActionCaptchaKick)); err != nil {
		return fmt.Errorf("complete pending captcha kicks: %w", err)
	}

	return nil
}
