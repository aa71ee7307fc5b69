package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"groupwarden/internal/domain/model"
)

type CaptchaRepo struct {
	pool *pgxpool.Pool
}

func NewCaptchaRepo(pool *pgxpool.Pool) *CaptchaRepo {
	return &CaptchaRepo{pool: pool}
}

// Upsert stores the challenge, replacing any prior one for the same
// (chat, user) pair. A re-join therefore invalidates the old challenge
// message and answer.
func (r *CaptchaRepo) Upsert(ctx context.Context, ch model.CaptchaChallenge) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if ch.ChatID == 0 || ch.UserID == 0 {
		return fmt.Errorf("invalid captcha challenge payload")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO captcha_challenges (chat_id, user_id, message_id, answer, expires_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)
ON CONFLICT (chat_id, user_id)
DO UPDATE SET
	message_id = EXCLUDED.message_id,
	answer = EXCLUDED.answer,
	expires_at = EXCLUDED.expires_at
`, ch.ChatID, ch.UserID, ch.MessageID, ch.Answer, ch.ExpiresAt); err != nil {
		return fmt.Errorf("upsert captcha challenge: %w", err)
	}

	return nil
}

func (r *CaptchaRepo) Find(ctx context.Context, chatID, userID int64) (model.CaptchaChallenge, bool, error) {
	if r.pool == nil {
		return model.CaptchaChallenge{}, false, fmt.Errorf("postgres pool is nil")
	}

	ch := model.CaptchaChallenge{ChatID: chatID, UserID: userID}
	err := r.pool.QueryRow(ctx, `
SELECT message_id, COALESCE(answer, ''), expires_at
FROM captcha_challenges
WHERE chat_id = $1 AND user_id = $2
`, chatID, userID).Scan(&ch.MessageID, &ch.Answer, &ch.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CaptchaChallenge{}, false, nil
		}
		return model.CaptchaChallenge{}, false, fmt.Errorf("find captcha challenge: %w", err)
	}

	return ch, true, nil
}

func (r *CaptchaRepo) Delete(ctx context.Context, chatID, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM captcha_challenges WHERE chat_id = $1 AND user_id = $2
`, chatID, userID); err != nil {
		return fmt.Errorf("delete captcha challenge: %w", err)
	}

	return nil
}
