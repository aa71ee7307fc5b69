package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"groupwarden/internal/domain/model"
)

type ChatsRepo struct {
	pool     *pgxpool.Pool
	defaults model.ChatSettings
}

// NewChatsRepo builds the repo with the baseline settings handed to chats
// that have no stored row yet.
func NewChatsRepo(pool *pgxpool.Pool, defaults model.ChatSettings) *ChatsRepo {
	if defaults.FloodMode == "" {
		defaults = model.DefaultChatSettings(0)
	}
	return &ChatsRepo{pool: pool, defaults: defaults}
}

// Get returns the chat's settings, or the configured defaults when the chat
// has no row yet.
func (r *ChatsRepo) Get(ctx context.Context, chatID int64) (model.ChatSettings, error) {
	if r.pool == nil {
		return model.ChatSettings{}, fmt.Errorf("postgres pool is nil")
	}

	st := model.ChatSettings{ChatID: chatID}
	var floodMode, captchaMode string
	err := r.pool.QueryRow(ctx, `
SELECT flood_limit, flood_timer, flood_mode, flood_clear_all,
	captcha_enabled, captcha_mode, COALESCE(captcha_text, ''), captcha_kick, captcha_kick_time,
	raid_time, auto_antiraid_limit, antiraid_enabled, antiraid_expires_at
FROM chats
WHERE chat_id = $1
`, chatID).Scan(
		&st.FloodLimit, &st.FloodTimer, &floodMode, &st.FloodClearAll,
		&st.CaptchaEnabled, &captchaMode, &st.CaptchaText, &st.CaptchaKick, &st.CaptchaKickTime,
		&st.RaidTime, &st.AutoAntiraidLimit, &st.AntiraidEnabled, &st.AntiraidExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			st := r.defaults
			st.ChatID = chatID
			return st, nil
		}
		return model.ChatSettings{}, fmt.Errorf("get chat settings: %w", err)
	}

	st.FloodMode = model.FloodMode(floodMode)
	st.CaptchaMode = model.CaptchaMode(captchaMode)
	return st, nil
}

// SetRaidMode flips the chat-wide raid flag. expiresAt must be non-nil when
// enabling and nil when disabling.
func (r *ChatsRepo) SetRaidMode(ctx context.Context, chatID int64, enabled bool, expiresAt *time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO chats (chat_id, antiraid_enabled, antiraid_expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (chat_id) DO UPDATE SET
	antiraid_enabled = EXCLUDED.antiraid_enabled,
	antiraid_expires_at = EXCLUDED.antiraid_expires_at,
	updated_at = NOW()
`, chatID, enabled, expiresAt); err != nil {
		return fmt.Errorf("set raid mode: %w", err)
	}

	return nil
}

func (r *ChatsRepo) SetFloodLimit(ctx context.Context, chatID int64, limit int) error {
	return r.upsertInt(ctx, chatID, "flood_limit", limit)
}

func (r *ChatsRepo) SetFloodTimer(ctx context.Context, chatID int64, seconds int) error {
	return r.upsertInt(ctx, chatID, "flood_timer", seconds)
}

func (r *ChatsRepo) SetFloodMode(ctx context.Context, chatID int64, mode model.FloodMode) error {
	return r.upsertText(ctx, chatID, "flood_mode", string(mode))
}

func (r *ChatsRepo) SetFloodClearAll(ctx context.Context, chatID int64, enabled bool) error {
	return r.upsertBool(ctx, chatID, "flood_clear_all", enabled)
}

func (r *ChatsRepo) SetCaptchaEnabled(ctx context.Context, chatID int64, enabled bool) error {
	return r.upsertBool(ctx, chatID, "captcha_enabled", enabled)
}

func (r *ChatsRepo) SetCaptchaMode(ctx context.Context, chatID int64, mode model.CaptchaMode) error {
	return r.upsertText(ctx, chatID, "captcha_mode", string(mode))
}

func (r *ChatsRepo) SetCaptchaKick(ctx context.Context, chatID int64, enabled bool) error {
	return r.upsertBool(ctx, chatID, "captcha_kick", enabled)
}

func (r *ChatsRepo) SetCaptchaKickTime(ctx context.Context, chatID int64, seconds int) error {
	return r.upsertInt(ctx, chatID, "captcha_kick_time", seconds)
}

func (r *ChatsRepo) SetRaidTime(ctx context.Context, chatID int64, seconds int) error {
	return r.upsertInt(ctx, chatID, "raid_time", seconds)
}

func (r *ChatsRepo) SetAutoAntiraidLimit(ctx context.Context, chatID int64, limit int) error {
	return r.upsertInt(ctx, chatID, "auto_antiraid_limit", limit)
}

// Column names below are compile-time constants from the setters above,
// never caller input.
func (r *ChatsRepo) upsertInt(ctx context.Context, chatID int64, column string, value int) error {
	return r.upsert(ctx, chatID, column, value)
}

func (r *ChatsRepo) upsertText(ctx context.Context, chatID int64, column string, value string) error {
	return r.upsert(ctx, chatID, column, value)
}

func (r *ChatsRepo) upsertBool(ctx context.Context, chatID int64, column string, value bool) error {
	return r.upsert(ctx, chatID, column, value)
}

func (r *ChatsRepo) upsert(ctx context.Context, chatID int64, column string, value any) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	query := fmt.Sprintf(`
INSERT INTO chats (chat_id, %[1]s)
VALUES ($1, $2)
ON CONFLICT (chat_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = NOW()
`, column)
	if _, err := r.pool.Exec(ctx, query, chatID, value); err != nil {
		return fmt.Errorf("update chat %s: %w", column, err)
	}

	return nil
}
