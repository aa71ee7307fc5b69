package antiraid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
	"groupwarden/internal/ui"
)

type ChatStore interface {
	SetRaidMode(ctx context.Context, chatID int64, enabled bool, expiresAt *time.Time) error
}

type ActionStore interface {
	Create(ctx context.Context, action model.ScheduledAction) (int64, error)
}

type JoinDetector interface {
	RecordJoin(ctx context.Context, chatID, userID int64, limit int) (bool, error)
}

type Messenger interface {
	Ban(ctx context.Context, chatID, userID, untilDate int64) error
	Unban(ctx context.Context, chatID, userID int64) error
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

// Service handles raid mode: automatic activation on a join burst and the
// removal of everyone who joins while it is active.
type Service struct {
	chats   ChatStore
	actions ActionStore
	joins   JoinDetector
	tg      Messenger
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(chats ChatStore, actions ActionStore, joins JoinDetector, tg Messenger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		chats:   chats,
		actions: actions,
		joins:   joins,
		tg:      tg,
		now:     time.Now,
		logger:  logger,
	}
}

// HandleJoin feeds the join into auto-activation first, then enforces raid
// mode against the settings as they were loaded for this update. A join
// that trips the threshold flips the flag for later joiners but is not
// itself removed.
func (s *Service) HandleJoin(ctx context.Context, st model.ChatSettings, userID int64) (bool, error) {
	now := s.now()

	if st.AutoAntiraidLimit > 0 && !st.RaidActive(now) {
		breached, err := s.joins.RecordJoin(ctx, st.ChatID, userID, st.AutoAntiraidLimit)
		if err != nil {
			s.logger.Error("record join", zap.Int64("chat_id", st.ChatID), zap.Error(err))
		} else if breached {
			s.logger.Info("join burst detected, enabling raid mode",
				zap.Int64("chat_id", st.ChatID),
				zap.Int("limit", st.AutoAntiraidLimit))
			if err := s.Activate(ctx, st.ChatID, time.Duration(st.RaidTime)*time.Second); err != nil {
				s.logger.Error("activate raid mode", zap.Int64("chat_id", st.ChatID), zap.Error(err))
			}
		}
	}

	if !st.RaidActive(now) {
		return false, nil
	}

	if err := s.tg.Ban(ctx, st.ChatID, userID, 0); err != nil {
		s.logger.Warn("raid kick ban failed", zap.Int64("chat_id", st.ChatID), zap.Int64("user_id", userID), zap.Error(err))
		return false, nil
	}
	if err := s.tg.Unban(ctx, st.ChatID, userID); err != nil {
		s.logger.Warn("raid kick unban failed", zap.Int64("chat_id", st.ChatID), zap.Int64("user_id", userID), zap.Error(err))
	}

	return true, nil
}

// Activate turns raid mode on for the given duration and schedules its
// own shutoff.
func (s *Service) Activate(ctx context.Context, chatID int64, d time.Duration) error {
	if d <= 0 {
		d = time.Duration(model.DefaultRaidTime) * time.Second
	}
	expiresAt := s.now().Add(d)

	if err := s.chats.SetRaidMode(ctx, chatID, true, &expiresAt); err != nil {
		return fmt.Errorf("set raid mode: %w", err)
	}

	if _, err := s.actions.Create(ctx, model.ScheduledAction{
		ChatID:    chatID,
		Kind:      model.ActionAntiraidDisable,
		ExecuteAt: expiresAt,
	}); err != nil {
		return fmt.Errorf("schedule raid shutoff: %w", err)
	}

	if _, err := s.tg.SendText(ctx, chatID, fmt.Sprintf("Raid mode enabled. New joiners will be removed for the next %s.", ui.FormatDuration(d))); err != nil {
		s.logger.Debug("announce raid mode", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	return nil
}

func (s *Service) Deactivate(ctx context.Context, chatID int64) error {
	if err := s.chats.SetRaidMode(ctx, chatID, false, nil); err != nil {
		return fmt.Errorf("clear raid mode: %w", err)
	}
	return nil
}
