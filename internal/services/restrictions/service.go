package restrictions

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
	"groupwarden/internal/ui"
)

type ModerationAPI interface {
	BotID() int64
	CanRestrict(ctx context.Context, chatID int64) (bool, error)
	MemberStatus(ctx context.Context, chatID, userID int64) (string, error)
	Ban(ctx context.Context, chatID, userID, untilDate int64) error
	Unban(ctx context.Context, chatID, userID int64) error
	RestrictSend(ctx context.Context, chatID, userID int64, allowed bool, untilDate int64) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type ActionStore interface {
	Create(ctx context.Context, action model.ScheduledAction) (int64, error)
}

// Outcome is the transient result handed back to the caller; it is never an
// error. Precondition failures and API failures both surface here, with a
// message fit for the chat.
type Outcome struct {
	OK      bool
	Message string
}

type Request struct {
	ChatID          int64
	TargetID        int64
	TargetName      string
	Reason          string
	Duration        time.Duration // 0 means permanent
	ActorIsCreator  bool
	DeleteMessageID int // optional offending message to remove, 0 to skip
}

// Service performs immediate moderation actions and, for temporary ones,
// schedules their own reversal.
type Service struct {
	tg      ModerationAPI
	actions ActionStore
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(tg ModerationAPI, actions ActionStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		tg:      tg,
		actions: actions,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *Service) Ban(ctx context.Context, req Request) Outcome {
	if out, ok := s.checkTarget(ctx, req, "ban"); !ok {
		return out
	}

	if err := s.tg.Ban(ctx, req.ChatID, req.TargetID, s.untilDate(req.Duration)); err != nil {
		s.logger.Error("ban failed", zap.Int64("chat_id", req.ChatID), zap.Int64("target_id", req.TargetID), zap.Error(err))
		return Outcome{Message: "Failed to ban that user."}
	}

	s.deleteIfRequested(ctx, req)

	if req.Duration > 0 {
		if err := s.scheduleReversal(ctx, req, model.ActionUnban); err != nil {
			s.logger.Error("schedule unban failed", zap.Int64("chat_id", req.ChatID), zap.Int64("target_id", req.TargetID), zap.Error(err))
			return Outcome{Message: "Failed to ban that user."}
		}
	}

	return Outcome{OK: true, Message: fmt.Sprintf("%s has been banned%s.%s", req.TargetName, durationSuffix(req.Duration), reasonSuffix(req.Reason))}
}

func (s *Service) Mute(ctx context.Context, req Request) Outcome {
	if out, ok := s.checkTarget(ctx, req, "mute"); !ok {
		return out
	}

	if err := s.tg.RestrictSend(ctx, req.ChatID, req.TargetID, false, s.untilDate(req.Duration)); err != nil {
		s.logger.Error("mute failed", zap.Int64("chat_id", req.ChatID), zap.Int64("target_id", req.TargetID), zap.Error(err))
		return Outcome{Message: "Failed to mute that user."}
	}

	s.deleteIfRequested(ctx, req)

	if req.Duration > 0 {
		if err := s.scheduleReversal(ctx, req, model.ActionUnmute); err != nil {
			s.logger.Error("schedule unmute failed", zap.Int64("chat_id", req.ChatID), zap.Int64("target_id", req.TargetID), zap.Error(err))
			return Outcome{Message: "Failed to mute that user."}
		}
	}

	return Outcome{OK: true, Message: fmt.Sprintf("%s has been muted%s.%s", req.TargetName, durationSuffix(req.Duration), reasonSuffix(req.Reason))}
}

// Kick removes the target but lets them rejoin: a ban immediately followed
// by an only-if-banned unban. Kicks are instantaneous, so no reversal is
// ever scheduled regardless of any Duration on the request.
func (s *Service) Kick(ctx context.Context, req Request) Outcome {
	if out, ok := s.checkTarget(ctx, req, "kick"); !ok {
		return out
	}

	if err := s.tg.Ban(ctx, req.ChatID, req.TargetID, 0); err != nil {
		s.logger.Error("kick failed", zap.Int64("chat_id", req.ChatID), zap.Int64("target_id", req.TargetID), zap.Error(err))
		return Outcome{Message: "Failed to kick that user."}
	}
	if err := s.tg.Unban(ctx, req.ChatID, req.TargetID); err != nil {
		s.logger.Error("unban after kick failed", zap.Int64("chat_id", req.ChatID), zap.Int64("target_id", req.TargetID), zap.Error(err))
		return Outcome{Message: "Failed to kick that user."}
	}

	s.deleteIfRequested(ctx, req)

	return Outcome{OK: true, Message: fmt.Sprintf("%s has been kicked.%s", req.TargetName, reasonSuffix(req.Reason))}
}

func (s *Service) Unban(ctx context.Context, chatID, targetID int64, targetName string) Outcome {
	if err := s.tg.Unban(ctx, chatID, targetID); err != nil {
		s.logger.Error("unban failed", zap.Int64("chat_id", chatID), zap.Int64("target_id", targetID), zap.Error(err))
		return Outcome{Message: "Failed to unban that user."}
	}

	return Outcome{OK: true, Message: fmt.Sprintf("%s has been unbanned.", targetName)}
}

func (s *Service) Unmute(ctx context.Context, chatID, targetID int64, targetName string) Outcome {
	if err := s.tg.RestrictSend(ctx, chatID, targetID, true, 0); err != nil {
		s.logger.Error("unmute failed", zap.Int64("chat_id", chatID), zap.Int64("target_id", targetID), zap.Error(err))
		return Outcome{Message: "Failed to unmute that user."}
	}

	return Outcome{OK: true, Message: fmt.Sprintf("%s has been unmuted.", targetName)}
}

// checkTarget runs every precondition before any mutation. Failures come
// back as typed outcomes, never errors, and are never retried.
func (s *Service) checkTarget(ctx context.Context, req Request, verb string) (Outcome, bool) {
	can, err := s.tg.CanRestrict(ctx, req.ChatID)
	if err != nil || !can {
		return Outcome{Message: fmt.Sprintf("I don't have permission to %s users.", verb)}, false
	}

	if req.TargetID == s.tg.BotID() {
		return Outcome{Message: "I'm not going to restrict myself!"}, false
	}

	status, err := s.tg.MemberStatus(ctx, req.ChatID, req.TargetID)
	if err != nil {
		// The target may not be in the chat at all, which is fine for bans.
		status = ""
	}
	if status == "creator" {
		return Outcome{Message: "I can't act on the group creator."}, false
	}
	if status == "administrator" && !req.ActorIsCreator {
		return Outcome{Message: "I can't act on other admins."}, false
	}

	return Outcome{}, true
}

func (s *Service) scheduleReversal(ctx context.Context, req Request, kind model.ActionKind) error {
	var metadata map[string]string
	if req.Reason != "" {
		metadata = map[string]string{"reason": req.Reason}
	}

	_, err := s.actions.Create(ctx, model.ScheduledAction{
		ChatID:    req.ChatID,
		UserID:    req.TargetID,
		Kind:      kind,
		ExecuteAt: s.now().Add(req.Duration),
		Metadata:  metadata,
	})
	return err
}

func (s *Service) deleteIfRequested(ctx context.Context, req Request) {
	if req.DeleteMessageID == 0 {
		return
	}
	if err := s.tg.DeleteMessage(ctx, req.ChatID, req.DeleteMessageID); err != nil {
		s.logger.Debug("delete associated message", zap.Int64("chat_id", req.ChatID), zap.Error(err))
	}
}

// untilDate converts a duration into the platform's absolute unix deadline;
// zero keeps the restriction permanent.
func (s *Service) untilDate(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return s.now().Unix() + int64(d/time.Second)
}

func durationSuffix(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return " for " + ui.FormatDuration(d)
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return "\nReason: " + reason
}
