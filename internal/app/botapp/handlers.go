package botapp

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
	"groupwarden/internal/infra/telegram"
	antiraidsvc "groupwarden/internal/services/antiraid"
	captchasvc "groupwarden/internal/services/captcha"
	restrictsvc "groupwarden/internal/services/restrictions"
	windowsvc "groupwarden/internal/services/windows"
)

// floodPunishSeconds is how long temporary flood punishments (TBAN, TMUTE)
// last.
const floodPunishSeconds = 86400

// BotAPI is the slice of the Telegram client the handler needs.
type BotAPI interface {
	MemberStatus(ctx context.Context, chatID, userID int64) (string, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type HandlerDeps struct {
	Bot          BotAPI
	Chats        ChatStore
	Approvals    ApprovalStore
	Detector     *windowsvc.Detector
	Captcha      *captchasvc.Service
	Restrictions *restrictsvc.Service
	Antiraid     *antiraidsvc.Service
	Logger       *zap.Logger
}

type ChatStore interface {
	Get(ctx context.Context, chatID int64) (model.ChatSettings, error)
	SetFloodLimit(ctx context.Context, chatID int64, limit int) error
	SetFloodTimer(ctx context.Context, chatID int64, seconds int) error
	SetFloodMode(ctx context.Context, chatID int64, mode model.FloodMode) error
	SetFloodClearAll(ctx context.Context, chatID int64, enabled bool) error
	SetCaptchaEnabled(ctx context.Context, chatID int64, enabled bool) error
	SetCaptchaMode(ctx context.Context, chatID int64, mode model.CaptchaMode) error
	SetCaptchaKick(ctx context.Context, chatID int64, enabled bool) error
	SetCaptchaKickTime(ctx context.Context, chatID int64, seconds int) error
	SetRaidTime(ctx context.Context, chatID int64, seconds int) error
	SetAutoAntiraidLimit(ctx context.Context, chatID int64, limit int) error
}

type ApprovalStore interface {
	Approve(ctx context.Context, chatID, userID, approvedBy int64) error
	Unapprove(ctx context.Context, chatID, userID int64) error
	IsApproved(ctx context.Context, chatID, userID int64) (bool, error)
}

// Handler routes Telegram updates into the moderation services.
type Handler struct {
	bot          BotAPI
	chats        ChatStore
	approvals    ApprovalStore
	detector     *windowsvc.Detector
	captcha      *captchasvc.Service
	restrictions *restrictsvc.Service
	antiraid     *antiraidsvc.Service
	logger       *zap.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		bot:          deps.Bot,
		chats:        deps.Chats,
		approvals:    deps.Approvals,
		detector:     deps.Detector,
		captcha:      deps.Captcha,
		restrictions: deps.Restrictions,
		antiraid:     deps.Antiraid,
		logger:       logger,
	}
}

func (h *Handler) Handlers() telegram.Handlers {
	return telegram.Handlers{
		OnCommand:  h.handleCommand,
		OnMessage:  h.handleMessage,
		OnCallback: h.handleCallback,
		OnJoin:     h.handleJoin,
	}
}

func (h *Handler) handleJoin(ctx context.Context, upd telegram.JoinUpdate) {
	if upd.IsBot {
		return
	}

	st, err := h.chats.Get(ctx, upd.ChatID)
	if err != nil {
		h.logger.Error("load chat settings", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}

	kicked, err := h.antiraid.HandleJoin(ctx, st, upd.UserID)
	if err != nil {
		h.logger.Error("antiraid join handling", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
	}
	if kicked {
		return
	}

	if st.CaptchaEnabled {
		if err := h.captcha.StartChallenge(ctx, upd.ChatID, upd.UserID, upd.UserName, st); err != nil {
			h.logger.Error("start captcha challenge", zap.Int64("chat_id", upd.ChatID), zap.Int64("user_id", upd.UserID), zap.Error(err))
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, upd telegram.MessageUpdate) {
	if upd.Text != "" {
		handled, err := h.captcha.HandleText(ctx, upd.ChatID, upd.SenderID, upd.MessageID, upd.Text)
		if err != nil {
			h.logger.Error("captcha text handling", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		}
		if handled {
			return
		}
	}

	h.checkFlood(ctx, upd)
}

func (h *Handler) checkFlood(ctx context.Context, upd telegram.MessageUpdate) {
	st, err := h.chats.Get(ctx, upd.ChatID)
	if err != nil {
		h.logger.Error("load chat settings", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	if st.FloodLimit <= 0 {
		return
	}

	if status, err := h.bot.MemberStatus(ctx, upd.ChatID, upd.SenderID); err == nil {
		if status == "creator" || status == "administrator" {
			return
		}
	}
	if approved, err := h.approvals.IsApproved(ctx, upd.ChatID, upd.SenderID); err == nil && approved {
		return
	}

	breached, messageIDs, err := h.detector.RecordMessage(ctx, upd.ChatID, upd.SenderID, upd.MessageID, st.FloodLimit, time.Duration(st.FloodTimer)*time.Second)
	if err != nil {
		h.logger.Error("record flood message", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	if !breached {
		return
	}

	h.punishFlood(ctx, st, upd, messageIDs)
}

func (h *Handler) punishFlood(ctx context.Context, st model.ChatSettings, upd telegram.MessageUpdate, messageIDs []int) {
	req := restrictsvc.Request{
		ChatID:     upd.ChatID,
		TargetID:   upd.SenderID,
		TargetName: upd.SenderName,
		Reason:     "flooding",
	}

	var out restrictsvc.Outcome
	switch st.FloodMode {
	case model.FloodModeBan:
		out = h.restrictions.Ban(ctx, req)
	case model.FloodModeKick:
		out = h.restrictions.Kick(ctx, req)
	case model.FloodModeTBan:
		req.Duration = floodPunishSeconds * time.Second
		out = h.restrictions.Ban(ctx, req)
	case model.FloodModeTMute:
		req.Duration = floodPunishSeconds * time.Second
		out = h.restrictions.Mute(ctx, req)
	default:
		out = h.restrictions.Mute(ctx, req)
	}

	if st.FloodClearAll {
		for _, id := range messageIDs {
			if err := h.bot.DeleteMessage(ctx, upd.ChatID, id); err != nil {
				h.logger.Debug("delete flood message", zap.Int64("chat_id", upd.ChatID), zap.Int("message_id", id), zap.Error(err))
			}
		}
	}

	if out.Message != "" {
		if _, err := h.bot.SendText(ctx, upd.ChatID, out.Message); err != nil {
			h.logger.Debug("send flood notice", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		}
	}
}

func (h *Handler) handleCallback(ctx context.Context, upd telegram.CallbackUpdate) {
	if !strings.HasPrefix(upd.Data, captchasvc.CallbackPrefix) {
		return
	}

	notice, _, err := h.captcha.HandleCallback(ctx, upd.ChatID, upd.SenderID, upd.Data)
	if err != nil {
		h.logger.Error("captcha callback handling", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}

	if err := h.bot.AnswerCallback(ctx, upd.ID, notice); err != nil {
		h.logger.Debug("answer callback", zap.Error(err))
	}
}
