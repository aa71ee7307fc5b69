package botapp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
	"groupwarden/internal/infra/telegram"
	restrictsvc "groupwarden/internal/services/restrictions"
	"groupwarden/internal/ui"
)

func (h *Handler) handleCommand(ctx context.Context, upd telegram.CommandUpdate) {
	isCreator, ok := h.requireAdmin(ctx, upd)
	if !ok {
		// Commands from regular members still count toward the flood window.
		h.checkFlood(ctx, telegram.MessageUpdate{
			ChatID:     upd.ChatID,
			MessageID:  upd.MessageID,
			SenderID:   upd.SenderID,
			SenderName: upd.SenderName,
		})
		return
	}

	switch upd.Command {
	case "ban":
		h.cmdRestrict(ctx, upd, isCreator, false, h.restrictions.Ban)
	case "tban":
		h.cmdRestrict(ctx, upd, isCreator, true, h.restrictions.Ban)
	case "mute":
		h.cmdRestrict(ctx, upd, isCreator, false, h.restrictions.Mute)
	case "tmute":
		h.cmdRestrict(ctx, upd, isCreator, true, h.restrictions.Mute)
	case "kick":
		h.cmdRestrict(ctx, upd, isCreator, false, h.restrictions.Kick)
	case "unban":
		h.cmdUnrestrict(ctx, upd, h.restrictions.Unban)
	case "unmute":
		h.cmdUnrestrict(ctx, upd, h.restrictions.Unmute)
	case "flood":
		h.cmdFloodStatus(ctx, upd)
	case "setflood":
		h.cmdSetFlood(ctx, upd)
	case "setfloodtimer":
		h.cmdSetFloodTimer(ctx, upd)
	case "setfloodmode":
		h.cmdSetFloodMode(ctx, upd)
	case "clearflood":
		h.cmdToggle(ctx, upd, h.chats.SetFloodClearAll, "Flood message cleanup")
	case "captcha":
		h.cmdToggle(ctx, upd, h.chats.SetCaptchaEnabled, "Captcha")
	case "captchamode":
		h.cmdCaptchaMode(ctx, upd)
	case "captchakick":
		h.cmdToggle(ctx, upd, h.chats.SetCaptchaKick, "Captcha kick")
	case "captchakicktime":
		h.cmdCaptchaKickTime(ctx, upd)
	case "antiraid":
		h.cmdAntiraid(ctx, upd)
	case "raidtime":
		h.cmdRaidTime(ctx, upd)
	case "autoantiraid":
		h.cmdAutoAntiraid(ctx, upd)
	case "approve":
		h.cmdApprove(ctx, upd)
	case "unapprove":
		h.cmdUnapprove(ctx, upd)
	}
}

// requireAdmin silently drops commands from non-admins.
func (h *Handler) requireAdmin(ctx context.Context, upd telegram.CommandUpdate) (isCreator, ok bool) {
	status, err := h.bot.MemberStatus(ctx, upd.ChatID, upd.SenderID)
	if err != nil {
		h.logger.Debug("resolve sender status", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return false, false
	}
	switch status {
	case "creator":
		return true, true
	case "administrator":
		return false, true
	default:
		return false, false
	}
}

// resolveTarget takes the subject from the replied-to message, or from a
// leading numeric user id argument. It returns the remaining args.
func resolveTarget(upd telegram.CommandUpdate) (userID int64, name string, rest string, ok bool) {
	if upd.ReplyToUserID != 0 {
		return upd.ReplyToUserID, upd.ReplyToName, upd.Args, true
	}

	fields := strings.Fields(upd.Args)
	if len(fields) == 0 {
		return 0, "", "", false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", "", false
	}
	return id, fields[0], strings.TrimSpace(strings.TrimPrefix(upd.Args, fields[0])), true
}

func (h *Handler) cmdRestrict(ctx context.Context, upd telegram.CommandUpdate, isCreator, timed bool, fn func(context.Context, restrictsvc.Request) restrictsvc.Outcome) {
	targetID, targetName, rest, ok := resolveTarget(upd)
	if !ok {
		h.reply(ctx, upd.ChatID, "Reply to the user or give their numeric id.")
		return
	}

	req := restrictsvc.Request{
		ChatID:          upd.ChatID,
		TargetID:        targetID,
		TargetName:      targetName,
		ActorIsCreator:  isCreator,
		DeleteMessageID: upd.ReplyMessageID,
	}

	if timed {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			h.reply(ctx, upd.ChatID, "Give a duration, e.g. 1h or 2d.")
			return
		}
		d, ok := ui.ParseDuration(fields[0])
		if !ok {
			h.reply(ctx, upd.ChatID, fmt.Sprintf("I don't understand the duration %q.", fields[0]))
			return
		}
		req.Duration = d
		req.Reason = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
	} else {
		req.Reason = rest
	}

	out := fn(ctx, req)
	h.reply(ctx, upd.ChatID, out.Message)
}

func (h *Handler) cmdUnrestrict(ctx context.Context, upd telegram.CommandUpdate, fn func(context.Context, int64, int64, string) restrictsvc.Outcome) {
	targetID, targetName, _, ok := resolveTarget(upd)
	if !ok {
		h.reply(ctx, upd.ChatID, "Reply to the user or give their numeric id.")
		return
	}

	out := fn(ctx, upd.ChatID, targetID, targetName)
	h.reply(ctx, upd.ChatID, out.Message)
}

func (h *Handler) cmdFloodStatus(ctx context.Context, upd telegram.CommandUpdate) {
	st, err := h.chats.Get(ctx, upd.ChatID)
	if err != nil {
		h.logger.Error("load chat settings", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}

	if st.FloodLimit <= 0 {
		h.reply(ctx, upd.ChatID, "Antiflood is disabled.")
		return
	}

	window := st.FloodTimer
	if window <= 0 {
		window = 5
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Antiflood: %d messages per %s, action %s.",
		st.FloodLimit, ui.FormatDuration(time.Duration(window)*time.Second), strings.ToLower(string(st.FloodMode))))
}

func (h *Handler) cmdSetFlood(ctx context.Context, upd telegram.CommandUpdate) {
	arg := strings.ToLower(strings.TrimSpace(upd.Args))
	if arg == "off" || arg == "0" {
		if err := h.chats.SetFloodLimit(ctx, upd.ChatID, 0); err != nil {
			h.logger.Error("set flood limit", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
			return
		}
		h.reply(ctx, upd.ChatID, "Antiflood disabled.")
		return
	}

	n, err := strconv.Atoi(arg)
	if err != nil || n < 2 {
		h.reply(ctx, upd.ChatID, "Give a message count of at least 2, or 'off'.")
		return
	}
	if err := h.chats.SetFloodLimit(ctx, upd.ChatID, n); err != nil {
		h.logger.Error("set flood limit", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Antiflood triggers after %d messages.", n))
}

func (h *Handler) cmdSetFloodTimer(ctx context.Context, upd telegram.CommandUpdate) {
	d, ok := ui.ParseDuration(strings.TrimSpace(upd.Args))
	if !ok {
		h.reply(ctx, upd.ChatID, "Give a window duration, e.g. 10m.")
		return
	}
	if err := h.chats.SetFloodTimer(ctx, upd.ChatID, int(d/time.Second)); err != nil {
		h.logger.Error("set flood timer", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Flood window set to %s.", ui.FormatDuration(d)))
}

func (h *Handler) cmdSetFloodMode(ctx context.Context, upd telegram.CommandUpdate) {
	mode := model.FloodMode(strings.ToUpper(strings.TrimSpace(upd.Args)))
	switch mode {
	case model.FloodModeBan, model.FloodModeMute, model.FloodModeKick, model.FloodModeTBan, model.FloodModeTMute:
	default:
		h.reply(ctx, upd.ChatID, "Valid modes: ban, mute, kick, tban, tmute.")
		return
	}
	if err := h.chats.SetFloodMode(ctx, upd.ChatID, mode); err != nil {
		h.logger.Error("set flood mode", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Flood action set to %s.", strings.ToLower(string(mode))))
}

func (h *Handler) cmdToggle(ctx context.Context, upd telegram.CommandUpdate, set func(context.Context, int64, bool) error, label string) {
	arg := strings.ToLower(strings.TrimSpace(upd.Args))
	var enabled bool
	switch arg {
	case "on", "yes", "true":
		enabled = true
	case "off", "no", "false":
		enabled = false
	default:
		h.reply(ctx, upd.ChatID, "Say 'on' or 'off'.")
		return
	}

	if err := set(ctx, upd.ChatID, enabled); err != nil {
		h.logger.Error("update chat setting", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("%s %s.", label, state))
}

func (h *Handler) cmdCaptchaMode(ctx context.Context, upd telegram.CommandUpdate) {
	mode := model.CaptchaMode(strings.ToUpper(strings.TrimSpace(upd.Args)))
	switch mode {
	case model.CaptchaModeButton, model.CaptchaModeText, model.CaptchaModeMath:
	default:
		h.reply(ctx, upd.ChatID, "Valid modes: button, text, math.")
		return
	}
	if err := h.chats.SetCaptchaMode(ctx, upd.ChatID, mode); err != nil {
		h.logger.Error("set captcha mode", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Captcha mode set to %s.", strings.ToLower(string(mode))))
}

func (h *Handler) cmdCaptchaKickTime(ctx context.Context, upd telegram.CommandUpdate) {
	d, ok := ui.ParseDuration(strings.TrimSpace(upd.Args))
	if !ok {
		h.reply(ctx, upd.ChatID, "Give a duration, e.g. 2m.")
		return
	}
	if err := h.chats.SetCaptchaKickTime(ctx, upd.ChatID, int(d/time.Second)); err != nil {
		h.logger.Error("set captcha kick time", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Unsolved captchas now kick after %s.", ui.FormatDuration(d)))
}

func (h *Handler) cmdAntiraid(ctx context.Context, upd telegram.CommandUpdate) {
	arg := strings.ToLower(strings.TrimSpace(upd.Args))

	if arg == "off" {
		if err := h.antiraid.Deactivate(ctx, upd.ChatID); err != nil {
			h.logger.Error("deactivate raid mode", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
			return
		}
		h.reply(ctx, upd.ChatID, "Raid mode disabled.")
		return
	}

	st, err := h.chats.Get(ctx, upd.ChatID)
	if err != nil {
		h.logger.Error("load chat settings", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}

	d := time.Duration(st.RaidTime) * time.Second
	if arg != "" && arg != "on" {
		parsed, ok := ui.ParseDuration(arg)
		if !ok {
			h.reply(ctx, upd.ChatID, fmt.Sprintf("I don't understand the duration %q.", arg))
			return
		}
		d = parsed
	}

	if err := h.antiraid.Activate(ctx, upd.ChatID, d); err != nil {
		h.logger.Error("activate raid mode", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
	}
}

func (h *Handler) cmdRaidTime(ctx context.Context, upd telegram.CommandUpdate) {
	d, ok := ui.ParseDuration(strings.TrimSpace(upd.Args))
	if !ok {
		h.reply(ctx, upd.ChatID, "Give a duration, e.g. 6h.")
		return
	}
	if err := h.chats.SetRaidTime(ctx, upd.ChatID, int(d/time.Second)); err != nil {
		h.logger.Error("set raid time", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Raid mode will stay active for %s once triggered.", ui.FormatDuration(d)))
}

func (h *Handler) cmdAutoAntiraid(ctx context.Context, upd telegram.CommandUpdate) {
	arg := strings.ToLower(strings.TrimSpace(upd.Args))
	if arg == "off" || arg == "0" {
		if err := h.chats.SetAutoAntiraidLimit(ctx, upd.ChatID, 0); err != nil {
			h.logger.Error("set auto antiraid", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
			return
		}
		h.reply(ctx, upd.ChatID, "Automatic raid detection disabled.")
		return
	}

	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		h.reply(ctx, upd.ChatID, "Give a joins-per-minute threshold, or 'off'.")
		return
	}
	if err := h.chats.SetAutoAntiraidLimit(ctx, upd.ChatID, n); err != nil {
		h.logger.Error("set auto antiraid", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("Raid mode auto-enables at %d joins per minute.", n))
}

func (h *Handler) cmdApprove(ctx context.Context, upd telegram.CommandUpdate) {
	targetID, targetName, _, ok := resolveTarget(upd)
	if !ok {
		h.reply(ctx, upd.ChatID, "Reply to the user or give their numeric id.")
		return
	}
	if err := h.approvals.Approve(ctx, upd.ChatID, targetID, upd.SenderID); err != nil {
		h.logger.Error("approve user", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("%s is now exempt from antiflood.", targetName))
}

func (h *Handler) cmdUnapprove(ctx context.Context, upd telegram.CommandUpdate) {
	targetID, targetName, _, ok := resolveTarget(upd)
	if !ok {
		h.reply(ctx, upd.ChatID, "Reply to the user or give their numeric id.")
		return
	}
	if err := h.approvals.Unapprove(ctx, upd.ChatID, targetID); err != nil {
		h.logger.Error("unapprove user", zap.Int64("chat_id", upd.ChatID), zap.Error(err))
		return
	}
	h.reply(ctx, upd.ChatID, fmt.Sprintf("%s is no longer exempt from antiflood.", targetName))
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := h.bot.SendText(ctx, chatID, text); err != nil {
		h.logger.Debug("send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
