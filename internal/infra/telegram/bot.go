package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// CommandUpdate is a "/cmd args" message from a chat member.
type CommandUpdate struct {
	ChatID         int64
	MessageID      int
	SenderID       int64
	SenderName     string
	Command        string
	Args           string
	ReplyToUserID  int64
	ReplyToName    string
	ReplyMessageID int
}

// MessageUpdate is any non-command chat message.
type MessageUpdate struct {
	ChatID     int64
	MessageID  int
	SenderID   int64
	SenderName string
	Text       string
}

// CallbackUpdate is an inline button press.
type CallbackUpdate struct {
	ID       string
	ChatID   int64
	SenderID int64
	Data     string
}

// JoinUpdate fires when a user transitions into the chat.
type JoinUpdate struct {
	ChatID   int64
	UserID   int64
	UserName string
	IsBot    bool
}

type Handlers struct {
	OnCommand  func(ctx context.Context, upd CommandUpdate)
	OnMessage  func(ctx context.Context, upd MessageUpdate)
	OnCallback func(ctx context.Context, upd CallbackUpdate)
	OnJoin     func(ctx context.Context, upd JoinUpdate)
}

type Bot struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewBot(token string, logger *zap.Logger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	return &Bot{api: api, logger: logger}, nil
}

func (b *Bot) BotID() int64 {
	return b.api.Self.ID
}

// Listen consumes long-poll updates until ctx is cancelled.
func (b *Bot) Listen(ctx context.Context, h Handlers) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "chat_member"}
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.route(ctx, update, h)
		}
	}
}

func (b *Bot) route(ctx context.Context, update tgbotapi.Update, h Handlers) {
	switch {
	case update.Message != nil && update.Message.From == nil:
		// Channel posts and service messages carry no sender.
		return

	case update.Message != nil && update.Message.IsCommand():
		if h.OnCommand == nil {
			return
		}
		msg := update.Message
		upd := CommandUpdate{
			ChatID:     msg.Chat.ID,
			MessageID:  msg.MessageID,
			SenderID:   msg.From.ID,
			SenderName: displayName(msg.From),
			Command:    msg.Command(),
			Args:       strings.TrimSpace(msg.CommandArguments()),
		}
		if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
			upd.ReplyToUserID = reply.From.ID
			upd.ReplyToName = displayName(reply.From)
			upd.ReplyMessageID = reply.MessageID
		}
		h.OnCommand(ctx, upd)

	case update.Message != nil:
		if h.OnMessage == nil {
			return
		}
		msg := update.Message
		h.OnMessage(ctx, MessageUpdate{
			ChatID:     msg.Chat.ID,
			MessageID:  msg.MessageID,
			SenderID:   msg.From.ID,
			SenderName: displayName(msg.From),
			Text:       msg.Text,
		})

	case update.CallbackQuery != nil:
		if h.OnCallback == nil {
			return
		}
		cb := update.CallbackQuery
		upd := CallbackUpdate{
			ID:       cb.ID,
			SenderID: cb.From.ID,
			Data:     cb.Data,
		}
		if cb.Message != nil {
			upd.ChatID = cb.Message.Chat.ID
		}
		h.OnCallback(ctx, upd)

	case update.ChatMember != nil:
		if h.OnJoin == nil {
			return
		}
		change := update.ChatMember
		if !isJoin(change.OldChatMember.Status, change.NewChatMember.Status) {
			return
		}
		user := change.NewChatMember.User
		if user == nil {
			return
		}
		h.OnJoin(ctx, JoinUpdate{
			ChatID:   change.Chat.ID,
			UserID:   user.ID,
			UserName: displayName(user),
			IsBot:    user.IsBot,
		})
	}
}

func isJoin(oldStatus, newStatus string) bool {
	wasOut := oldStatus == "left" || oldStatus == "kicked"
	isIn := newStatus == "member" || newStatus == "restricted"
	return wasOut && isIn
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CanRestrict reports whether the bot itself holds restriction rights in
// the chat.
func (b *Bot) CanRestrict(ctx context.Context, chatID int64) (bool, error) {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: b.api.Self.ID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get own membership: %w", err)
	}
	if member.Status == "creator" {
		return true, nil
	}
	return member.Status == "administrator" && member.CanRestrictMembers, nil
}

func (b *Bot) MemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("get chat member: %w", err)
	}
	return member.Status, nil
}

func (b *Bot) Ban(ctx context.Context, chatID, userID, untilDate int64) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		UntilDate: untilDate,
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("ban member: %w", err)
	}
	return nil
}

func (b *Bot) Unban(ctx context.Context, chatID, userID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("unban member: %w", err)
	}
	return nil
}

func (b *Bot) RestrictSend(ctx context.Context, chatID, userID int64, allowed bool, untilDate int64) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		UntilDate: untilDate,
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       allowed,
			CanSendMediaMessages:  allowed,
			CanSendPolls:          allowed,
			CanSendOtherMessages:  allowed,
			CanAddWebPagePreviews: allowed,
		},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("restrict member: %w", err)
	}
	return nil
}

func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

func (b *Bot) SendWithButton(ctx context.Context, chatID int64, text, buttonLabel, callbackData string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(buttonLabel, callbackData),
		),
	)
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}
