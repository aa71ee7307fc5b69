package captcha

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
)

// CallbackPrefix marks verification button callback data; the suffix is the
// subject user id.
const CallbackPrefix = "captcha:"

const (
	defaultKickTime    = 120 // seconds
	defaultButtonLabel = "Click here to prove you're human"
	answerCharset      = "abcdefghijklmnopqrstuvwxyz0123456789"
)

type ChallengeStore interface {
	Upsert(ctx context.Context, ch model.CaptchaChallenge) error
	Find(ctx context.Context, chatID, userID int64) (model.CaptchaChallenge, bool, error)
	Delete(ctx context.Context, chatID, userID int64) error
}

type ActionStore interface {
	Create(ctx context.Context, action model.ScheduledAction) (int64, error)
	CompleteKicksFor(ctx context.Context, chatID, userID int64) error
}

type Messenger interface {
	RestrictSend(ctx context.Context, chatID, userID int64, allowed bool, untilDate int64) error
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendWithButton(ctx context.Context, chatID int64, text, buttonLabel, callbackData string) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Service drives the pending-challenge lifecycle for newly joined members.
// While a challenge is pending the subject cannot send messages; send
// permissions are restored exactly once, by whichever terminal transition
// (solve or scheduled kick) fires first.
type Service struct {
	challenges ChallengeStore
	actions    ActionStore
	tg         Messenger
	rnd        *rand.Rand
	now        func() time.Time
	logger     *zap.Logger
}

func NewService(challenges ChallengeStore, actions ActionStore, tg Messenger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		challenges: challenges,
		actions:    actions,
		tg:         tg,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
		logger:     logger,
	}
}

// StartChallenge mutes the joiner, sends a challenge per the chat's mode and
// upserts the pending record. A re-join simply overwrites the prior
// challenge. When kick-on-timeout is enabled a captcha_kick action is
// scheduled for the challenge expiry.
func (s *Service) StartChallenge(ctx context.Context, chatID, userID int64, firstName string, st model.ChatSettings) error {
	if err := s.tg.RestrictSend(ctx, chatID, userID, false, 0); err != nil {
		// The challenge still goes out; an unmuted subject can simply solve it early.
		s.logger.Warn("mute for captcha failed", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
	}

	var answer, text string
	switch st.CaptchaMode {
	case model.CaptchaModeMath:
		a := s.rnd.Intn(20) + 1
		b := s.rnd.Intn(20) + 1
		answer = strconv.Itoa(a + b)
		text = fmt.Sprintf("Welcome %s! Please solve: %d + %d = ?\nSend the answer in the chat.", firstName, a, b)
	case model.CaptchaModeText:
		buf := make([]byte, 6)
		for i := range buf {
			buf[i] = answerCharset[s.rnd.Intn(len(answerCharset))]
		}
		answer = string(buf)
		text = fmt.Sprintf("Welcome %s! Please type: %s", firstName, answer)
	default:
		text = fmt.Sprintf("Welcome %s! Please click the button below to verify.", firstName)
	}

	var messageID int
	var err error
	if answer == "" {
		label := st.CaptchaText
		if label == "" {
			label = defaultButtonLabel
		}
		messageID, err = s.tg.SendWithButton(ctx, chatID, text, label, CallbackPrefix+strconv.FormatInt(userID, 10))
	} else {
		messageID, err = s.tg.SendText(ctx, chatID, text)
	}
	if err != nil {
		return fmt.Errorf("send captcha challenge: %w", err)
	}

	kickTime := st.CaptchaKickTime
	if kickTime <= 0 {
		kickTime = defaultKickTime
	}
	expiresAt := s.now().Add(time.Duration(kickTime) * time.Second)

	if err := s.challenges.Upsert(ctx, model.CaptchaChallenge{
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Answer:    answer,
		ExpiresAt: expiresAt,
	}); err != nil {
		return fmt.Errorf("store captcha challenge: %w", err)
	}

	if st.CaptchaKick {
		if _, err := s.actions.Create(ctx, model.ScheduledAction{
			ChatID:    chatID,
			UserID:    userID,
			Kind:      model.ActionCaptchaKick,
			ExecuteAt: expiresAt,
		}); err != nil {
			return fmt.Errorf("schedule captcha kick: %w", err)
		}
	}

	return nil
}

// HandleCallback processes a verification button press. The returned notice
// is shown to the pressing user; a press by anyone but the challenge subject
// is rejected without touching the pending state.
func (s *Service) HandleCallback(ctx context.Context, chatID, fromID int64, data string) (notice string, solved bool, err error) {
	raw := strings.TrimPrefix(data, CallbackPrefix)
	subject, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", false, fmt.Errorf("parse captcha callback %q: %w", data, err)
	}

	if fromID != subject {
		return "This isn't for you!", false, nil
	}

	solved, err = s.solve(ctx, chatID, subject)
	if err != nil || !solved {
		return "", false, err
	}

	return "Verified! Welcome!", true, nil
}

// HandleText checks a plain message against a pending text or math
// challenge and reports whether it consumed the message. A correct answer
// solves the challenge; a wrong one only removes the attempt from the chat,
// leaving the challenge pending until its expiry.
func (s *Service) HandleText(ctx context.Context, chatID, userID int64, messageID int, text string) (bool, error) {
	ch, ok, err := s.challenges.Find(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	if !ok || ch.Answer == "" {
		return false, nil
	}

	if strings.TrimSpace(text) == ch.Answer {
		if _, err := s.solve(ctx, chatID, userID); err != nil {
			return true, err
		}
	}

	if err := s.tg.DeleteMessage(ctx, chatID, messageID); err != nil {
		s.logger.Debug("delete captcha answer message", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	return true, nil
}

// solve performs the PENDING -> SOLVED transition. There is no explicit
// cancellation of the paired scheduled kick: deleting the record is what
// makes the scheduler's kick handler no-op. CompleteKicksFor below only
// saves the scheduler a wasted wakeup.
func (s *Service) solve(ctx context.Context, chatID, userID int64) (bool, error) {
	ch, ok, err := s.challenges.Find(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := s.tg.RestrictSend(ctx, chatID, userID, true, 0); err != nil {
		s.logger.Warn("restore permissions after captcha", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
	}

	if ch.MessageID != 0 {
		if err := s.tg.DeleteMessage(ctx, chatID, ch.MessageID); err != nil {
			s.logger.Debug("delete challenge message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}

	if err := s.challenges.Delete(ctx, chatID, userID); err != nil {
		return false, fmt.Errorf("delete captcha challenge: %w", err)
	}

	if err := s.actions.CompleteKicksFor(ctx, chatID, userID); err != nil {
		s.logger.Warn("finalize pending captcha kicks", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
	}

	s.logger.Debug("captcha solved", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
	return true, nil
}
