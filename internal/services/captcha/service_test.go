package captcha

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
)

type challengeStoreStub struct {
	byKey map[string]model.CaptchaChallenge
}

func newChallengeStoreStub() *challengeStoreStub {
	return &challengeStoreStub{byKey: map[string]model.CaptchaChallenge{}}
}

func challengeKey(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

func (s *challengeStoreStub) Upsert(_ context.Context, ch model.CaptchaChallenge) error {
	s.byKey[challengeKey(ch.ChatID, ch.UserID)] = ch
	return nil
}

func (s *challengeStoreStub) Find(_ context.Context, chatID, userID int64) (model.CaptchaChallenge, bool, error) {
	ch, ok := s.byKey[challengeKey(chatID, userID)]
	return ch, ok, nil
}

func (s *challengeStoreStub) Delete(_ context.Context, chatID, userID int64) error {
	delete(s.byKey, challengeKey(chatID, userID))
	return nil
}

type actionStoreStub struct {
	created        []model.ScheduledAction
	completedKicks int
}

func (s *actionStoreStub) Create(_ context.Context, action model.ScheduledAction) (int64, error) {
	s.created = append(s.created, action)
	return int64(len(s.created)), nil
}

func (s *actionStoreStub) CompleteKicksFor(context.Context, int64, int64) error {
	s.completedKicks++
	return nil
}

type messengerStub struct {
	nextMessageID int
	sentTexts     []string
	buttonData    []string
	restricted    map[int64]bool
	deleted       []int
}

func newMessengerStub() *messengerStub {
	return &messengerStub{nextMessageID: 500, restricted: map[int64]bool{}}
}

func (m *messengerStub) RestrictSend(_ context.Context, _, userID int64, allowed bool, _ int64) error {
	m.restricted[userID] = !allowed
	return nil
}

func (m *messengerStub) SendText(_ context.Context, _ int64, text string) (int, error) {
	m.nextMessageID++
	m.sentTexts = append(m.sentTexts, text)
	return m.nextMessageID, nil
}

func (m *messengerStub) SendWithButton(_ context.Context, _ int64, text, _, callbackData string) (int, error) {
	m.nextMessageID++
	m.sentTexts = append(m.sentTexts, text)
	m.buttonData = append(m.buttonData, callbackData)
	return m.nextMessageID, nil
}

func (m *messengerStub) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	m.deleted = append(m.deleted, messageID)
	return nil
}

func newTestService(challenges *challengeStoreStub, actions *actionStoreStub, tg *messengerStub) *Service {
	return &Service{
		challenges: challenges,
		actions:    actions,
		tg:         tg,
		rnd:        rand.New(rand.NewSource(1)),
		now:        func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		logger:     zap.NewNop(),
	}
}

func buttonSettings(kick bool) model.ChatSettings {
	st := model.DefaultChatSettings(100)
	st.CaptchaEnabled = true
	st.CaptchaKick = kick
	return st
}

func TestStartChallengeButtonModeMutesAndSchedulesKick(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	tg := newMessengerStub()
	svc := newTestService(challenges, actions, tg)
	ctx := context.Background()

	if err := svc.StartChallenge(ctx, 100, 42, "alice", buttonSettings(true)); err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	if !tg.restricted[42] {
		t.Fatalf("expected joiner muted while challenge is pending")
	}
	if len(tg.buttonData) != 1 || tg.buttonData[0] != CallbackPrefix+"42" {
		t.Fatalf("unexpected button callback data: %v", tg.buttonData)
	}

	ch, ok, _ := challenges.Find(ctx, 100, 42)
	if !ok {
		t.Fatalf("expected pending challenge record")
	}
	if ch.Answer != "" {
		t.Fatalf("button mode should have no stored answer, got %q", ch.Answer)
	}

	if len(actions.created) != 1 {
		t.Fatalf("expected one scheduled kick, got %d", len(actions.created))
	}
	kick := actions.created[0]
	if kick.Kind != model.ActionCaptchaKick || kick.UserID != 42 {
		t.Fatalf("unexpected scheduled action: %+v", kick)
	}
	if !kick.ExecuteAt.Equal(ch.ExpiresAt) {
		t.Fatalf("kick due %v, challenge expires %v", kick.ExecuteAt, ch.ExpiresAt)
	}
}

func TestStartChallengeWithoutKickSchedulesNothing(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	svc := newTestService(challenges, actions, newMessengerStub())

	if err := svc.StartChallenge(context.Background(), 100, 42, "alice", buttonSettings(false)); err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	if len(actions.created) != 0 {
		t.Fatalf("expected no scheduled actions, got %d", len(actions.created))
	}
}

func TestRejoinOverwritesChallenge(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	tg := newMessengerStub()
	svc := newTestService(challenges, actions, tg)
	ctx := context.Background()

	st := buttonSettings(false)
	st.CaptchaMode = model.CaptchaModeText

	if err := svc.StartChallenge(ctx, 100, 42, "alice", st); err != nil {
		t.Fatalf("first challenge: %v", err)
	}
	first, _, _ := challenges.Find(ctx, 100, 42)

	if err := svc.StartChallenge(ctx, 100, 42, "alice", st); err != nil {
		t.Fatalf("second challenge: %v", err)
	}
	second, _, _ := challenges.Find(ctx, 100, 42)

	if len(challenges.byKey) != 1 {
		t.Fatalf("expected a single pending challenge, got %d", len(challenges.byKey))
	}
	if first.MessageID == second.MessageID {
		t.Fatalf("expected a fresh challenge message on re-join")
	}
}

func TestHandleTextSolvesChallenge(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	tg := newMessengerStub()
	svc := newTestService(challenges, actions, tg)
	ctx := context.Background()

	st := buttonSettings(true)
	st.CaptchaMode = model.CaptchaModeText

	if err := svc.StartChallenge(ctx, 100, 42, "alice", st); err != nil {
		t.Fatalf("start challenge: %v", err)
	}
	ch, _, _ := challenges.Find(ctx, 100, 42)

	handled, err := svc.HandleText(ctx, 100, 42, 600, "  "+ch.Answer+"  ")
	if err != nil {
		t.Fatalf("handle text: %v", err)
	}
	if !handled {
		t.Fatalf("expected answer message consumed")
	}

	if _, ok, _ := challenges.Find(ctx, 100, 42); ok {
		t.Fatalf("expected challenge removed after solve")
	}
	if tg.restricted[42] {
		t.Fatalf("expected send permissions restored after solve")
	}
	if actions.completedKicks != 1 {
		t.Fatalf("expected pending kicks finalized, got %d calls", actions.completedKicks)
	}
}

func TestHandleTextWrongAnswerKeepsChallengePending(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	tg := newMessengerStub()
	svc := newTestService(challenges, actions, tg)
	ctx := context.Background()

	st := buttonSettings(false)
	st.CaptchaMode = model.CaptchaModeMath

	if err := svc.StartChallenge(ctx, 100, 42, "alice", st); err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	handled, err := svc.HandleText(ctx, 100, 42, 600, "definitely wrong")
	if err != nil {
		t.Fatalf("handle text: %v", err)
	}
	if !handled {
		t.Fatalf("expected attempt consumed even when wrong")
	}

	if _, ok, _ := challenges.Find(ctx, 100, 42); !ok {
		t.Fatalf("expected challenge to stay pending after wrong answer")
	}
	if len(tg.deleted) != 1 || tg.deleted[0] != 600 {
		t.Fatalf("expected the wrong attempt deleted, got %v", tg.deleted)
	}
	if tg.restricted[42] != true {
		t.Fatalf("expected subject to stay muted")
	}
}

func TestHandleTextIgnoredWithoutPendingChallenge(t *testing.T) {
	svc := newTestService(newChallengeStoreStub(), &actionStoreStub{}, newMessengerStub())

	handled, err := svc.HandleText(context.Background(), 100, 42, 600, "hello there")
	if err != nil {
		t.Fatalf("handle text: %v", err)
	}
	if handled {
		t.Fatalf("expected ordinary message to pass through")
	}
}

func TestHandleCallbackRejectsOtherUsers(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	tg := newMessengerStub()
	svc := newTestService(challenges, actions, tg)
	ctx := context.Background()

	if err := svc.StartChallenge(ctx, 100, 42, "alice", buttonSettings(true)); err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	notice, solved, err := svc.HandleCallback(ctx, 100, 99, CallbackPrefix+strconv.Itoa(42))
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if solved {
		t.Fatalf("expected no solve by a different user")
	}
	if notice != "This isn't for you!" {
		t.Fatalf("unexpected notice %q", notice)
	}
	if _, ok, _ := challenges.Find(ctx, 100, 42); !ok {
		t.Fatalf("expected challenge untouched by foreign press")
	}
}

func TestHandleCallbackSolvesForSubject(t *testing.T) {
	challenges := newChallengeStoreStub()
	actions := &actionStoreStub{}
	tg := newMessengerStub()
	svc := newTestService(challenges, actions, tg)
	ctx := context.Background()

	if err := svc.StartChallenge(ctx, 100, 42, "alice", buttonSettings(true)); err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	notice, solved, err := svc.HandleCallback(ctx, 100, 42, CallbackPrefix+"42")
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if !solved {
		t.Fatalf("expected subject press to solve")
	}
	if notice != "Verified! Welcome!" {
		t.Fatalf("unexpected notice %q", notice)
	}
	if _, ok, _ := challenges.Find(ctx, 100, 42); ok {
		t.Fatalf("expected challenge removed after solve")
	}
}
