package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"groupwarden/internal/domain/model"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 50
)

type ActionStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledAction, error)
	MarkCompleted(ctx context.Context, id int64) error
}

type ChallengeStore interface {
	Find(ctx context.Context, chatID, userID int64) (model.CaptchaChallenge, bool, error)
	Delete(ctx context.Context, chatID, userID int64) error
}

type ChatStore interface {
	SetRaidMode(ctx context.Context, chatID int64, enabled bool, expiresAt *time.Time) error
}

type ModerationAPI interface {
	Ban(ctx context.Context, chatID, userID, untilDate int64) error
	Unban(ctx context.Context, chatID, userID int64) error
	RestrictSend(ctx context.Context, chatID, userID int64, allowed bool, untilDate int64) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Executor drains due scheduled actions. Every claimed action is marked
// completed whether or not its side effect succeeded: failures are logged
// and never retried. Exactly one executor instance may run per database.
type Executor struct {
	actions    ActionStore
	challenges ChallengeStore
	chats      ChatStore
	tg         ModerationAPI
	interval   time.Duration
	batchSize  int
	now        func() time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewExecutor(actions ActionStore, challenges ChallengeStore, chats ChatStore, tg ModerationAPI, interval time.Duration, batchSize int, logger *zap.Logger) *Executor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		actions:    actions,
		challenges: challenges,
		chats:      chats,
		tg:         tg,
		interval:   interval,
		batchSize:  batchSize,
		now:        time.Now,
		logger:     logger,
	}
}

// Start launches the polling loop. Calling Start on a running executor is a
// no-op.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(ctx, e.done)
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (e *Executor) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Executor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	e.RunOnce(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single polling pass.
func (e *Executor) RunOnce(ctx context.Context) {
	due, err := e.actions.ListDue(ctx, e.now(), e.batchSize)
	if err != nil {
		e.logger.Error("list due actions", zap.Error(err))
		return
	}

	for _, row := range due {
		if err := e.dispatch(ctx, row); err != nil {
			e.logger.Error("execute scheduled action",
				zap.Int64("action_id", row.ID),
				zap.String("kind", string(row.Kind)),
				zap.Int64("chat_id", row.ChatID),
				zap.Int64("user_id", row.UserID),
				zap.Error(err))
		}

		if err := e.actions.MarkCompleted(ctx, row.ID); err != nil {
			e.logger.Error("mark action completed", zap.Int64("action_id", row.ID), zap.Error(err))
		}
	}
}

func (e *Executor) dispatch(ctx context.Context, row model.ScheduledAction) error {
	action, err := row.Decode()
	if err != nil {
		return err
	}

	switch a := action.(type) {
	case model.UnbanAction:
		return e.tg.Unban(ctx, a.ChatID, a.UserID)
	case model.UnmuteAction:
		return e.tg.RestrictSend(ctx, a.ChatID, a.UserID, true, 0)
	case model.CaptchaKickAction:
		return e.captchaKick(ctx, a)
	case model.AntiraidDisableAction:
		e.logger.Info("raid mode window elapsed, disabling", zap.Int64("chat_id", a.ChatID))
		return e.chats.SetRaidMode(ctx, a.ChatID, false, nil)
	default:
		return nil
	}
}

// captchaKick removes a user whose challenge is still outstanding. An
// absent challenge record means the user already solved it, so the kick
// quietly stands down.
func (e *Executor) captchaKick(ctx context.Context, a model.CaptchaKickAction) error {
	ch, found, err := e.challenges.Find(ctx, a.ChatID, a.UserID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := e.tg.Ban(ctx, a.ChatID, a.UserID, 0); err != nil {
		return err
	}
	if err := e.tg.Unban(ctx, a.ChatID, a.UserID); err != nil {
		return err
	}

	if ch.MessageID != 0 {
		if err := e.tg.DeleteMessage(ctx, a.ChatID, ch.MessageID); err != nil {
			e.logger.Debug("delete captcha message", zap.Int64("chat_id", a.ChatID), zap.Error(err))
		}
	}

	return e.challenges.Delete(ctx, a.ChatID, a.UserID)
}
