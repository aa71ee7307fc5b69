package botapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"groupwarden/internal/config"
	"groupwarden/internal/domain/model"
	"groupwarden/internal/infra/telegram"
	"groupwarden/internal/jobs/scheduler"
	pgrepo "groupwarden/internal/repo/postgres"
	redrepo "groupwarden/internal/repo/redis"
	antiraidsvc "groupwarden/internal/services/antiraid"
	captchasvc "groupwarden/internal/services/captcha"
	restrictsvc "groupwarden/internal/services/restrictions"
	windowsvc "groupwarden/internal/services/windows"
)

// ChatDefaults merges the configured moderation defaults over the built-in
// per-chat baseline. Zero config values leave the baseline untouched.
func ChatDefaults(d config.DefaultsConfig) model.ChatSettings {
	st := model.DefaultChatSettings(0)
	if d.FloodLimit > 0 {
		st.FloodLimit = d.FloodLimit
	}
	if s := int(d.FloodTimer / time.Second); s > 0 {
		st.FloodTimer = s
	}
	if s := int(d.CaptchaKickTime / time.Second); s > 0 {
		st.CaptchaKickTime = s
	}
	if s := int(d.RaidTime / time.Second); s > 0 {
		st.RaidTime = s
	}
	return st
}

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	bot       *telegram.Bot
	postgres  *pgxpool.Pool
	redis     *goredis.Client
	executor  *scheduler.Executor
	opsServer *http.Server
	handler   *Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}
	if err := pgrepo.Migrate(cfg.Postgres.DSN, cfg.Postgres.MigrationsDir); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	bot, err := telegram.NewBot(cfg.Bot.Token, log)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	actionsRepo := pgrepo.NewActionsRepo(pool)
	captchaRepo := pgrepo.NewCaptchaRepo(pool)
	chatsRepo := pgrepo.NewChatsRepo(pool, ChatDefaults(cfg.Defaults))
	approvalsRepo := pgrepo.NewApprovalsRepo(pool)
	windowRepo := redrepo.NewWindowRepo(redisClient)

	detector := windowsvc.NewDetector(windowRepo, log)
	captchaService := captchasvc.NewService(captchaRepo, actionsRepo, bot, log)
	restrictionService := restrictsvc.NewService(bot, actionsRepo, log)
	antiraidService := antiraidsvc.NewService(chatsRepo, actionsRepo, detector, bot, log)

	executor := scheduler.NewExecutor(
		actionsRepo,
		captchaRepo,
		chatsRepo,
		bot,
		cfg.Bot.SchedulerInterval,
		cfg.Bot.SchedulerBatch,
		log,
	)

	handler := NewHandler(HandlerDeps{
		Bot:          bot,
		Chats:        chatsRepo,
		Approvals:    approvalsRepo,
		Detector:     detector,
		Captcha:      captchaService,
		Restrictions: restrictionService,
		Antiraid:     antiraidService,
		Logger:       log,
	})

	opsServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      NewOpsRouter(pool, redisClient, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:       cfg,
		logger:    log,
		bot:       bot,
		postgres:  pool,
		redis:     redisClient,
		executor:  executor,
		opsServer: opsServer,
		handler:   handler,
	}, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.executor.Start(ctx)
	defer a.executor.Stop()

	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("ops server started", zap.String("addr", a.cfg.HTTP.Addr))
		if err := a.opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	go func() {
		a.logger.Info("bot polling started", zap.Int64("bot_id", a.bot.BotID()))
		errCh <- a.bot.Listen(ctx, a.handler.Handlers())
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.opsServer.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}
