package botapp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewOpsRouter builds the operational HTTP surface. It carries nothing
// user-facing, just liveness for the process and its backing stores.
func NewOpsRouter(pool *pgxpool.Pool, redisClient *goredis.Client, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		if pool == nil {
			http.Error(w, `{"status":"degraded","postgres":"down"}`, http.StatusServiceUnavailable)
			return
		}
		if err := pool.Ping(ctx); err != nil {
			log.Warn("healthz postgres ping", zap.Error(err))
			http.Error(w, `{"status":"degraded","postgres":"down"}`, http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("healthz redis ping", zap.Error(err))
			http.Error(w, `{"status":"degraded","redis":"down"}`, http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
