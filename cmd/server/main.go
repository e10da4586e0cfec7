package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listinginbox/backend/internal/config"
	"github.com/listinginbox/backend/internal/handler"
	"github.com/listinginbox/backend/internal/logging"
	"github.com/listinginbox/backend/internal/notify"
	"github.com/listinginbox/backend/internal/repository"
	"github.com/listinginbox/backend/internal/service"
	"github.com/listinginbox/backend/internal/telemetry"
	"github.com/listinginbox/backend/pkg/auth"
)

// stores groups the repositories for the configured driver.
type stores struct {
	db       repository.DB
	messages repository.MessageRepository
	profiles repository.ProfileRepository
	listings repository.ListingRepository
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.DBDriver == config.DriverSqlite {
		db, err := repository.OpenSqlite(ctx, cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			db:       db,
			messages: repository.NewSqliteMessageRepository(db.DB),
			profiles: repository.NewSqliteProfileRepository(db.DB),
			listings: repository.NewSqliteListingRepository(db.DB),
			close:    func() { _ = db.Close() },
		}, nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		db:       pool,
		messages: repository.NewPgMessageRepository(pool),
		profiles: repository.NewPgProfileRepository(pool),
		listings: repository.NewPgListingRepository(pool),
		close:    pool.Close,
	}, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Env)

	ctx := context.Background()

	var spanOut io.Writer
	if cfg.OtelStdout {
		spanOut = os.Stdout
	}
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Env, spanOut)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	var notifier service.Notifier = notify.LogNotifier{}
	if len(cfg.KafkaBrokers) > 0 {
		kn, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			slog.Error("failed to connect to kafka", "brokers", cfg.KafkaBrokers, "error", err)
			os.Exit(1)
		}
		defer kn.Close()
		notifier = kn
	}

	messageService := service.NewMessageService(st.messages, st.listings, st.profiles, notifier, service.Options{
		CallTimeout:      cfg.StoreCallTimeout,
		MaxRetries:       cfg.StoreMaxRetries,
		ProfileBatchSize: cfg.ProfileBatchSize,
	})

	h := handler.New(st.db, cfg.FrontendURL)
	messageHandler := handler.NewMessageHandler(messageService, st.listings)
	sessionSecretBytes := auth.SessionSecretBytes(cfg.SessionSecret)

	limiter := handler.NewRateLimiter(cfg.RateLimitPerMinute)
	stopLimiter := make(chan struct{})
	go limiter.Run(stopLimiter)
	defer close(stopLimiter)

	// 認証必要エンドポイント
	wrapAuth := func(next http.HandlerFunc) http.Handler {
		if cfg.AuthRequired {
			return auth.RequireAuth(sessionSecretBytes)(next)
		}
		return auth.DevAuth(next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/listings/{id}/contact", limiter.Middleware(wrapAuth(messageHandler.Contact)))
	mux.Handle("GET /api/me/messages/sent", wrapAuth(messageHandler.Sent))
	mux.Handle("GET /api/me/messages/received", wrapAuth(messageHandler.Received))
	mux.Handle("GET /api/me/messages/archived", wrapAuth(messageHandler.Archived))
	mux.Handle("GET /api/me/messages/unread-count", wrapAuth(messageHandler.UnreadCount))
	mux.Handle("GET /api/me/conversations", wrapAuth(messageHandler.Conversations))
	mux.Handle("GET /api/threads/{key}", wrapAuth(messageHandler.Thread))
	mux.Handle("POST /api/messages/{id}/reply", limiter.Middleware(wrapAuth(messageHandler.Reply)))
	mux.Handle("POST /api/messages/{id}/read", wrapAuth(messageHandler.MarkRead))
	mux.Handle("DELETE /api/messages/{id}/read", wrapAuth(messageHandler.MarkUnread))
	mux.Handle("POST /api/messages/{id}/archive", wrapAuth(messageHandler.Archive))
	mux.Handle("DELETE /api/messages/{id}/archive", wrapAuth(messageHandler.Unarchive))
	mux.Handle("DELETE /api/messages/{id}", wrapAuth(messageHandler.Delete))

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.RequestLogger(handler.SecurityHeaders(h.CORS(mux))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "env", cfg.Env, "driver", cfg.DBDriver, "auth_required", cfg.AuthRequired)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown error", "error", err)
	}
}
