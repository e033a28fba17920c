// Command server runs the BookSwap HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dhaarna97/BookSwap/internal/auth"
	"github.com/dhaarna97/BookSwap/internal/auth/otp"
	"github.com/dhaarna97/BookSwap/internal/config"
	"github.com/dhaarna97/BookSwap/internal/httpapi"
	"github.com/dhaarna97/BookSwap/internal/service/books"
	"github.com/dhaarna97/BookSwap/internal/service/users"
	"github.com/dhaarna97/BookSwap/internal/storage"
	"github.com/dhaarna97/BookSwap/internal/storage/memory"
	"github.com/dhaarna97/BookSwap/internal/storage/postgres"
	"github.com/dhaarna97/BookSwap/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New("server", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		userStore storage.UserStore
		bookStore storage.BookStore
		dbPinger  httpapi.Pinger
	)

	if cfg.Database.MemoryStore {
		log.Warn("running on the in-memory store; data will not survive restarts")
		mem := memory.New()
		userStore = mem
		bookStore = mem
	} else {
		db, err := postgres.Connect(cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to postgres")
		}
		defer db.Close()

		if err := postgres.Migrate(db); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}

		store := postgres.New(db)
		userStore = store
		bookStore = store
		dbPinger = db
	}

	var otpCache otp.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer client.Close()
		otpCache = otp.NewRedisCache(client)
		log.WithField("addr", cfg.Redis.Addr).Info("otp cache backed by redis")
	} else {
		mem := otp.NewMemoryCache()
		mem.Start(ctx, time.Minute)
		otpCache = mem
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userService := users.New(userStore, tokens, otpCache, logger.New("users", cfg.Log.Level, cfg.Log.Format))
	bookService := books.New(bookStore, userStore, logger.New("books", cfg.Log.Level, cfg.Log.Format))

	router := httpapi.NewRouter(httpapi.Config{
		Users:         userService,
		Books:         bookService,
		Tokens:        tokens,
		DB:            dbPinger,
		UploadDir:     cfg.Uploads.Dir,
		UploadBaseURL: cfg.Uploads.BaseURL,
		Logger:        logger.New("httpapi", cfg.Log.Level, cfg.Log.Format),
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
