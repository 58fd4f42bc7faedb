package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/avrahamavi/docuquery/config"
	"github.com/avrahamavi/docuquery/internal/cache"
	"github.com/avrahamavi/docuquery/internal/embedding"
	"github.com/avrahamavi/docuquery/internal/qa"
	"github.com/avrahamavi/docuquery/internal/sharedchat"
	"github.com/avrahamavi/docuquery/internal/store"
	"github.com/avrahamavi/docuquery/provider"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := cfg.Embedding.Validate(); err != nil {
		return err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(cfg.Server.AllowOrigins, ","),
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Initialize shared dependencies (top-level DI)
	ctx := context.Background()

	st, err := store.New(ctx, cfg.Storage.Postgres.DSN(), cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	encoder := embedding.NewHTTPEncoder(cfg.Embedding, nil)
	// Warm the embedding backend without blocking startup; the first request
	// falls back to the same guard if this has not finished yet.
	go encoder.Warm(ctx)

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	var answerCache cache.AnswerCache
	if cfg.Storage.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		answerCache = cache.NewRedisCache(rdb, cfg.Storage.Redis.TTL)
	}

	chats, err := sharedchat.NewStore(cfg.Server.SharedChats)
	if err != nil {
		return err
	}

	svc := qa.New(encoder, st, llm, answerCache, cfg.Retrieval, nil)

	api := e.Group("/api")
	(&ChatHandler{Service: svc}).Register(api)
	(&ShareHandler{Chats: chats}).Register(api)

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	admin := api.Group("/admin")
	admin.Use(authMiddleware([]byte(cfg.Server.JWTSecret)))
	(&IngestHandler{Encoder: encoder, Store: st}).Register(admin)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8000"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
