package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/astrade-api/internal/account"
	"github.com/ksred/astrade-api/internal/auth"
	"github.com/ksred/astrade-api/internal/config"
	"github.com/ksred/astrade-api/internal/database"
	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/markets"
	"github.com/ksred/astrade-api/internal/rewards"
	"github.com/ksred/astrade-api/internal/stark"
	"github.com/ksred/astrade-api/internal/stream"
	"github.com/ksred/astrade-api/internal/trading"
	"github.com/ksred/astrade-api/internal/users"
	"github.com/ksred/astrade-api/pkg/middleware"
	"github.com/ksred/astrade-api/pkg/response"
)

// app holds the long-lived pieces main has to start and stop
type app struct {
	router   *gin.Engine
	exchange *exchange.Client
	markets  *markets.Cache
	limiter  *middleware.RateLimiter
	streams  *stream.Manager
	sweeper  *trading.Sweeper
}

func newApp(ctx context.Context, cfg *config.Config, db *gorm.DB) (*app, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rewardTable := rewards.DefaultRewardTable
	if cfg.Rewards.File != "" {
		table, err := rewards.LoadRewardFile(cfg.Rewards.File)
		if err != nil {
			return nil, fmt.Errorf("reward table: %w", err)
		}
		rewardTable = table
	}

	client := exchange.NewClient(exchange.NewBackend(cfg.Exchange))

	starkService := stark.NewService(cfg.Stark)
	userService := users.NewService(db, stark.NewKeyCipher(cfg.Stark.EncryptionKey))
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, userService)
	rewardService := rewards.NewService(db, rewardTable)
	tradingService := trading.NewService(db, client, stark.NewOrderSigner(starkService, userService), rewardService)
	accountService := account.NewService(client)
	marketCache := markets.NewCache(client)

	a := &app{
		router:   gin.New(),
		exchange: client,
		markets:  marketCache,
		limiter:  middleware.NewRateLimiter(middleware.DefaultRateRules),
		streams:  stream.NewManager(ctx, client, cfg.Stream.PollInterval, stream.NewOriginChecker(cfg.Server.AllowedOrigins)),
		sweeper:  trading.NewSweeper(tradingService.GetDB(), time.Hour),
	}

	metrics := middleware.NewMetrics()

	a.router.Use(
		gin.Recovery(),
		corsMiddleware(cfg.Server.AllowedOrigins),
		middleware.RequestLogger(),
		metrics.Middleware(),
		a.limiter.Middleware(),
	)

	requireUser := middleware.Auth(authService, userService, cfg.Auth.AllowHeaderAuth)

	a.router.GET("/health", healthHandler(db, client, starkService, marketCache))
	a.router.GET("/metrics", metrics.Handler())

	v1 := a.router.Group("/api/v1")
	{
		v1.POST("/auth/token", auth.NewGinHandlers(authService).GenerateTokenHandler())

		userHandlers := users.NewGinHandlers(userService)
		v1.POST("/users", userHandlers.CreateUserHandler())
		v1.GET("/users/:user_id", userHandlers.GetUserHandler())

		starkHandlers := stark.NewGinHandlers(starkService)
		v1.GET("/stark/account", starkHandlers.AccountHandler())
		v1.GET("/stark/health", starkHandlers.HealthHandler())

		markets.NewGinHandlers(client, marketCache).Register(v1.Group("/markets"))

		v1.GET("/stream/prices/:symbol", a.streams.ServeWS())
		v1.GET("/stream/status", a.streams.StatusHandler())

		account.NewGinHandlers(accountService, client).Register(v1.Group("/account", requireUser))
		trading.NewGinHandlers(tradingService).Register(v1.Group("/orders", requireUser))
		rewards.NewGinHandlers(rewardService).Register(v1.Group("/rewards", requireUser))
	}

	return a, nil
}

// close stops background work; the context passed to newApp must already be done
func (a *app) close() {
	a.markets.Stop()
	a.streams.Wait()
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.UserIDHeader, "Idempotency-Key")
	cfg.ExposeHeaders = []string{"Retry-After"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}

func healthHandler(db *gorm.DB, client *exchange.Client, starkService *stark.Service, cache *markets.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		dbStatus := "connected"

		sqlDB, err := db.DB()
		if err == nil {
			err = database.HealthCheck(c.Request.Context(), sqlDB)
		}
		if err != nil {
			status = "degraded"
			dbStatus = err.Error()
		}

		body := gin.H{
			"status":        status,
			"database":      dbStatus,
			"exchange_mode": client.Mode(),
			"stark":         starkService.Health(),
		}
		if fetched := cache.FetchedAt(); !fetched.IsZero() {
			body["markets_refreshed_at"] = fetched.UTC().Format(time.RFC3339)
		}

		if status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, response.Response{Success: false, Data: body})
			return
		}
		response.OK(c, body)
	}
}
