package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/config"
	"github.com/productbazar/api/internal/database"
	"github.com/productbazar/api/internal/event"
	"github.com/productbazar/api/internal/handler"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/provider"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/router"
	"github.com/productbazar/api/internal/service"
	"github.com/productbazar/api/internal/service/recommend"
	"github.com/productbazar/api/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg)

	db, err := database.Open(database.Options{
		User:        cfg.DBUser,
		Pass:        cfg.DBPass,
		Host:        cfg.DBHost,
		Port:        cfg.DBPort,
		Name:        cfg.DBName,
		MaxOpen:     cfg.DBMaxOpen,
		MaxIdle:     cfg.DBMaxIdle,
		MaxLifetime: time.Duration(cfg.DBConnLifeMin) * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mysql connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		// The OTP provider and refresh flow need Redis; there is no
		// degraded mode for auth.
		log.Fatal().Msg("redis unavailable")
	}

	store := cache.NewStore(rdb, log, cfg.DisableCache)

	pool := worker.New(4, 256, 10*time.Second, log)
	pool.Start()
	defer pool.Stop()
	store.SetWarmer(pool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Events go to RabbitMQ when configured; the in-process bus always
	// runs so websocket relays and tests see the same stream.
	local := event.NewMemoryBus()
	var bus event.Bus = local
	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		if amqpBus, err := event.NewAMQPBus(url, log); err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, falling back to in-process events")
		} else {
			bus = amqpBus
			defer amqpBus.Close()
			go event.StartRelay(ctx, url, local, log)
		}
	}

	users := repository.NewUserRepo(db)
	products := repository.NewProductRepo(db)
	upvotes := repository.NewUpvoteRepo(db)
	bookmarks := repository.NewBookmarkRepo(db)
	comments := repository.NewCommentRepo(db)
	views := repository.NewViewRepo(db)
	recs := repository.NewRecommendationRepo(db)
	tokens := repository.NewTokenRepo(db)
	searches := repository.NewSearchHistoryRepo(db)
	jobs := repository.NewJobRepo(db)
	projects := repository.NewProjectRepo(db)

	engine := recommend.New(recommend.DefaultConfig(), products, upvotes, bookmarks, views, users, recs, store, log)

	otp := provider.NewRedisOTP(rdb, log)
	mail := provider.NewLogMailer(log)

	auth := service.NewAuthService(&cfg, users, tokens, otp, mail, rdb, log)
	interactions := service.NewInteractionService(products, upvotes, bookmarks, comments, store, bus, pool, engine, log)
	viewSvc := service.NewViewService(products, views, store, pool, engine, log)

	go auth.RunDeletionSweeper(ctx, time.Hour)

	rl := config.LoadRateLimitConfig()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Cfg:          &cfg,
		RateLimit:    rl,
		Store:        store,
		Log:          log,
		Health:       handler.NewHealthHandler(db, rdb),
		Auth:         handler.NewAuthHandler(&cfg, auth),
		Products:     handler.NewProductHandler(products),
		Interactions: handler.NewInteractionHandler(interactions),
		Views:        handler.NewViewHandler(viewSvc, products),
		Bookmarks:    handler.NewBookmarkHandler(bookmarks),
		Feed:         handler.NewFeedHandler(engine),
		Listings:     handler.NewListingHandler(jobs, projects, searches),
		Limiter:      middleware.TokenBucket(rl, rdb),
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Info().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if !cfg.IsProduction() {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "productbazar-api").Logger()
	if !cfg.IsProduction() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log
}
