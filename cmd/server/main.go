package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/config"
	"github.com/iliyamo/ppv-access/internal/database"
	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/handler"
	"github.com/iliyamo/ppv-access/internal/middleware"
	"github.com/iliyamo/ppv-access/internal/queue"
	"github.com/iliyamo/ppv-access/internal/repository"
	"github.com/iliyamo/ppv-access/internal/repository/memstore"
	"github.com/iliyamo/ppv-access/internal/router"
	"github.com/iliyamo/ppv-access/internal/service"
	"github.com/iliyamo/ppv-access/internal/utils"
)

// stores groups the persistence backends selected by STORE_DRIVER.
type stores struct {
	events    service.EventStore
	streams   service.StreamStore
	purchases service.PurchaseLedger
	sessions  service.SessionStore
	db        *sql.DB
}

func openStores(ctx context.Context, cfg config.Config, rdb *redis.Client, log *zap.Logger) (*stores, error) {
	var s stores
	var mem *memstore.Store
	switch cfg.StoreDriver {
	case "memory":
		mem = memstore.New()
		s.events, s.streams, s.purchases = mem, mem, mem
		log.Warn("using in-memory store; data is lost on restart")
		if cfg.MemorySeedPath == "" {
			log.Warn("MEMORY_SEED_PATH not set; the memory store has no events or purchases")
			break
		}
		events, purchases, err := mem.LoadFile(cfg.MemorySeedPath)
		if err != nil {
			return nil, err
		}
		log.Info("memory store seeded", zap.String("path", cfg.MemorySeedPath), zap.Int("events", events), zap.Int("purchases", purchases))
	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			log.Info("schema migrated")
		}
		s.db = db
		s.events = repository.NewEventRepo(db)
		s.streams = repository.NewStreamRepo(db)
		s.purchases = repository.NewPurchaseRepo(db)
	}

	switch {
	case rdb != nil:
		s.sessions = repository.NewRedisSessionStore(rdb, "ppv:")
	case mem != nil:
		s.sessions = mem
	default:
		log.Warn("redis unavailable; sessions are kept in process and not shared between instances")
		s.sessions = memstore.New()
	}
	return &s, nil
}

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.Load()
	log := utils.InitLogger(cfg.IsProduction(), cfg.LogLevel, cfg.LogFormat)
	defer utils.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher, err := utils.NewTokenHasher(cfg.TokenHashKey)
	if err != nil {
		log.Fatal("token hasher", zap.Error(err))
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	st, err := openStores(ctx, cfg, rdb, log)
	if err != nil {
		log.Fatal("open stores", zap.Error(err))
	}
	if st.db != nil {
		defer st.db.Close()
	}

	var pub service.Publisher = service.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		amqpPub := service.NewAMQPPublisher(cfg.RabbitMQURL, cfg.AuditBuffer, cfg.RabbitMQTimeout, log)
		defer amqpPub.Close()
		pub = amqpPub
	}

	var platform service.VideoPlatform
	if cfg.MuxTokenID != "" && cfg.MuxTokenSecret != "" {
		platform = service.NewMuxClient(cfg.MuxBaseURL, cfg.MuxTokenID, cfg.MuxTokenSecret, 10*time.Second)
	} else {
		log.Info("video platform not configured; new streams get no ingest credentials")
	}

	var geocoder geo.ReverseGeocoder
	if cfg.GeocoderURL != "" {
		geocoder = geo.NewNominatimGeocoder(cfg.GeocoderURL, "ppv-access/1.0", 3*time.Second)
	}

	sessionCfg := service.SessionConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		Liveness:          cfg.SessionLiveness,
		Retention:         cfg.SessionRetention,
	}
	sessions := service.NewSessionManager(st.sessions, hasher, sessionCfg, pub, log)
	bypass := service.NewBypassAuthority(st.events, hasher, pub, log)
	streams := service.NewStreamRegistry(st.events, st.streams, platform, log)
	access := service.NewOrchestrator(st.events, st.purchases, bypass, sessions, streams, cfg.DefaultRadiusKm, pub, log)

	if platform != nil {
		poller := service.NewStatusPoller(st.streams, platform, cfg.StatusPollEvery, cfg.StatusPollTimeout, cfg.StatusPollFanout, log)
		go poller.Run(ctx)
	}
	if cfg.AuditConsumer && cfg.RabbitMQURL != "" {
		consumer := queue.NewAuditConsumer(cfg.RabbitMQURL, cfg.AuditLogPath, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORS())
	e.Use(middleware.RequestLogger(log))

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	cacheCfg := config.LoadCacheConfig()
	cache := middleware.NewRedisCache(cacheCfg, rdb, log)
	var evict handler.EventCache
	if inv := middleware.NewCacheInvalidator(cacheCfg, rdb); inv != nil {
		evict = inv
	}

	router.RegisterRoutes(e)
	router.RegisterAccess(e, handler.NewAccessHandler(access, geocoder, log), limit)
	router.RegisterPublic(e, handler.NewPublicHandler(streams, log), cache)
	router.RegisterAdmin(e, handler.NewAdminHandler(streams, bypass, access, evict, log), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
