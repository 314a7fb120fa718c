package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/repository"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	productRepo, cartRepo, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var redisClient *redis.Client
	var cartCache cache.CartCache
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", "addr", cfg.Redis.Addr, "error", err)
		}
		log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)
		cartCache = cache.NewRedisCache(redisClient, cfg.Redis.CartTTL)
	}

	g, gctx := errgroup.WithContext(ctx)

	hub := notify.NewHub(log)
	publisher := setupNotify(gctx, g, cfg, hub, redisClient, log)

	products := catalog.NewService(productRepo, publisher, log, catalog.Settings{
		BroadcastLimit: cfg.Notify.BroadcastLimit,
	})
	carts := cart.NewService(cartRepo, products, cartCache, log)

	router := h.NewRouter(
		h.NewProductHandler(products, cfg.RequestTimeout, log),
		h.NewCartHandler(carts, cfg.RequestTimeout, log),
		h.NewEventsHandler(hub, log),
		h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		log,
	)

	// No WriteTimeout: the event stream stays open for as long as the client
	// listens. Request/response routes are bounded by the router timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		log.Info("storefront starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver, "notify", cfg.Notify.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		return
	}
	log.Info("server exited")
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (catalog.ProductRepository, cart.Repository, func()) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryProductStore(), repository.NewMemoryCartStore(), func() {}
	case config.StoreMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatal("failed to connect to MongoDB", "error", err)
		}
		log.Info("connected to MongoDB", "uri", cfg.Mongo.URI, "database", cfg.Mongo.Database)

		products := repository.NewProductRepository(db)
		carts := repository.NewCartRepository(db)
		if err := repository.EnsureIndexes(ctx, products, carts); err != nil {
			log.Fatal("failed to create indexes", "error", err)
		}
		return products, carts, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(disconnectCtx)
		}
	default:
		log.Fatal("unknown store driver", "driver", cfg.StoreDriver)
		return nil, nil, nil
	}
}

// setupNotify picks where catalog events go. With a remote backend every
// instance publishes remotely and feeds its own hub from the consumer, so
// local clients see each event exactly once.
func setupNotify(ctx context.Context, g *errgroup.Group, cfg *config.Config, hub *notify.Hub, rdb *redis.Client, log *logger.Logger) notify.Publisher {
	switch cfg.Notify.Backend {
	case config.NotifyLocal:
		return hub
	case config.NotifyRedis:
		if rdb == nil {
			log.Fatal("redis notify backend requires REDIS_ADDR")
		}
		bus := notify.NewRedisBus(rdb, cfg.Notify.RedisChannel, log)
		if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
			log.Fatal("failed to start redis forwarder", "error", err)
		}
		return notify.Fanout{notify.NewBreaker("redis-bus", bus, log)}
	case config.NotifyKafka:
		if len(cfg.Notify.KafkaBrokers) == 0 {
			log.Fatal("kafka notify backend requires KAFKA_BROKERS")
		}
		publisher := notify.NewKafkaPublisher(cfg.Notify.KafkaTopic, cfg.Notify.KafkaBrokers...)
		consumer := notify.NewKafkaConsumer(cfg.Notify.KafkaTopic, "storefront-"+uuid.NewString(), log, cfg.Notify.KafkaBrokers...)
		g.Go(func() error {
			consumer.Run(ctx, hub.Deliver)
			_ = publisher.Close()
			return consumer.Close()
		})
		return notify.Fanout{notify.NewBreaker("kafka", publisher, log)}
	default:
		log.Fatal("unknown notify backend", "backend", cfg.Notify.Backend)
		return nil
	}
}
