package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lowc1012/tiered-rate-limiter/internal/config"
	"github.com/lowc1012/tiered-rate-limiter/internal/log"
	"github.com/lowc1012/tiered-rate-limiter/internal/metrics"
	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
)

func HelloHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Hello, World!"))
}

func healthHandler(client redis.Cmdable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := client.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}

func tierExtractor(cfg *config.Config) utils.Extractor {
	header := utils.NewHTTPHeadersExtractor(cfg.TierHeader)
	if cfg.DefaultTier == "" {
		return header
	}
	return utils.NewFallbackExtractor(header, utils.NewStaticExtractor(cfg.DefaultTier))
}

func newMux(cfg *config.Config, client redis.Cmdable, limiter *ratelimiter.RateLimiter, m *metrics.Metrics) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/v1/hello", HelloHandler)

	// only the API routes are rate limited
	limited := ratelimiter.NewHTTPRateLimiterHandler(api, &ratelimiter.Config{
		Zone:     utils.NewStaticExtractor(cfg.Zone),
		Key:      utils.NewHTTPHeadersExtractor(cfg.KeyHeader),
		Tier:     tierExtractor(cfg),
		Limiter:  limiter,
		Observer: m,
		FailOpen: cfg.FailOpen,
		Logger:   log.Logger().Named("http"),
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", limited)
	mux.Handle("/healthz", healthHandler(client))
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/usage", ratelimiter.NewUsageHandler(limiter, log.Logger().Named("usage")))
	return mux
}

func main() {
	// until Init runs, startup failures go to stderr
	log.Set(log.NewBootstrap(zapcore.Lock(os.Stderr)))
	os.Exit(exitCode(run(os.Args[1:])))
}

// exitCode logs err through the current logger and maps it to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	log.Logger().Error("Server failed", zap.Error(err))
	log.Sync()
	return 1
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// flags override the environment
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to listen on")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "counter key prefix")
	fs.BoolVar(&cfg.TrackDailyUsage, "track-daily-usage", cfg.TrackDailyUsage, "count every call against its day counter")
	fs.BoolVar(&cfg.FailOpen, "fail-open", cfg.FailOpen, "let requests through when redis is unavailable")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := log.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	limiter, err := ratelimiter.NewRateLimiter(redisClient, ratelimiter.Options{
		Tiers:           cfg.Tiers,
		Prefix:          cfg.Prefix,
		Clock:           cfg.Clock,
		TrackDailyUsage: cfg.TrackDailyUsage,
		MaxUsageDays:    cfg.MaxUsageDays,
		Logger:          log.Logger().Named("ratelimiter"),
	})
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(cfg, redisClient, limiter, metrics.New()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Logger().Info("Run a server",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("tiers", len(cfg.Tiers)),
			zap.Stringer("clock", cfg.Clock))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to serve handler: %w", err)
	case <-ctx.Done():
	}

	log.Logger().Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
