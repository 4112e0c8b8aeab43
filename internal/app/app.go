package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api/middleware"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/config"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/db"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/draftstore"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/observability"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/repository"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/service"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and rate refresh worker, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	cipher, err := newEnvelopeCipher(cfg.EnvelopeKey)
	if err != nil {
		return fmt.Errorf("init envelope cipher: %w", err)
	}

	reference := domain.Currency(cfg.ReferenceCurrency)
	if !reference.Valid() {
		return fmt.Errorf("unsupported reference currency %q", cfg.ReferenceCurrency)
	}
	minimum, err := decimal.NewFromString(cfg.MinimumAmountUSD)
	if err != nil {
		return fmt.Errorf("invalid MINIMUM_AMOUNT_USD: %w", err)
	}

	directory := gateway.NewHTTPBankDirectory(cfg.BankDirectoryURL, cipher)
	rateSource := gateway.NewHTTPRateSource(cfg.RateServiceURL, cipher)
	txGateway := gateway.NewHTTPTransactionGateway(cfg.TransactionServiceURL, cipher)
	uploader := gateway.NewHTTPUploader(cfg.UploadServiceURL)
	refresher := gateway.NewHTTPSessionRefresher(cfg.SessionServiceURL)

	store := draftstore.NewRedisStore(redisClient, cfg.DraftTTL)
	archive := repository.NewArchive(pool)

	engine := service.NewValidationEngine(service.NewStaticCountryDirectory(nil))
	amounts := service.NewAmountPolicy(reference, minimum)
	rates := service.NewRateProvider(rateSource, reference)
	resolver := service.NewResolver(directory)
	coordinator := service.NewCoordinator(txGateway, refresher, engine, amounts, rates, archive)
	pipeline := service.NewPipeline(store, resolver, rates, engine, amounts, coordinator, uploader)

	rateWorker := worker.NewRateWorker(rates).WithInterval(cfg.RateRefreshInterval)
	stopWorker := rateWorker.Run(ctx)
	logger.Info("rate worker started", zap.Duration("interval", cfg.RateRefreshInterval))

	router := api.NewRouter(cfg, logger, pool, redisClient, pipeline, archive)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping rate worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	pipeline.WaitForResolutions()
	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// newEnvelopeCipher builds the shared-key cipher for encrypted upstream
// envelopes. An empty key disables decryption and only plain envelopes are
// accepted.
func newEnvelopeCipher(encodedKey string) (gateway.Cipher, error) {
	if strings.TrimSpace(encodedKey) == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode envelope key: %w", err)
	}
	return gateway.NewAESGCMCipher(key)
}
