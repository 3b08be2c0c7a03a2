package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mstgnz/monopay/handler"
	"github.com/mstgnz/monopay/infra/cache"
	"github.com/mstgnz/monopay/infra/config"
	"github.com/mstgnz/monopay/infra/conn"
	"github.com/mstgnz/monopay/infra/logger"
	"github.com/mstgnz/monopay/infra/middle"
	"github.com/mstgnz/monopay/infra/opensearch"
	"github.com/mstgnz/monopay/infra/postgres"
	"github.com/mstgnz/monopay/infra/validate"
	"github.com/mstgnz/monopay/provider"
	"github.com/mstgnz/monopay/provider/monopay"
	"github.com/mstgnz/monopay/router"
)

const cacheSweepInterval = 10 * time.Minute

func main() {
	// .env is optional, real deployments use the environment
	_ = godotenv.Load(".env")

	cfg := config.GetAppConfig()
	validate.CustomValidate()

	osClient, err := opensearch.NewClient(cfg)
	if err != nil {
		logger.Warn("OpenSearch client unavailable, continuing without audit log", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}
	var events *opensearch.Logger
	if osClient.IsEnabled() {
		events = opensearch.NewLogger(osClient)
		logger.InitGlobalLogger(events)
	} else {
		logger.InitGlobalLogger(nil)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := config.NewSQLiteStorage(cfg.SQLitePath, config.NewSecretCipher(cfg.EncryptKey))
	if err != nil {
		logger.Fatal("Failed to open settings storage", err)
	}
	defer storage.Close()

	settings, err := config.LoadSettings(storage)
	if err != nil {
		logger.Fatal("Failed to load monopay settings", err)
	}

	db, err := conn.ConnectDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}
	defer db.CloseDatabase()

	repo := postgres.NewPaymentRequestRepository(db.DB)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate payment requests", err)
	}

	invoiceCache, stopCache, err := newInvoiceCache(ctx, cfg, storage)
	if err != nil {
		logger.Fatal("Failed to create invoice cache", err)
	}
	defer stopCache()

	gateway, err := provider.CreateGateway("monopay", provider.GatewayConfig{
		BaseURL: config.GetEnv("MONOPAY_API_URL", ""),
		Token:   settings.Token,
	})
	if err != nil {
		logger.Fatal("Failed to create monopay gateway", err)
	}

	svcCfg := provider.ServiceConfig{
		Gateway:     gateway,
		Verifier:    monopay.NewVerifier(gateway, cfg.PubKeyTTL),
		Repository:  repo,
		Cache:       invoiceCache,
		URLs:        provider.StaticURLBuilder(cfg.AppURL),
		Overrides:   settings,
		Diagnostics: cfg.WebhookDiagnostics,
	}
	if events != nil {
		svcCfg.Events = events
	}
	paymentService := provider.NewPaymentService(svcCfg)

	rateLimiter := middle.NewRateLimiter(middle.RateLimitConfig{
		PerMinute:      cfg.RateLimitPerMinute,
		StrictPerSec:   cfg.WebhookRatePerSec,
		StrictBurst:    cfg.WebhookBurst,
		StrictPrefixes: []string{provider.CallbackPath},
		TrustedProxies: cfg.TrustedProxies,
	})
	defer rateLimiter.Stop()

	var search handler.SearchPinger
	if osClient != nil {
		search = osClient
	}

	v := config.Validator()
	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: router.New(router.Options{
			APIKey:      cfg.APIKey,
			RateLimiter: rateLimiter,
			Health:      handler.NewHealthHandler(db.DB, storage.DB(), search, paymentService),
			Invoices:    handler.NewInvoiceHandler(paymentService, v),
			Webhooks:    handler.NewWebhookHandler(paymentService),
			Settings:    handler.NewSettingsHandler(settings, storage, v),
		}),
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{
		Fields: map[string]any{
			"port":         cfg.Port,
			"callback_url": cfg.AppURL + provider.CallbackPath,
			"cache_driver": cfg.CacheDriver,
		},
	})

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// newInvoiceCache picks the invoice mapping store by CACHE_DRIVER
func newInvoiceCache(ctx context.Context, cfg *config.AppConfig, storage *config.SQLiteStorage) (provider.InvoiceCache, func(), error) {
	switch cfg.CacheDriver {
	case "sqlite":
		c, err := cache.NewSQLiteInvoiceCache(ctx, storage.DB(), cfg.InvoiceTTL)
		if err != nil {
			return nil, nil, err
		}
		sweepCtx, cancel := context.WithCancel(context.Background())
		go sweepSQLiteCache(sweepCtx, c)
		return c, cancel, nil
	case "memory", "":
		c := provider.NewMemoryInvoiceCache(cfg.InvoiceTTL)
		c.StartCleanup(cacheSweepInterval)
		return c, c.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
	}
}

func sweepSQLiteCache(ctx context.Context, c *cache.SQLiteInvoiceCache) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Cleanup(ctx)
			if err != nil {
				logger.Warn("Invoice cache sweep failed", logger.LogContext{
					Fields: map[string]any{"error": err.Error()},
				})
				continue
			}
			if n > 0 {
				logger.Debug("Expired invoice mappings removed", logger.LogContext{
					Fields: map[string]any{"removed": n},
				})
			}
		}
	}
}
