package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitwiser-pay/internal/auth"
	"github.com/mmynk/splitwiser-pay/internal/config"
	"github.com/mmynk/splitwiser-pay/internal/middleware"
	"github.com/mmynk/splitwiser-pay/internal/orderref"
	"github.com/mmynk/splitwiser-pay/internal/processor"
	"github.com/mmynk/splitwiser-pay/internal/reconcile"
	"github.com/mmynk/splitwiser-pay/internal/service"
	"github.com/mmynk/splitwiser-pay/internal/signature"
	"github.com/mmynk/splitwiser-pay/internal/storage"
	"github.com/mmynk/splitwiser-pay/internal/storage/postgres"
	"github.com/mmynk/splitwiser-pay/internal/storage/sqlite"
	"github.com/mmynk/splitwiser-pay/internal/webhook"
	"github.com/mmynk/splitwiser-pay/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Webhook ingestion
	verifier := signature.NewVerifier(cfg.WebhookSecret, cfg.WebhookStrictSignature)
	if !verifier.Enforcing() {
		slog.Warn("Webhook signature verification is DISABLED; any caller can mark members paid",
			"path", cfg.WebhookPath)
	}
	engine := reconcile.NewEngine(store, reconcile.Options{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		MaxBackoff:  cfg.MaxBackoff,
		PaidBy:      cfg.ProcessorName,
		Metrics:     reconcile.NewMetrics(reg),
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.WebhookPath, webhook.NewHandler(verifier, engine, reg))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Payment RPC
	if cfg.JWTSecret != "" {
		jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
		interceptors := connect.WithInterceptors(
			middleware.RequireAuth(jwtManager),
			middleware.LoggingInterceptor(),
		)
		proc := processor.NewClient(processor.Config{
			BaseURL:    cfg.ProcessorAPIBase,
			AppID:      cfg.ProcessorAppID,
			Secret:     cfg.ProcessorSecret,
			APIVersion: cfg.ProcessorAPIVersion,
			Timeout:    cfg.ProcessorTimeout,
		})
		svc := service.NewPaymentService(store, orderref.NewCodec(), proc, cfg.NotifyURL())
		paymentPath, paymentHandler := service.NewPaymentServiceHandler(svc, interceptors)
		mux.Handle(paymentPath, paymentHandler)
		slog.Info("Payment service enabled", "path", paymentPath, "notify_url", cfg.NotifyURL())
	} else {
		slog.Warn("JWT_SECRET not set; payment RPC service disabled")
	}

	if cfg.StaticPath != "" {
		if err := serveStatic(mux, cfg.StaticPath); err != nil {
			return err
		}
	}

	// Add logging and CORS middleware
	loggedHandler := middleware.Logging(middleware.CORS(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	h2cHandler := h2c.NewHandler(loggedHandler, &http2.Server{})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", addr, "webhook", cfg.WebhookPath, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", "postgres")
		return store, nil
	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", "sqlite", "database", cfg.DBPath)
		return store, nil
	}
}

// serveStatic serves files from dir for all paths not claimed by the API.
func serveStatic(mux *http.ServeMux, dir string) error {
	staticDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve static path: %w", err)
	}
	slog.Info("Serving static files", "path", staticDir)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/"+service.PaymentServiceName) {
			http.NotFound(w, r)
			return
		}

		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(urlPath))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}

		http.ServeFile(w, r, filePath)
	})
	return nil
}
