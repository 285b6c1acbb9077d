package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/logship/collector/internal/config"
	"github.com/telhawk-systems/logship/collector/internal/devicestats"
	"github.com/telhawk-systems/logship/collector/internal/dlq"
	"github.com/telhawk-systems/logship/collector/internal/handlers"
	"github.com/telhawk-systems/logship/collector/internal/ledger"
	"github.com/telhawk-systems/logship/collector/internal/notification"
	"github.com/telhawk-systems/logship/collector/internal/ratelimit"
	"github.com/telhawk-systems/logship/collector/internal/server"
	"github.com/telhawk-systems/logship/collector/internal/service"
	"github.com/telhawk-systems/logship/collector/internal/storage"
	"github.com/telhawk-systems/logship/common/devicetoken"
	"github.com/telhawk-systems/logship/common/logging"
	"github.com/telhawk-systems/logship/common/messaging"

	natsclient "github.com/telhawk-systems/logship/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	slog.Info("Starting collector",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	classifier, err := cfg.Classifier()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	readiness := make(map[string]handlers.ReadinessCheck)

	// NATS backs the object store, the DLQ and alert fan-out.
	var js *natsclient.JetStreamClient
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = cfg.NATS.Name
		natsCfg.Username = cfg.NATS.Username
		natsCfg.Password = cfg.NATS.Password
		natsCfg.Token = cfg.NATS.Token
		js, err = natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer js.Drain()
		slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
		readiness["nats"] = func(ctx context.Context) error {
			if status := messaging.CheckClientHealth(ctx, js); status.Error != "" {
				return errors.New(status.Error)
			}
			return nil
		}
	}

	store, err := newObjectStore(startCtx, cfg, js)
	if err != nil {
		log.Fatalf("Failed to initialize %s storage: %v", cfg.Storage.Backend, err)
	}
	slog.Info("Object storage ready",
		slog.String("backend", store.Backend()),
		slog.String("bucket", cfg.Storage.Bucket),
	)

	opts := service.Options{
		MaxLines:     cfg.Ingestion.MaxLines,
		AlertTimeout: cfg.Notification.Timeout,
	}

	if cfg.OpenSearch.Enabled {
		indexer, err := storage.NewSearchIndexer(storage.SearchConfig{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.OpenSearch.IndexPrefix,
			FlushBytes:    cfg.OpenSearch.FlushBytes,
			FlushInterval: cfg.OpenSearch.FlushInterval,
		})
		if err != nil {
			log.Fatalf("Failed to create OpenSearch client: %v", err)
		}
		if err := indexer.Initialize(startCtx); err != nil {
			slog.Warn("Failed to initialize OpenSearch, records may fail to index", logging.Error(err))
		}
		opts.Indexer = indexer
		slog.Info("Search indexing enabled", slog.String("url", cfg.OpenSearch.URL))
	}

	if cfg.Ledger.Enabled {
		if cfg.Ledger.MigrationsRun {
			version, err := ledger.Migrate(cfg.Ledger.DSN)
			if err != nil {
				log.Fatalf("Failed to migrate ledger database: %v", err)
			}
			slog.Info("Ledger schema up to date", slog.Uint64("version", uint64(version)))
		}
		pg, err := ledger.NewPostgresLedger(startCtx, cfg.Ledger.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to ledger database: %v", err)
		}
		defer pg.Close()
		opts.Ledger = pg
		if cfg.Ledger.SigningKey != "" {
			opts.Signer = ledger.NewSigner(cfg.Ledger.SigningKey)
		}
		readiness["ledger"] = pg.Ping
	}

	if cfg.DLQ.Enabled {
		switch cfg.DLQ.Backend {
		case "jetstream":
			q, err := dlq.NewJetStreamQueue(startCtx, js)
			if err != nil {
				log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
			}
			opts.DLQ = q
		case "file":
			q, err := dlq.NewQueue(cfg.DLQ.BasePath)
			if err != nil {
				log.Fatalf("Failed to initialize file DLQ: %v", err)
			}
			opts.DLQ = q
			slog.Warn("File DLQ does not support multiple collector instances")
		default:
			log.Fatalf("Unknown DLQ backend: %s (supported: jetstream, file)", cfg.DLQ.Backend)
		}
		slog.Info("Dead letter queue enabled", slog.String("backend", cfg.DLQ.Backend))
	} else {
		slog.Info("Dead letter queue disabled")
	}

	opts.Notifier = newNotifier(cfg, js, logger)

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		l, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		if err != nil {
			slog.Warn("Redis rate limiter unavailable, continuing without rate limiting", logging.Error(err))
		} else {
			limiter = l
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow),
			)
		}
	}
	defer limiter.Close()

	var verifier handlers.TokenVerifier
	if cfg.Auth.Secret != "" {
		v, err := devicetoken.NewVerifier(cfg.Auth.Secret)
		if err != nil {
			log.Fatalf("Invalid auth configuration: %v", err)
		}
		verifier = v
		slog.Info("Device token verification enabled")
	} else {
		slog.Warn("auth.secret not set, accepting unauthenticated batches")
	}

	ingestService := service.NewIngestService(classifier, store, opts)

	handler := handlers.NewIngestHandler(ingestService, limiter, verifier, cfg.Ingestion.MaxBodyBytes)
	for name, check := range readiness {
		handler.AddReadinessCheck(name, check)
	}

	if cfg.Redis.Enabled && cfg.Ingestion.DeviceStatsEnabled {
		stats, err := devicestats.NewClient(cfg.Redis.URL, instanceID())
		if err != nil {
			slog.Warn("Device stats unavailable", logging.Error(err))
		} else {
			defer stats.Close()
			recorder := devicestats.NewRecorder(stats, cfg.Ingestion.DeviceStatsInterval, logger)
			defer recorder.Stop()
			handler.SetDeviceStats(recorder, stats)
			handler.AddReadinessCheck("device_stats", stats.Ping)
			slog.Info("Device stats enabled", slog.Duration("flush_interval", cfg.Ingestion.DeviceStatsInterval))
		}
	}

	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Collector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	slog.Info("Server stopped")
}

// instanceID names this process in shared device stats.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "collector"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func newObjectStore(ctx context.Context, cfg *config.Config, js *natsclient.JetStreamClient) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			PathStyle: cfg.Storage.PathStyle,
		})
	case "nats":
		bucket, err := js.ObjectStore(ctx, cfg.Storage.Bucket, "logship batches")
		if err != nil {
			return nil, err
		}
		return storage.NewJetStreamStore(bucket), nil
	case "file":
		slog.Warn("File object storage is intended for development only",
			slog.String("path", cfg.Storage.BasePath))
		return storage.NewFileStore(cfg.Storage.BasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newNotifier fans alerts out to every configured sink. With none
// configured alerts still reach the log.
func newNotifier(cfg *config.Config, js *natsclient.JetStreamClient, logger *logging.Logger) notification.Channel {
	var channels []notification.Channel
	if cfg.Notification.SlackWebhookURL != "" {
		channels = append(channels, notification.NewSlackChannel(cfg.Notification.SlackWebhookURL, cfg.Notification.Timeout))
	}
	if cfg.Notification.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookChannel(cfg.Notification.WebhookURL, cfg.Notification.Timeout))
	}
	if js != nil && cfg.NATS.PublishAlerts {
		channels = append(channels, notification.NewNATSChannel(js))
	}
	if len(channels) == 0 {
		slog.Warn("No alert destination configured, alerts will only be logged")
		return notification.NewLogChannel(logger.Logger)
	}

	multi := notification.NewMultiChannel(channels...)
	slog.Info("Alert notification enabled", slog.Int("channels", multi.Len()))
	return multi
}
