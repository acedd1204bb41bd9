package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/api/handler"
	"github.com/zapgestor/zapgestor/internal/api/middleware"
	"github.com/zapgestor/zapgestor/internal/app"
	"github.com/zapgestor/zapgestor/internal/config"
	"github.com/zapgestor/zapgestor/internal/gateway/evolution"
	"github.com/zapgestor/zapgestor/internal/ingest"
	"github.com/zapgestor/zapgestor/internal/logger"
	"github.com/zapgestor/zapgestor/internal/server"
	"github.com/zapgestor/zapgestor/internal/service/matcher"
	"github.com/zapgestor/zapgestor/internal/service/whatsapp"
	"github.com/zapgestor/zapgestor/internal/storage/factory"
)

// gatewayAdapter aproxima o cliente Evolution da interface que o serviço
// de mensagens espera.
type gatewayAdapter struct {
	client *evolution.Client
}

func (a *gatewayAdapter) SendText(ctx context.Context, instanceName, to, text string) (whatsapp.SendResult, error) {
	resp, err := a.client.SendText(ctx, instanceName, to, text)
	if err != nil {
		return whatsapp.SendResult{}, err
	}
	return whatsapp.SendResult{
		MessageID: resp.Key.ID,
		Status:    resp.Status,
	}, nil
}

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("iniciando aplicação",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
	)

	repos, err := factory.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	evoClient, err := evolution.New(cfg.Gateway, logger.Component(logr, "gateway"))
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	whatsappService := whatsapp.NewService(
		repos.Instance,
		repos.Contact,
		repos.Message,
		repos.Settings,
		repos.AutoReplyLog,
		repos.Client,
		&gatewayAdapter{client: evoClient},
		logger.Component(logr, "mensagens"),
		whatsapp.Options{
			Cooldown:           cfg.AutoReply.Cooldown,
			DefaultCountryCode: cfg.Phone.DefaultCountryCode,
			DefaultTimezone:    cfg.AutoReply.DefaultTimezone,
		},
	)

	matcherService := matcher.NewService(
		repos.Contact,
		repos.Client,
		logger.Component(logr, "matcher"),
		matcher.Config{
			DefaultCountryCode: cfg.Phone.DefaultCountryCode,
			BatchSize:          cfg.Matching.BatchSize,
			BatchDelay:         cfg.Matching.BatchDelay,
			MaxRetries:         cfg.Matching.MaxRetries,
		},
	)

	pool := ingest.NewPool(repos.IngestQueue, whatsappService, logger.Component(logr, "ingest"), cfg.Ingest.Workers)
	pool.Start(context.Background())
	logr.Info("ingest pool iniciada", zap.Int("workers", cfg.Ingest.Workers))

	router := server.NewRouter(server.Options{
		Env:             cfg.App.Env,
		WebhookHandler:  handler.NewWebhookHandler(repos.IngestQueue, logger.Component(logr, "webhook")),
		InstanceHandler: handler.NewInstanceHandler(repos.Instance, repos.Settings, evoClient, logger.Component(logr, "instancias")),
		MatchingHandler: handler.NewMatchingHandler(matcherService, repos.RedisClient, logger.Component(logr, "matching")),
		HealthHandler:   handler.NewHealthHandler(),
		IPRateLimit: middleware.IPRateLimitOption{
			Enabled:        cfg.IPRateLimit.Enabled,
			Requests:       cfg.IPRateLimit.Requests,
			WindowSeconds:  cfg.IPRateLimit.WindowSeconds,
			SkipPrivateIPs: cfg.IPRateLimit.SkipPrivateIPs,
			Limiter:        repos.RateLimiter,
			Logger:         logr,
		},
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(context.Background())
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		if err != nil {
			logr.Error("servidor finalizado com erro", zap.Error(err))
		} else {
			logr.Info("servidor finalizado normalmente")
		}
	}

	logr.Info("iniciando shutdown graceful")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool.Stop()

	if repos.RedisClient != nil {
		if err := repos.RedisClient.Close(); err != nil {
			logr.Warn("erro ao fechar conexão Redis", zap.Error(err))
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro ao encerrar servidor", zap.Error(err))
	} else {
		logr.Info("servidor encerrado com sucesso")
	}
}
