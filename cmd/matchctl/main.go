package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/config"
	"github.com/zapgestor/zapgestor/internal/logger"
	"github.com/zapgestor/zapgestor/internal/service/matcher"
	"github.com/zapgestor/zapgestor/internal/storage/factory"
	storage_redis "github.com/zapgestor/zapgestor/internal/storage/redis"
)

// matchctl roda o pareamento contato-cliente fora do servidor HTTP,
// pensado para cron e execuções manuais de operação.
func main() {
	instanceID := flag.String("instance", "", "ID da instância (vazio executa sobre todas)")
	batchSize := flag.Int("batch-size", 0, "Tamanho do lote (0 usa o padrão da configuração)")
	batchDelayMs := flag.Int("batch-delay-ms", 0, "Pausa entre lotes em ms (0 usa o padrão)")
	statsOnly := flag.Bool("stats", false, "Apenas exibe as estatísticas de pareamento")
	timeout := flag.Duration("timeout", 30*time.Minute, "Tempo máximo de execução")
	flag.Parse()

	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	repos, err := factory.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer func() {
		if repos.RedisClient != nil {
			repos.RedisClient.Close()
		}
	}()

	svc := matcher.NewService(
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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *statsOnly {
		stats, err := svc.GetStats(ctx, *instanceID)
		if err != nil {
			log.Fatalf("matchctl: stats: %v", err)
		}
		printJSON(stats)
		return
	}

	// Mesmo lock do endpoint HTTP: um passo por escopo de cada vez.
	if repos.RedisClient != nil {
		lock := storage_redis.NewLock(repos.RedisClient, matcher.LockKey(*instanceID), 10*time.Minute)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			log.Fatalf("matchctl: lock: %v", err)
		}
		if !acquired {
			log.Fatal("matchctl: pareamento já em execução para este escopo")
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logr.Warn("matchctl: falha ao liberar lock", zap.Error(err))
			}
		}()
	}

	result, err := svc.RunMatchingPass(ctx, matcher.Options{
		InstanceID: *instanceID,
		BatchSize:  *batchSize,
		BatchDelay: time.Duration(*batchDelayMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("matchctl: %v", err)
	}

	printJSON(result)
	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("matchctl: serializar saída: %v", err)
	}
	fmt.Println(string(out))
}
