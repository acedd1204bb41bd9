// Package redis concentra o acesso compartilhado ao Redis: fila de eventos
// de webhook, contadores de rate limit e o lock do passo de pareamento usam
// a mesma conexão.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/config"
)

type Client struct {
	rdb *redis.Client
	log *zap.Logger
}

// New conecta e valida com um ping limitado no tempo. Redis indisponível na
// subida é erro fatal: a fábrica de repositórios só chama este construtor
// quando o Redis está habilitado na configuração.
func New(cfg config.RedisConfig, log *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: falha ao conectar em %s: %w", cfg.Addr, err)
	}

	log.Info("redis: conectado",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
	)

	return &Client{rdb: rdb, log: log}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// RDB expõe a conexão crua para os consumidores (fila, limiter, lock).
func (c *Client) RDB() *redis.Client {
	return c.rdb
}
