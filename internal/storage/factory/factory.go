package factory

import (
	"go.uber.org/zap"

	"github.com/zapgestor/zapgestor/internal/config"
	"github.com/zapgestor/zapgestor/internal/pkg/queue"
	queue_memory "github.com/zapgestor/zapgestor/internal/pkg/queue/memory"
	queue_redis "github.com/zapgestor/zapgestor/internal/pkg/queue/redis"
	"github.com/zapgestor/zapgestor/internal/pkg/ratelimiter"
	limiter_memory "github.com/zapgestor/zapgestor/internal/pkg/ratelimiter/memory"
	limiter_redis "github.com/zapgestor/zapgestor/internal/pkg/ratelimiter/redis"
	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/postgres"
	storage_redis "github.com/zapgestor/zapgestor/internal/storage/redis"
	"github.com/zapgestor/zapgestor/internal/storage/sqlite"
)

type Repositories struct {
	Instance     storage.InstanceRepository
	Contact      storage.ContactRepository
	Message      storage.MessageRepository
	Settings     storage.SettingsRepository
	AutoReplyLog storage.AutoReplyLogRepository
	Client       storage.ClientRepository
	RedisClient  *storage_redis.Client // nil quando Redis está desabilitado
	IngestQueue  queue.Queue
	RateLimiter  ratelimiter.Limiter
}

func NewRepositories(cfg config.Config, log *zap.Logger) (*Repositories, error) {
	log.Info("inicializando repositórios",
		zap.String("driver", cfg.Storage.Driver),
	)

	var (
		ingestQueue queue.Queue
		rateLimiter ratelimiter.Limiter
		storeRedis  *storage_redis.Client
		err         error
	)

	// Redis só entra quando habilitado explicitamente; o fallback em
	// memória atende instalações de réplica única.
	if cfg.Redis.Enabled {
		log.Info("inicializando Redis...")
		storeRedis, err = storage_redis.New(cfg.Redis, log)
		if err != nil {
			log.Error("erro ao conectar com Redis", zap.Error(err))
			return nil, err
		}

		redisClient := storeRedis.RDB()
		ingestQueue = queue_redis.NewQueue(redisClient, "webhook:events")
		rateLimiter = limiter_redis.NewLimiter(redisClient)
		log.Info("Redis conectado, fila e limiter configurados")
	} else {
		log.Info("usando implementações em memória (Redis desabilitado)")
		ingestQueue = queue_memory.NewQueue(cfg.Ingest.QueueSize)
		rateLimiter = limiter_memory.NewLimiter()
	}

	switch cfg.Storage.Driver {
	case "sqlite", "":
		log.Debug("criando conexão com SQLite")
		db, err := sqlite.New(cfg.Storage.DataDir, log)
		if err != nil {
			log.Error("erro ao conectar com SQLite", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios SQLite criados com sucesso", zap.String("data_dir", cfg.Storage.DataDir))
		return &Repositories{
			Instance:     sqlite.NewInstanceRepository(db),
			Contact:      sqlite.NewContactRepository(db),
			Message:      sqlite.NewMessageRepository(db),
			Settings:     sqlite.NewSettingsRepository(db),
			AutoReplyLog: sqlite.NewAutoReplyLogRepository(db),
			Client:       sqlite.NewClientRepository(db),
			RedisClient:  storeRedis,
			IngestQueue:  ingestQueue,
			RateLimiter:  rateLimiter,
		}, nil

	case "postgres":
		log.Debug("criando conexão com PostgreSQL")
		db, err := postgres.New(cfg.DB, log)
		if err != nil {
			log.Error("erro ao conectar com PostgreSQL", zap.Error(err))
			return nil, err
		}

		log.Info("repositórios PostgreSQL criados com sucesso")
		return &Repositories{
			Instance:     postgres.NewInstanceRepository(db),
			Contact:      postgres.NewContactRepository(db),
			Message:      postgres.NewMessageRepository(db),
			Settings:     postgres.NewSettingsRepository(db),
			AutoReplyLog: postgres.NewAutoReplyLogRepository(db),
			Client:       postgres.NewClientRepository(db),
			RedisClient:  storeRedis,
			IngestQueue:  ingestQueue,
			RateLimiter:  rateLimiter,
		}, nil

	default:
		log.Error("driver de storage desconhecido",
			zap.String("driver", cfg.Storage.Driver),
		)
		return nil, &ErrUnknownDriver{Driver: cfg.Storage.Driver}
	}
}

type ErrUnknownDriver struct {
	Driver string
}

func (e *ErrUnknownDriver) Error() string {
	return "storage: driver desconhecido: " + e.Driver
}
