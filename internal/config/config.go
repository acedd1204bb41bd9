package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
)

const Version = "1.2.0"

type Config struct {
	App         AppConfig
	DB          DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Storage     StorageConfig
	Gateway     GatewayConfig
	AutoReply   AutoReplyConfig
	Matching    MatchingConfig
	Phone       PhoneConfig
	Ingest      IngestConfig
	IPRateLimit IPRateLimitConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

type StorageConfig struct {
	Driver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DataDir string `env:"DATA_DIR" envDefault:"/app/data"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN retorna a string de conexão em formato aceito pelo pgxpool.
func (cfg DatabaseConfig) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"debug"`
}

// GatewayConfig aponta para o gateway Evolution que hospeda as instâncias WhatsApp.
type GatewayConfig struct {
	BaseURL            string        `env:"EVOLUTION_BASE_URL,required"`
	APIKey             string        `env:"EVOLUTION_API_KEY,required"`
	WebhookURL         string        `env:"EVOLUTION_WEBHOOK_URL"`
	RequestTimeout     time.Duration `env:"GATEWAY_REQUEST_TIMEOUT" envDefault:"15s"`
	SendMaxRetries     int           `env:"GATEWAY_SEND_MAX_RETRIES" envDefault:"3"`
	SendBaseDelay      time.Duration `env:"GATEWAY_SEND_BASE_DELAY" envDefault:"200ms"`
	SendBackoffFactor  float64       `env:"GATEWAY_SEND_BACKOFF_FACTOR" envDefault:"2.0"`
	ConnectMaxRetries  int           `env:"GATEWAY_CONNECT_MAX_RETRIES" envDefault:"2"`
	SendRatePerSecond  float64       `env:"GATEWAY_SEND_RATE_PER_SECOND" envDefault:"10"`
	BreakerMaxFailures uint32        `env:"GATEWAY_BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerCooldown    time.Duration `env:"GATEWAY_BREAKER_COOLDOWN" envDefault:"30s"`
}

// AutoReplyConfig guarda políticas de negócio da resposta automática.
// O cooldown é política operacional, não constante de código.
type AutoReplyConfig struct {
	Cooldown        time.Duration `env:"AUTO_REPLY_COOLDOWN" envDefault:"4h"`
	DefaultTimezone string        `env:"AUTO_REPLY_DEFAULT_TZ" envDefault:"America/Sao_Paulo"`
}

type MatchingConfig struct {
	BatchSize  int           `env:"MATCHING_BATCH_SIZE" envDefault:"50"`
	BatchDelay time.Duration `env:"MATCHING_BATCH_DELAY" envDefault:"100ms"`
	MaxRetries int           `env:"MATCHING_MAX_RETRIES" envDefault:"1"`
}

type PhoneConfig struct {
	DefaultCountryCode string `env:"PHONE_DEFAULT_COUNTRY_CODE" envDefault:"55"`
}

type IngestConfig struct {
	Workers   int `env:"INGEST_WORKERS" envDefault:"4"`
	QueueSize int `env:"INGEST_QUEUE_SIZE" envDefault:"10000"`
}

type IPRateLimitConfig struct {
	Enabled        bool `env:"IP_RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests       int  `env:"IP_RATE_LIMIT_REQUESTS" envDefault:"600"`
	WindowSeconds  int  `env:"IP_RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	SkipPrivateIPs bool `env:"IP_RATE_LIMIT_SKIP_PRIVATE_IPS" envDefault:"true"`
}

// Load carrega as configurações da aplicação.
func Load() Config {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: não foi possível carregar variáveis: %v", err)
	}
	return cfg
}
