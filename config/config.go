package config

import (
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/pkg/configparser"
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Server   ServerConfig
		Dispatch DispatchConfig
		Database DatabaseConfig
		Redis    RedisConfig
		RabbitMQ RabbitMQConfig
		Routing  RoutingConfig
		Auth     Auth
		Log      LogConfig
	}

	ServerConfig struct {
		Port string `env:"SERVER_PORT" default:"3000"`
	}

	// DispatchConfig carries the dispatch-domain knobs.
	DispatchConfig struct {
		CellResolution     int     `env:"CELL_RESOLUTION" default:"9"`
		PositionTTLSeconds int     `env:"POSITION_TTL_SECONDS" default:"300"`
		OfferTTLSeconds    int     `env:"OFFER_TTL_SECONDS" default:"15"`
		SyncCadence        string  `env:"SYNC_CADENCE" default:"@every 5m"`
		MaxRings           int     `env:"MAX_RINGS" default:"5"`
		RoutingTimeoutMs   int     `env:"ROUTING_TIMEOUT_MS" default:"5000"`
		AssumedSpeedKmh    float64 `env:"ASSUMED_SPEED_KMH" default:"30"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"dispatch_user"`
		Password string `env:"DATABASE_PASSWORD" default:"dispatch_pass"`
		Database string `env:"DATABASE_DATABASE" default:"dispatch_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RedisConfig struct {
		Host     string `env:"REDIS_HOST" default:"localhost"`
		Port     string `env:"REDIS_PORT" default:"6379"`
		Password string `env:"REDIS_PASSWORD" default:""`
		DB       int    `env:"REDIS_DB" default:"0"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	RoutingConfig struct {
		BaseURL string `env:"ROUTING_BASE_URL" default:"http://localhost:5000"`
	}

	Auth struct {
		JWTSecret string `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"info"`
	}
)

func (c DispatchConfig) PositionTTL() time.Duration {
	return time.Duration(c.PositionTTLSeconds) * time.Second
}

func (c DispatchConfig) OfferTTL() time.Duration {
	return time.Duration(c.OfferTTLSeconds) * time.Second
}

func (c DispatchConfig) RoutingTimeout() time.Duration {
	return time.Duration(c.RoutingTimeoutMs) * time.Millisecond
}

func (c DatabaseConfig) GetPoolSettings() (int32, int32, time.Duration, time.Duration) {
	return c.MaxConns, c.MinConns, c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c RedisConfig) GetRedisPassword() string {
	return c.Password
}

func (c RedisConfig) GetRedisDB() int {
	return c.DB
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	return cfg, nil
}
