package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port    int
	Backend string

	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string

	RedisURL string

	KafkaBrokers []string
	KafkaTopic   string

	TxMaxAttempts int
	CORSOrigins   []string
	SecureCookies bool
}

// Load reads a .env file when one exists, then the environment, then args.
// Flags win over the environment.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()
	return Parse(args)
}

func Parse(args []string) (Config, error) {
	var cfg Config
	var brokers, origins string

	fs := flag.NewFlagSet("places", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.Backend, "backend", "", "Store backend (memory, postgres or redis)")
	fs.StringVar(&cfg.RedisURL, "redis-url", "", "Redis URL")
	fs.StringVar(&brokers, "kafka-brokers", "", "Comma separated Kafka brokers")
	fs.IntVar(&cfg.TxMaxAttempts, "tx-max-attempts", 0, "Attempts per store transaction")
	fs.StringVar(&origins, "cors-origins", "", "Comma separated allowed origins")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		port, err := envInt("PORT", 8080)
		if err != nil {
			return Config{}, err
		}
		cfg.Port = port
	}

	if cfg.Backend == "" {
		cfg.Backend = envOr("STORE_BACKEND", BackendMemory)
	}
	switch cfg.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	cfg.PostgresDB = os.Getenv("POSTGRES_DB")
	cfg.PostgresUser = os.Getenv("POSTGRES_USER")
	cfg.PostgresPassword = os.Getenv("POSTGRES_PASSWORD")
	cfg.PostgresHost = envOr("POSTGRES_HOST", "localhost")
	cfg.PostgresPort = envOr("POSTGRES_PORT", "5432")
	if cfg.Backend == BackendPostgres && cfg.PostgresDB == "" {
		return Config{}, errors.New("POSTGRES_DB required for the postgres backend")
	}

	if cfg.RedisURL == "" {
		cfg.RedisURL = envOr("REDIS_URL", "redis://localhost:6379/0")
	}

	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKERS")
	}
	cfg.KafkaBrokers = splitList(brokers)
	cfg.KafkaTopic = envOr("KAFKA_TOPIC", "places.events")

	if cfg.TxMaxAttempts == 0 {
		attempts, err := envInt("TX_MAX_ATTEMPTS", 5)
		if err != nil {
			return Config{}, err
		}
		cfg.TxMaxAttempts = attempts
	}
	if cfg.TxMaxAttempts < 1 {
		return Config{}, errors.New("transaction attempts must be at least 1")
	}

	if origins == "" {
		origins = os.Getenv("CORS_ORIGINS")
	}
	cfg.CORSOrigins = splitList(origins)
	cfg.SecureCookies = os.Getenv("SECURE_COOKIES") == "true"

	return cfg, nil
}

func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
