package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	NotifyLocal = "local"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	StoreDriver string
	Mongo       MongoConfig
	Redis       RedisConfig
	Notify      NotifyConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	CartTTL  time.Duration
}

// Enabled reports whether a Redis address was configured at all.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type NotifyConfig struct {
	Backend        string
	RedisChannel   string
	KafkaBrokers   []string
	KafkaTopic     string
	BroadcastLimit int
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:             getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: int64(getEnvInt("MAX_BODY_BYTES", 1<<20)), // 1MB
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB_NAME", "storefront"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			CartTTL:  getEnvDuration("CART_CACHE_TTL", 15*time.Minute),
		},
		Notify: NotifyConfig{
			Backend:        strings.ToLower(getEnv("NOTIFY_BACKEND", NotifyLocal)),
			RedisChannel:   getEnv("REDIS_CHANNEL", "storefront-events"),
			KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
			KafkaTopic:     getEnv("KAFKA_TOPIC", "storefront-events"),
			BroadcastLimit: getEnvInt("BROADCAST_LIMIT", 50),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
