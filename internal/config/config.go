package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"tasksync/internal/logger"

	"github.com/joho/godotenv"
)

// Document store drivers
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	AppPort       string
	LogLevel      string
	LogJSON       bool
	JWTSecret     string
	DevMode       bool
	AllowedOrigin string

	// Document store
	DocstoreDriver  string
	DatabaseURL     string
	MongoURI        string
	MongoDatabase   string
	TasksCollection string
	PollInterval    time.Duration
	WriteTimeout    time.Duration

	// Rate limiting
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	APIRateLimit  int
	APIRateWindow time.Duration
}

// Load reads .env (if present) and the process environment.
// Missing required values are fatal.
func Load() *Config {
	_ = godotenv.Load()

	cfg, missing := FromEnv(os.Getenv)
	if missing != "" {
		logger.Fatal(missing + " is not set")
	}
	return cfg
}

// FromEnv builds a Config from getenv. The second return value names the first
// required key that is missing, or is empty when the config is complete.
func FromEnv(getenv func(string) string) (*Config, string) {
	cfg := &Config{
		AppPort:         orDefault(getenv("APP_PORT"), "8080"),
		LogLevel:        orDefault(getenv("LOG_LEVEL"), "info"),
		LogJSON:         getenv("LOG_JSON") == "true",
		JWTSecret:       getenv("JWT_SECRET"),
		DevMode:         getenv("DEV_MODE") == "true",
		AllowedOrigin:   getenv("ALLOWED_ORIGIN"),
		DocstoreDriver:  strings.ToLower(orDefault(getenv("DOCSTORE_DRIVER"), DriverMemory)),
		DatabaseURL:     getenv("DATABASE_URL"),
		MongoURI:        getenv("MONGO_URI"),
		MongoDatabase:   orDefault(getenv("MONGO_DATABASE"), "tasksync"),
		TasksCollection: orDefault(getenv("TASKS_COLLECTION"), "tasks"),
		PollInterval:    time.Duration(positiveInt(getenv("DOCSTORE_POLL_INTERVAL_MS"), 1000)) * time.Millisecond,
		WriteTimeout:    time.Duration(positiveInt(getenv("WRITE_TIMEOUT_SECONDS"), 10)) * time.Second,
		RedisAddr:       getenv("REDIS_ADDR"),
		RedisPassword:   getenv("REDIS_PASSWORD"),
		RedisDB:         positiveInt(getenv("REDIS_DB"), 0),
		APIRateLimit:    positiveInt(getenv("API_RATE_LIMIT"), 120),
		APIRateWindow:   time.Duration(positiveInt(getenv("API_RATE_WINDOW_SECONDS"), 60)) * time.Second,
	}

	if cfg.JWTSecret == "" {
		return cfg, "JWT_SECRET"
	}

	switch cfg.DocstoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, "DATABASE_URL"
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return cfg, "MONGO_URI"
		}
	case DriverMemory:
	default:
		logger.Warn("unknown DOCSTORE_DRIVER, using memory", "driver", cfg.DocstoreDriver)
		cfg.DocstoreDriver = DriverMemory
	}

	return cfg, ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return def
	}
	return n
}
