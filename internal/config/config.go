package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Session  SessionConfig
	Worker   WorkerConfig
	API      APIConfig
	Supabase SupabaseConfig
	Catalog  CatalogConfig
}

type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type MySQLConfig struct {
	DSN     string
	Migrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	TTL     time.Duration
	LockTTL time.Duration
}

type WorkerConfig struct {
	Count     int
	QueueSize int
}

type APIConfig struct {
	BaseURL     string
	GeocoderURL string
	Timeout     time.Duration
}

type SupabaseConfig struct {
	URL           string
	AnonKey       string
	JWTSecret     string
	StorageBucket string
}

type CatalogConfig struct {
	// File overrides the built-in recycling centre list when set.
	File string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		MySQL: MySQLConfig{
			DSN:     getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/jobintake?parseTime=true"),
			Migrate: getEnvBool("MYSQL_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			TTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
			LockTTL: getEnvDuration("SESSION_LOCK_TTL", 2*time.Minute),
		},
		Worker: WorkerConfig{
			Count:     getEnvInt("WORKER_COUNT", 4),
			QueueSize: getEnvInt("QUEUE_SIZE", 1000),
		},
		API: APIConfig{
			BaseURL:     getEnv("CARRYO_API_URL", "http://localhost:3000/api"),
			GeocoderURL: getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			Timeout:     getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		Supabase: SupabaseConfig{
			URL:           getEnv("SUPABASE_URL", ""),
			AnonKey:       getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:     getEnv("SUPABASE_JWT_SECRET", ""),
			StorageBucket: getEnv("STORAGE_BUCKET", "job-photos"),
		},
		Catalog: CatalogConfig{
			File: getEnv("RECYCLING_CENTERS_FILE", ""),
		},
	}
}

// ValidateServer checks the settings the server cannot start without.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.Supabase.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required"))
	}
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.Worker.Count <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	if c.Session.LockTTL <= c.API.Timeout {
		errs = append(errs, errors.New("SESSION_LOCK_TTL must be longer than HTTP_TIMEOUT"))
	}
	return errors.Join(errs...)
}

// ValidateClient checks the settings the terminal wizard needs.
func (c *Config) ValidateClient() error {
	var errs []error
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.Supabase.AnonKey == "" {
		errs = append(errs, errors.New("SUPABASE_ANON_KEY is required"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
