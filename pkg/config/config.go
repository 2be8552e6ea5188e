package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Clearance   ClearanceConfig
	Documents   DocumentsConfig
	ObjectStore ObjectStoreConfig
	Migrations  MigrationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig only carries the verification secret; tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClearanceConfig tunes the approval workflow and its read paths.
type ClearanceConfig struct {
	PollInterval   time.Duration
	CacheEnabled   bool
	CacheTTL       time.Duration
	RefreshWorkers int
	RefreshRetries int
	StreamOrigins  []string
}

// DocumentsConfig controls clearance document rendering and export storage.
type DocumentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	CleanupInterval  time.Duration
	CompactMinScale  float64
	DetailedMinScale float64
	RasterWidthPx    int
}

// ObjectStoreConfig points at the S3 compatible bucket holding submitted files and signatures.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type MigrationsConfig struct {
	AutoMigrate bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Clearance = ClearanceConfig{
		PollInterval:   parseDuration(v.GetString("CLEARANCE_POLL_INTERVAL"), 15*time.Second),
		CacheEnabled:   v.GetBool("CLEARANCE_CACHE_ENABLED"),
		CacheTTL:       parseDuration(v.GetString("CLEARANCE_CACHE_TTL"), 2*time.Minute),
		RefreshWorkers: v.GetInt("CLEARANCE_REFRESH_WORKERS"),
		RefreshRetries: v.GetInt("CLEARANCE_REFRESH_RETRIES"),
		StreamOrigins:  splitAndTrim(v.GetString("CLEARANCE_STREAM_ORIGINS")),
	}

	cfg.Documents = DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		CleanupInterval:  parseDuration(v.GetString("DOCUMENTS_CLEANUP_INTERVAL"), time.Hour),
		CompactMinScale:  clampScale(v.GetFloat64("DOCUMENTS_COMPACT_MIN_SCALE"), 0.5),
		DetailedMinScale: clampScale(v.GetFloat64("DOCUMENTS_DETAILED_MIN_SCALE"), 0.7),
		RasterWidthPx:    v.GetInt("DOCUMENTS_RASTER_WIDTH_PX"),
	}

	cfg.ObjectStore = ObjectStoreConfig{
		Endpoint:  v.GetString("MINIO_ENDPOINT"),
		AccessKey: v.GetString("MINIO_ACCESS_KEY"),
		SecretKey: v.GetString("MINIO_SECRET_KEY"),
		Bucket:    v.GetString("MINIO_BUCKET"),
		UseSSL:    v.GetBool("MINIO_USE_SSL"),
	}

	cfg.Migrations = MigrationsConfig{AutoMigrate: v.GetBool("DB_AUTO_MIGRATE")}

	return cfg, nil
}

// WatchConfig configures the clearance-watch command line client.
type WatchConfig struct {
	APIURL       string
	APIToken     string
	PollInterval time.Duration
	LogLevel     string
}

// LoadWatch reads the client settings from the environment and an optional .env file.
func LoadWatch() *WatchConfig {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("CLEARANCE_API_URL", "http://localhost:8080/api/v1")
	v.SetDefault("CLEARANCE_API_TOKEN", "")
	v.SetDefault("CLEARANCE_POLL_INTERVAL", "15s")
	v.SetDefault("LOG_LEVEL", "info")

	return &WatchConfig{
		APIURL:       strings.TrimRight(v.GetString("CLEARANCE_API_URL"), "/"),
		APIToken:     v.GetString("CLEARANCE_API_TOKEN"),
		PollInterval: parseDuration(v.GetString("CLEARANCE_POLL_INTERVAL"), 15*time.Second),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_clearance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CLEARANCE_POLL_INTERVAL", "15s")
	v.SetDefault("CLEARANCE_CACHE_ENABLED", true)
	v.SetDefault("CLEARANCE_CACHE_TTL", "2m")
	v.SetDefault("CLEARANCE_REFRESH_WORKERS", 2)
	v.SetDefault("CLEARANCE_REFRESH_RETRIES", 3)
	v.SetDefault("CLEARANCE_STREAM_ORIGINS", "")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./exports")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("DOCUMENTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("DOCUMENTS_COMPACT_MIN_SCALE", 0.5)
	v.SetDefault("DOCUMENTS_DETAILED_MIN_SCALE", 0.7)
	v.SetDefault("DOCUMENTS_RASTER_WIDTH_PX", 1240)

	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "clearance-files")
	v.SetDefault("MINIO_USE_SSL", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func clampScale(value, fallback float64) float64 {
	if value <= 0 || value > 1 {
		return fallback
	}
	return value
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
