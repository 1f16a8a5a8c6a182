package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64

	// Database
	StoreBackend     string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	LockBackend   string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	EventsTopic      string
	RetryTopic       string
	EventsSourceName string

	// Blob storage
	BlobBackend    string
	UploadDir      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Ingestion
	Delimiter         string
	ColumnMappingFile string
	IngestionWorkers  int
	RunTimeout        time.Duration
	ProgressEvery     int
	AllowedExtensions []string
	LintUploads       bool
	WatchDir          string
	ResumeOnStart     bool
}

// Load reads configuration from the environment, after applying an optional
// .env file from the working directory.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 100*1024*1024)),

		StoreBackend:     getEnv("STORE_BACKEND", "postgres"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "catalog"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "catalog123"),
		PostgresDB:       getEnv("POSTGRES_DB", "catalog"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		LockBackend:   getEnv("LOCK_BACKEND", "redis"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "catalog-platform"),
		EventsTopic:      getEnv("CATALOG_EVENTS_TOPIC", ""),
		RetryTopic:       getEnv("CATALOG_RETRY_TOPIC", ""),
		EventsSourceName: getEnv("CATALOG_EVENTS_SOURCE", "catalog-service"),

		BlobBackend:    getEnv("BLOB_BACKEND", "local"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "catalog-uploads"),
		MinioUseSSL:    getBoolEnv("MINIO_USE_SSL", false),

		Delimiter:         getEnv("CSV_DELIMITER", ","),
		ColumnMappingFile: getEnv("COLUMN_MAPPING_FILE", ""),
		IngestionWorkers:  getIntEnv("INGESTION_WORKERS", 4),
		RunTimeout:        getDuration("INGESTION_RUN_TIMEOUT", 30*time.Minute),
		ProgressEvery:     getIntEnv("INGESTION_PROGRESS_EVERY", 1000),
		AllowedExtensions: getStringSliceEnv("ALLOWED_EXTENSIONS", []string{".csv", ".tsv", ".txt"}),
		LintUploads:       getBoolEnv("LINT_UPLOADS", false),
		WatchDir:          getEnv("WATCH_DIR", ""),
		ResumeOnStart:     getBoolEnv("RESUME_ON_START", true),
	}
}

// DelimiterRune resolves the configured delimiter. "tab" and "\t" select a tab.
func (c *Config) DelimiterRune() rune {
	switch strings.ToLower(c.Delimiter) {
	case "tab", `\t`, "\t":
		return '\t'
	case "":
		return ','
	}
	return []rune(c.Delimiter)[0]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
