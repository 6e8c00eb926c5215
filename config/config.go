package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr       string
	FFmpegPath     string
	HLSSegmentTime string // segment duration in seconds, passed straight to ffmpeg
	HLSBitrate     string // fixed transcode bitrate for locally generated streams
	HLSCacheDir    string // root directory of the local segment cache
	HLSLocal       bool   // serve segmented streams from the local cache instead of the remote manifest
	ReaperInterval time.Duration
	CacheMaxAge    time.Duration
	StaticDir      string
	UploadDir      string // temp dir for multipart uploads before ingest
	MaxUploadBytes int64

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint       string
	MinioPublicEndpoint string // endpoint baked into delivery URLs handed to clients
	MinioAccessKey      string
	MinioSecretKey      string
	MinioBucket         string
	MinioRegion         string
	MinioUseSSL         bool

	JWTSecret string
	JWTExpire time.Duration
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as a duration (e.g. "6h") or
// returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	staticBase := getEnv("STATIC_DIR", "static")

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		HLSSegmentTime: getEnv("HLS_SEGMENT_TIME", "10"),
		HLSBitrate:     getEnv("HLS_BITRATE", "128k"),
		HLSCacheDir:    getEnv("HLS_CACHE_DIR", filepath.Join(staticBase, "hls-cache")),
		HLSLocal:       getEnvBool("HLS_LOCAL", true),
		ReaperInterval: getEnvDuration("HLS_REAPER_INTERVAL", 6*time.Hour),
		CacheMaxAge:    getEnvDuration("HLS_CACHE_MAX_AGE", 24*time.Hour),
		StaticDir:      staticBase,
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for secrets
		DBName:     getEnv("DB_NAME", "echofm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:       getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioPublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "127.0.0.1:9000")),
		MinioAccessKey:      getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:         getEnv("MINIO_BUCKET", "echofm"),
		MinioRegion:         getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:         getEnvBool("MINIO_USE_SSL", false),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTExpire: getEnvDuration("JWT_EXPIRE", 7*24*time.Hour),
	}
}
