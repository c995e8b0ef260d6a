package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uma-arai/casa25-portal/internal/common/database"
)

// CacheBackend はローカルキャッシュの保存先です
type CacheBackend string

const (
	CacheBackendLevelDB  CacheBackend = "leveldb"
	CacheBackendPostgres CacheBackend = "postgres"
)

// DefaultHTTPAddr は既定の待ち受けアドレスです
// セッションは端末で1つのため、既定では端末の外からは接続できないようにします
const DefaultHTTPAddr = "127.0.0.1:8080"

type Config struct {
	DB  database.Config
	SFN struct {
		TaskToken       string
		StateMachineARN string
	}
	EnableTracing bool

	Remote struct {
		Endpoint string
		Timeout  time.Duration
	}
	Cache struct {
		Backend CacheBackend
		Path    string
		Version string
	}
	Weather struct {
		Endpoint      string
		Latitude      float64
		Longitude     float64
		RainThreshold int
	}

	AdminPINs      []string
	AllowedOrigins []string
	Location       *time.Location
	TickInterval   time.Duration
	NoticeTTL      time.Duration
	HTTPAddr       string
	LogLevel       string
	LogFormat      string
}

// LoadConfig は設定を読み込みます
// .envファイルがあれば環境変数に読み込みますが、なくてもエラーにはしません
func LoadConfig(taskToken string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded (%v); continuing with environment variables", err)
	}

	cfg := &Config{
		DB: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvAsIntOrDefault("DB_PORT", 5432),
			UserName: getEnvOrDefault("DB_USERNAME", "casa25"),
			Password: getEnvOrDefault("DB_PASSWORD", "password"),
			DBName:   getEnvOrDefault("DB_NAME", "casa25"),
		},
		EnableTracing:  false,
		AdminPINs:      splitList(os.Getenv("PORTAL_ADMIN_PINS")),
		AllowedOrigins: splitList(os.Getenv("PORTAL_ALLOWED_ORIGINS")),
		TickInterval:   getEnvAsDurationOrDefault("PORTAL_TICK_INTERVAL", time.Minute),
		NoticeTTL:      getEnvAsDurationOrDefault("PORTAL_NOTICE_TTL", 3*time.Second),
		HTTPAddr:       getEnvOrDefault("PORTAL_HTTP_ADDR", DefaultHTTPAddr),
		LogLevel:       getEnvOrDefault("LOGGING_LEVEL", "INFO"),
		LogFormat:      getEnvOrDefault("LOGGING_FORMAT", "CONSOLE"),
	}
	cfg.SFN.TaskToken = taskToken
	cfg.SFN.StateMachineARN = os.Getenv("PORTAL_TURNOVER_STATE_MACHINE_ARN")

	cfg.Remote.Endpoint = getEnvOrDefault("PORTAL_REMOTE_ENDPOINT", "")
	cfg.Remote.Timeout = getEnvAsDurationOrDefault("PORTAL_REMOTE_TIMEOUT", 10*time.Second)

	cfg.Cache.Backend = CacheBackend(strings.ToLower(getEnvOrDefault("PORTAL_CACHE_BACKEND", string(CacheBackendLevelDB))))
	cfg.Cache.Path = getEnvOrDefault("PORTAL_CACHE_PATH", "./data/cache")
	cfg.Cache.Version = getEnvOrDefault("PORTAL_APP_VERSION", "v14")

	cfg.Weather.Endpoint = getEnvOrDefault("PORTAL_WEATHER_ENDPOINT", "https://api.open-meteo.com/v1/forecast")
	cfg.Weather.Latitude = getEnvAsFloatOrDefault("PORTAL_WEATHER_LATITUDE", 4.2048)
	cfg.Weather.Longitude = getEnvAsFloatOrDefault("PORTAL_WEATHER_LONGITUDE", -74.6408)
	cfg.Weather.RainThreshold = getEnvAsIntOrDefault("PORTAL_RAIN_THRESHOLD", 70)

	loc, err := time.LoadLocation(getEnvOrDefault("PORTAL_TIMEZONE", "America/Bogota"))
	if err != nil {
		log.Printf("Failed to load timezone, falling back to local time: %v", err)
		loc = time.Local
	}
	cfg.Location = loc

	if len(cfg.AdminPINs) == 0 {
		log.Printf("PORTAL_ADMIN_PINS is not set; admin login is disabled")
	}

	// 環境変数[PORTAL_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("PORTAL_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

// IsLocal はENV=LOCALで起動しているかを返します
func IsLocal() bool {
	return os.Getenv("ENV") == "LOCAL"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Printf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Environment variable %s has invalid duration %q, using default value", key, value)
	}
	return defaultValue
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

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
