package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Env string
	DB  struct {
		DSN string
	}
	API struct {
		Port          string
		BasePath      string
		PublicBaseURL string
	}
	Auth struct {
		JWTSecret     string
		DevAuthHeader string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Firebase struct {
		CredentialsFile string
		CredentialsJSON string
		ProjectID       string
		RegulatorTopic  string
		BroadcastTopic  string
	}
	Notification struct {
		MaxWorkers     int
		SendTimeout    time.Duration
		AudiencePolicy string
		RadiusKm       float64
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Telegram struct {
		BotToken   string
		ChatID     int64
		RatePerSec int
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Sharing struct {
		TokenTTL time.Duration
	}
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	var invalid []string

	cfg.Env = os.Getenv("APP_ENV")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.API.PublicBaseURL = os.Getenv("PUBLIC_BASE_URL")

	// Auth
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.DevAuthHeader = os.Getenv("DEV_AUTH_HEADER")

	// Logging
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Firebase
	cfg.Firebase.CredentialsFile = os.Getenv("FIREBASE_CREDENTIALS_FILE")
	cfg.Firebase.CredentialsJSON = os.Getenv("FIREBASE_CREDENTIALS_JSON")
	cfg.Firebase.ProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	cfg.Firebase.RegulatorTopic = os.Getenv("FCM_REGULATOR_TOPIC")
	cfg.Firebase.BroadcastTopic = os.Getenv("FCM_BROADCAST_TOPIC")

	// Notification fan-out
	cfg.Notification.MaxWorkers = intEnv("NOTIFY_MAX_WORKERS", &invalid)
	cfg.Notification.SendTimeout = durationEnv("NOTIFY_SEND_TIMEOUT", &invalid)
	cfg.Notification.AudiencePolicy = os.Getenv("AUDIENCE_POLICY")
	if v := os.Getenv("AUDIENCE_RADIUS_KM"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			invalid = append(invalid, "AUDIENCE_RADIUS_KM")
		}
		cfg.Notification.RadiusKm = r
	}

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			invalid = append(invalid, "TELEGRAM_CHAT_ID")
		}
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.RatePerSec = intEnv("TELEGRAM_RATE_PER_SEC", &invalid)

	// Redis
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = intEnv("REDIS_DB", &invalid)

	// Location sharing
	cfg.Sharing.TokenTTL = durationEnv("SHARE_TOKEN_TTL", &invalid)

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %v", invalid)
	}

	if cfg.Env == "" {
		cfg.Env = "development"
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Auth.JWTSecret == "" && cfg.IsProduction() {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)

	switch cfg.Notification.AudiencePolicy {
	case "all_clients", "nearby":
	default:
		return Config{}, fmt.Errorf("unsupported AUDIENCE_POLICY %q", cfg.Notification.AudiencePolicy)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.API.PublicBaseURL == "" {
		cfg.API.PublicBaseURL = "http://localhost" + cfg.API.Port
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret"
	}
	if cfg.Auth.DevAuthHeader == "" {
		cfg.Auth.DevAuthHeader = "X-User-Id"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Firebase.RegulatorTopic == "" {
		cfg.Firebase.RegulatorTopic = "regulators"
	}
	if cfg.Firebase.BroadcastTopic == "" {
		cfg.Firebase.BroadcastTopic = "all-users"
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Notification.SendTimeout == 0 {
		cfg.Notification.SendTimeout = 5 * time.Second
	}
	if cfg.Notification.AudiencePolicy == "" {
		cfg.Notification.AudiencePolicy = "all_clients"
	}
	if cfg.Notification.RadiusKm == 0 {
		cfg.Notification.RadiusKm = 0.8
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "vehicle-failures"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "reporting-service"
	}
	if cfg.Telegram.RatePerSec == 0 {
		cfg.Telegram.RatePerSec = 1
	}
	if cfg.Sharing.TokenTTL == 0 {
		cfg.Sharing.TokenTTL = 3 * time.Hour
	}
}

func intEnv(key string, invalid *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*invalid = append(*invalid, key)
		return 0
	}
	return n
}

func durationEnv(key string, invalid *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*invalid = append(*invalid, key)
		return 0
	}
	return d
}
