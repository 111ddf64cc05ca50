package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	MetricsNamespace string

	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	WhatsAppStorePath string
	WhatsAppLogLevel  string
	MediaDir          string

	AIBaseURL string
	AIAPIKey  string
	AIModel   string
	AITimeout time.Duration

	PaymentLink       string
	CommunityCode     string
	BotPhone          string
	LinkInstagram     string
	LinkTikTok        string
	LinkFacebook      string
	LinkVendorGroup   string
	LinkCustomerGroup string
	SupportEmail      string
	SupportPhone      string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "marketbot"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", "public"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "WARN"),
		MediaDir:          getEnv("MEDIA_DIR", "data/media"),

		AIBaseURL: getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:  os.Getenv("AI_API_KEY"),
		AIModel:   getEnv("AI_MODEL", "gpt-4o-mini"),

		PaymentLink:       getEnv("LINK_PAYMENT", "https://flutterwave.com/pay/default"),
		CommunityCode:     getEnv("COMMUNITY_CODE", "EASY50"),
		BotPhone:          os.Getenv("BOT_PHONE"),
		LinkInstagram:     getEnv("LINK_INSTAGRAM", "#"),
		LinkTikTok:        getEnv("LINK_TIKTOK", "#"),
		LinkFacebook:      getEnv("LINK_FACEBOOK", "#"),
		LinkVendorGroup:   getEnv("LINK_VENDOR_COMMUNITY", "#"),
		LinkCustomerGroup: getEnv("LINK_USER_COMMUNITY", "#"),
		SupportEmail:      getEnv("SUPPORT_EMAIL", "support@easyeasy.app"),
		SupportPhone:      getEnv("SUPPORT_PHONE", "+234 800 000 0000"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.RedisTLS = getEnvBool("REDIS_TLS", false)

	aiTimeout, err := getEnvInt("AI_TIMEOUT_SECONDS", 20)
	if err != nil {
		return nil, err
	}
	cfg.AITimeout = time.Duration(aiTimeout) * time.Second

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}
