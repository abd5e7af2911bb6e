package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	DB       DBConfig
	Auth     AuthConfig
	Session  SessionConfig
	HTTP     HTTPConfig
	Telegram TelegramConfig
}

type DBConfig struct {
	Driver string
	DSN    string
}

type AuthConfig struct {
	JWTSecret string
}

type SessionConfig struct {
	SessionTTL          time.Duration
	CodeTTL             time.Duration
	CodeCooldown        time.Duration
	MaxCodeAttempts     int
	InteractionCooldown time.Duration
	OrderNumberReset    string
	Timezone            string
	SweepInterval       time.Duration
}

type HTTPConfig struct {
	AllowedOrigins     []string
	RateLimitPerSecond int
	TrustedProxies     []string
}

type TelegramConfig struct {
	Token          string
	ChatID         int64
	CurrencySymbol string
}

// Enabled -> alert Telegram hanya jika token dan chat id diisi
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// Load membaca .env (jika ada) lalu environment proses
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Printf("Warning: .env file not found or error loading: %v", err)
	}
	return FromEnv()
}

// FromEnv membangun Config dari environment saja
func FromEnv() *Config {
	chatID, _ := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)

	return &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: DBConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:    getEnv("DB_DSN", "qrmenu.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Session: SessionConfig{
			SessionTTL:          getDuration("SESSION_TTL", 4*time.Hour),
			CodeTTL:             getDuration("CODE_TTL", 5*time.Minute),
			CodeCooldown:        getDuration("CODE_COOLDOWN", 60*time.Second),
			MaxCodeAttempts:     getInt("CODE_MAX_ATTEMPTS", 5),
			InteractionCooldown: getDuration("INTERACTION_COOLDOWN", 60*time.Second),
			OrderNumberReset:    strings.ToLower(getEnv("ORDER_NUMBER_RESET", services.OrderNumberNever)),
			Timezone:            getEnv("TZ_NAME", "Local"),
			SweepInterval:       getDuration("SWEEP_INTERVAL", time.Minute),
		},
		HTTP: HTTPConfig{
			AllowedOrigins:     getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond: getInt("RATE_LIMIT_PER_SECOND", 50),
			TrustedProxies:     getList("TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Telegram: TelegramConfig{
			Token:          getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:         chatID,
			CurrencySymbol: getEnv("CURRENCY_SYMBOL", "Rp"),
		},
	}
}

// ServiceOptions -> Options untuk semua service dari konfigurasi session
func (c *Config) ServiceOptions() services.Options {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		utils.ErrorLogger.Errorf("Unknown timezone %q, using local time", c.Session.Timezone)
		loc = time.Local
	}
	mode := c.Session.OrderNumberReset
	if mode != services.OrderNumberDaily {
		mode = services.OrderNumberNever
	}
	return services.Options{
		SessionTTL:          c.Session.SessionTTL,
		CodeTTL:             c.Session.CodeTTL,
		CodeCooldown:        c.Session.CodeCooldown,
		MaxCodeAttempts:     c.Session.MaxCodeAttempts,
		InteractionCooldown: c.Session.InteractionCooldown,
		OrderNumberReset:    mode,
		Location:            loc,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// getDuration menerima format Go ("90s", "4h") atau angka detik
func getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	utils.ErrorLogger.Errorf("Invalid duration for %s: %q, using %s", key, raw, def)
	return def
}

func getList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
