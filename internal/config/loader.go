package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FOREXBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FOREXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.Addr, "FOREXBOT_PROVIDER_ADDR")
	setStr(&cfg.Provider.ListenAddr, "FOREXBOT_PROVIDER_LISTEN_ADDR")
	setDuration(&cfg.Provider.RenewEvery, "FOREXBOT_PROVIDER_RENEW_EVERY")
	setDuration(&cfg.Provider.IdleTimeout, "FOREXBOT_PROVIDER_IDLE_TIMEOUT")

	// ── Detector ──
	setStr(&cfg.Detector.BaseCurrency, "FOREXBOT_DETECTOR_BASE_CURRENCY")
	setFloat64(&cfg.Detector.Tolerance, "FOREXBOT_DETECTOR_TOLERANCE")
	setDuration(&cfg.Detector.InForceWindow, "FOREXBOT_DETECTOR_IN_FORCE_WINDOW")
	setDuration(&cfg.Detector.MaxQuoteSkew, "FOREXBOT_DETECTOR_MAX_QUOTE_SKEW")
	setFloat64(&cfg.Detector.TradeAmount, "FOREXBOT_DETECTOR_TRADE_AMOUNT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FOREXBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FOREXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FOREXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FOREXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FOREXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FOREXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FOREXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FOREXBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FOREXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FOREXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FOREXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FOREXBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FOREXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FOREXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FOREXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FOREXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FOREXBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FOREXBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FOREXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FOREXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FOREXBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FOREXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FOREXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FOREXBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FOREXBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "FOREXBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "FOREXBOT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "FOREXBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "FOREXBOT_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FOREXBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FOREXBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FOREXBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FOREXBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FOREXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FOREXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FOREXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FOREXBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FOREXBOT_MODE")
	setStr(&cfg.LogLevel, "FOREXBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
