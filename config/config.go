package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"taskboard/store"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	RedirectURI  string `json:"redirect_uri"`
}

type SMTPConfig struct {
	Host      string `json:"smtp_host"`
	Port      int    `json:"smtp_port"`
	Username  string `json:"smtp_username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type Config struct {
	Environment   string        `json:"environment"`
	ServerPort    string        `json:"server_port"`
	FrontendURL   string        `json:"frontend_url"`
	JWTSecret     string        `json:"-"`
	JWTTTL        time.Duration `json:"jwt_ttl"`
	EncryptionKey string        `json:"-"`
	SentryDSN     string        `json:"-"`
	LogLevel      string        `json:"log_level"`

	StoreDriver    string `json:"store_driver"`
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis  RedisConfig `json:"redis"`
	SMTP   SMTPConfig  `json:"smtp"`
	GitHub OAuthConfig `json:"github"`

	CacheTTL                  time.Duration `json:"cache_ttl"`
	CacheMaxEntries           int           `json:"cache_max_entries"`
	CacheSweepInterval        time.Duration `json:"cache_sweep_interval"`
	InviteRateLimit           int           `json:"invite_rate_limit"`
	NotificationRetentionDays int           `json:"notification_retention_days"`
	VerificationCodeTTL       time.Duration `json:"verification_code_ttl"`
}

// LoadConfig reads the environment, optionally seeded from a .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    getEnv("SERVER_PORT", "5000"),
		FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTTTL:        getEnvAsDuration("JWT_TTL", 7*24*time.Hour),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "taskboard"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "taskboard"),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("EMAIL_FROM", "noreply@taskboard.local"),
			FromName:  getEnv("EMAIL_FROM_NAME", "Taskboard"),
		},
		GitHub: OAuthConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GITHUB_REDIRECT_URI", ""),
		},

		CacheTTL:                  getEnvAsDuration("CACHE_TTL", 30*time.Second),
		CacheMaxEntries:           getEnvAsInt("CACHE_MAX_ENTRIES", 1000),
		CacheSweepInterval:        getEnvAsDuration("CACHE_SWEEP_INTERVAL", time.Minute),
		InviteRateLimit:           getEnvAsInt("INVITE_RATE_LIMIT", 20),
		NotificationRetentionDays: getEnvAsInt("NOTIFICATION_RETENTION_DAYS", 30),
		VerificationCodeTTL:       getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch len(c.EncryptionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("REDIS_ADDRESS is required when STORE_DRIVER=redis")
		}
	case StorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.IsProduction() && (c.GitHub.ClientID == "" || c.GitHub.ClientSecret == "") {
		return fmt.Errorf("GitHub OAuth credentials are required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

// RedisClient returns a client for the configured Redis, or nil when none is set.
func (c *Config) RedisClient() *redis.Client {
	if !c.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Address,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

func ConnectDB(cfg *Config, log *logrus.Entry) (*gorm.DB, error) {
	log.WithField("dsn", maskPassword(cfg.DSN())).Info("connecting to database")

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("connected to database")
	return db, nil
}

// OpenStore builds the document store selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *Config, redisClient *redis.Client, log *logrus.Entry) (store.Store, error) {
	switch cfg.StoreDriver {
	case StoreRedis:
		s := store.NewRedisStore(redisClient, cfg.Redis.Prefix)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return s, nil
	case StorePostgres:
		db, err := ConnectDB(cfg, log)
		if err != nil {
			return nil, err
		}
		s := store.NewGormStore(db)
		if err := s.Migrate(); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		return s, nil
	default:
		log.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

// LogSummary logs the loaded configuration without secrets.
func (c *Config) LogSummary(log *logrus.Entry) {
	fields := logrus.Fields{
		"environment":  c.Environment,
		"server_port":  c.ServerPort,
		"store_driver": c.StoreDriver,
		"redis":        c.Redis.Enabled,
		"smtp":         c.SMTP.Host != "",
		"github_oauth": c.GitHub.ClientID != "",
		"cache_ttl":    c.CacheTTL.String(),
	}
	if c.StoreDriver == StorePostgres {
		fields["database"] = fmt.Sprintf("%s@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
	}
	log.WithFields(fields).Info("loaded configuration")
}
