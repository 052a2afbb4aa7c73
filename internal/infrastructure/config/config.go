package config

import (
	"crypto/subtle"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config アプリケーション全体の設定
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AdminAPI      AdminAPIConfig
	OpenTelemetry OpenTelemetryConfig
	Logging       LoggingConfig
	Kafka         KafkaConfig
	Queue         QueueConfig
	Redeem        RedeemConfig
	Environment   string
}

// ServerConfig サーバー設定
type ServerConfig struct {
	Port         int
	GRPCPort     int
	Name         string // 作成したコードに記録するサーバー名
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig データベース設定
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig Redis設定
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// JWTConfig JWT設定
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AdminAPIConfig 管理API設定
type AdminAPIConfig struct {
	Enabled    bool
	APIKey     string
	AllowedIPs []string
}

// OpenTelemetryConfig OpenTelemetry設定
type OpenTelemetryConfig struct {
	Enabled         bool
	ServiceName     string
	ServiceVersion  string
	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceExporter   string // otlp, none
	MetricsExporter string // otlp, none
}

// LoggingConfig ログ設定
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	File       string // 空の場合は標準出力のみ
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// KafkaConfig Kafka設定
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	RewardTopic string // ゲームサーバーが購読する報酬・通知トピック
	EventTopic  string // 引き換えイベントトピック
}

// QueueConfig 非同期ジョブ（asynq）設定
type QueueConfig struct {
	Enabled          bool
	Concurrency      int
	PurgeExpiredCron string
	RefreshCacheCron string
}

// RedeemConfig 引き換えコード設定
type RedeemConfig struct {
	DefaultDigit       int
	MaxBulkAmount      int
	GeneratorAttempts  int
	ConditionCacheSize int
	PlayerCacheSize    int
	SequencerQueueSize int
	PersistenceWorkers int
	PurgeExpired       bool // 期限切れコードを定期削除するか
}

// Load 設定を読み込む
func Load() (*Config, error) {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	env := getEnv("ENVIRONMENT", "development")
	port := getEnvAsInt("SERVER_PORT", 8080)

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:         port,
			GRPCPort:     getEnvAsInt("GRPC_PORT", port+1),
			Name:         getEnv("SERVER_NAME", "Default"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 3306),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "redeem_db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnvAsInt("REDIS_PORT", 6379),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "redeem:"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiration: getEnvAsDuration("JWT_EXPIRATION", 24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "redeem-server"),
		},
		AdminAPI: AdminAPIConfig{
			Enabled:    getEnvAsBool("ADMIN_API_ENABLED", true),
			APIKey:     getEnv("ADMIN_API_KEY", ""),
			AllowedIPs: getEnvAsSlice("ADMIN_API_ALLOWED_IPS", nil),
		},
		OpenTelemetry: OpenTelemetryConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", true),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "redeem-server"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			OTLPInsecure:   getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			TraceExporter:   getEnv("OTEL_TRACES_EXPORTER", "otlp"),
			MetricsExporter: getEnv("OTEL_METRICS_EXPORTER", "otlp"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:     getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			RewardTopic: getEnv("KAFKA_REWARD_TOPIC", "redeem.rewards"),
			EventTopic:  getEnv("KAFKA_EVENT_TOPIC", "redeem.events"),
		},
		Queue: QueueConfig{
			Enabled:          getEnvAsBool("QUEUE_ENABLED", true),
			Concurrency:      getEnvAsInt("QUEUE_CONCURRENCY", 4),
			PurgeExpiredCron: getEnv("QUEUE_PURGE_EXPIRED_CRON", "@every 1h"),
			RefreshCacheCron: getEnv("QUEUE_REFRESH_CACHE_CRON", "@every 5m"),
		},
		Redeem: RedeemConfig{
			DefaultDigit:       getEnvAsInt("REDEEM_DEFAULT_DIGIT", 5),
			MaxBulkAmount:      getEnvAsInt("REDEEM_MAX_BULK_AMOUNT", 1000),
			GeneratorAttempts:  getEnvAsInt("REDEEM_GENERATOR_ATTEMPTS", 100),
			ConditionCacheSize: getEnvAsInt("REDEEM_CONDITION_CACHE_SIZE", 256),
			PlayerCacheSize:    getEnvAsInt("REDEEM_PLAYER_CACHE_SIZE", 4096),
			SequencerQueueSize: getEnvAsInt("REDEEM_SEQUENCER_QUEUE_SIZE", 1024),
			PersistenceWorkers: getEnvAsInt("REDEEM_PERSISTENCE_WORKERS", 8),
			PurgeExpired:       getEnvAsBool("REDEEM_PURGE_EXPIRED", false),
		},
	}

	// 必須設定の検証
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate 設定の検証
func (c *Config) validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AdminAPI.Enabled && c.AdminAPI.APIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required when admin API is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when kafka is enabled")
	}
	if c.Redeem.PersistenceWorkers <= 0 {
		return fmt.Errorf("REDEEM_PERSISTENCE_WORKERS must be positive")
	}
	return nil
}

// DSN データベース接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address Redis接続アドレスを返す
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ValidKey APIキーが一致するかを返す
func (c *AdminAPIConfig) ValidKey(key string) bool {
	return c.APIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(c.APIKey)) == 1
}

// AllowsIP IPアドレスが許可リストに含まれるかを返す。リストが空の場合は全て許可する。
// 許可リストは単一アドレスとCIDR表記を受け付ける。
func (c *AdminAPIConfig) AllowsIP(ip string) bool {
	if len(c.AllowedIPs) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, allowed := range c.AllowedIPs {
		if strings.Contains(allowed, "/") {
			prefix, err := netip.ParsePrefix(allowed)
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if a, err := netip.ParseAddr(allowed); err == nil && a.Unmap() == addr {
			return true
		}
	}
	return false
}

// getEnv 環境変数を取得（デフォルト値付き）
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool 環境変数を真偽値として取得
func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration 環境変数を時間として取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice カンマ区切りの環境変数をスライスとして取得
func getEnvAsSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
