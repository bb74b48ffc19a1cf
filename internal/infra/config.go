package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

// Режимы поведения вызывающей стороны при недоступности Redis.
const (
	FailModeOpen   = "open"   // Пропускаем действие и пишем предупреждение
	FailModeClosed = "closed" // Отклоняем действие (по умолчанию)
)

const (
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory" // Только для локальной разработки и демо
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Console  ConsoleConfig  `mapstructure:"console"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Policy   PolicyConfig   `mapstructure:"policy"`
}

// ServerConfig описывает настройки HTTP-сервера проверок.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ConsoleConfig — HTTP API консоли Trust & Safety.
type ConsoleConfig struct {
	Port int `mapstructure:"port"`
}

type GRPCConfig struct {
	Port int `mapstructure:"port"` // Health-сервис для балансировщика
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (счетчики, Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// CASAttempts — число попыток оптимистичной транзакции (WATCH) при конфликте.
	CASAttempts uint `mapstructure:"cas_attempts"`
}

// AuthConfig содержит ключ подписи токенов консоли и настройки JWT.
type AuthConfig struct {
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PrivateKey     []byte
}

// EngineConfig содержит настройки anti-cheat движка.
type EngineConfig struct {
	FailMode     string `mapstructure:"fail_mode"`
	StoreBackend string `mapstructure:"store_backend"`

	ArchiveBufferSize    int           `mapstructure:"archive_buffer_size"`
	ArchiveBatchSize     int           `mapstructure:"archive_batch_size"`
	ArchiveFlushInterval time.Duration `mapstructure:"archive_flush_interval"`

	// Настройки Circuit Breaker для сервиса управления аккаунтами
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	// StatusRPS ограничивает поток вызовов SetUserStatus (защита от лавины блокировок)
	StatusRPS   float64 `mapstructure:"status_rps"`
	StatusBurst int     `mapstructure:"status_burst"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // Пусто — трейсинг выключен
	ServiceName  string `mapstructure:"service_name"`
}

// PolicyConfig — внешнее представление domain.Policy.
type PolicyConfig struct {
	RateWindow          time.Duration            `mapstructure:"rate_window"`
	RateLimits          map[string]int64         `mapstructure:"rate_limits"`
	DefaultRateLimit    int64                    `mapstructure:"default_rate_limit"`
	Cooldowns           map[string]time.Duration `mapstructure:"cooldowns"`
	ProgressMinIncrease float64                  `mapstructure:"progress_min_increase"`
	ProgressMaxRatio    float64                  `mapstructure:"progress_max_ratio"`
	RepetitionWindow    int                      `mapstructure:"repetition_window"`
	RepetitionThreshold int                      `mapstructure:"repetition_threshold"`
	MinSequenceLength   int                      `mapstructure:"min_sequence_length"`
	IllegalSequences    []string                 `mapstructure:"illegal_sequences"`
	ActionHistorySize   int64                    `mapstructure:"action_history_size"`
	IPHistorySize       int64                    `mapstructure:"ip_history_size"`
	IPDistinctThreshold int                      `mapstructure:"ip_distinct_threshold"`
	MaxSessions         int                      `mapstructure:"max_sessions"`
	SessionTTL          time.Duration            `mapstructure:"session_ttl"`
	ActivityLogSize     int64                    `mapstructure:"activity_log_size"`
	ViolationWeights    map[string]int           `mapstructure:"violation_weights"`
	DefaultWeight       int                      `mapstructure:"default_weight"`
	MaxRiskScore        int                      `mapstructure:"max_risk_score"`
	MonitoringThreshold int                      `mapstructure:"monitoring_threshold"`
	SuspensionThreshold int                      `mapstructure:"suspension_threshold"`
}

// ToDomain собирает политику для движка.
func (pc PolicyConfig) ToDomain() domain.Policy {
	weights := make(map[domain.ViolationType]int, len(pc.ViolationWeights))
	for k, w := range pc.ViolationWeights {
		weights[domain.ViolationType(k)] = w
	}
	return domain.Policy{
		RateWindow:          pc.RateWindow,
		RateLimits:          pc.RateLimits,
		DefaultRateLimit:    pc.DefaultRateLimit,
		Cooldowns:           pc.Cooldowns,
		ProgressMinIncrease: pc.ProgressMinIncrease,
		ProgressMaxRatio:    pc.ProgressMaxRatio,
		RepetitionWindow:    pc.RepetitionWindow,
		RepetitionThreshold: pc.RepetitionThreshold,
		MinSequenceLength:   pc.MinSequenceLength,
		IllegalSequences:    pc.IllegalSequences,
		ActionHistorySize:   pc.ActionHistorySize,
		IPHistorySize:       pc.IPHistorySize,
		IPDistinctThreshold: pc.IPDistinctThreshold,
		MaxSessions:         pc.MaxSessions,
		SessionTTL:          pc.SessionTTL,
		ActivityLogSize:     pc.ActivityLogSize,
		ViolationWeights:    weights,
		DefaultWeight:       pc.DefaultWeight,
		MaxRiskScore:        pc.MaxRiskScore,
		MonitoringThreshold: pc.MonitoringThreshold,
		SuspensionThreshold: pc.SuspensionThreshold,
	}
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	// .env удобен локально; в контейнере его нет, и это нормально
	_ = godotenv.Load()

	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: ENGINE_FAIL_MODE=open перекроет engine.fail_mode
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключ: PEM прямо в ENV (Docker/K8s) или файл по пути из конфига
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate проверяет значения, которые нельзя исправить дефолтами.
func (c *Config) Validate() error {
	var errs []error
	switch c.Engine.FailMode {
	case FailModeOpen, FailModeClosed:
	default:
		errs = append(errs, fmt.Errorf("engine.fail_mode must be %q or %q, got %q", FailModeOpen, FailModeClosed, c.Engine.FailMode))
	}
	switch c.Engine.StoreBackend {
	case StoreBackendRedis, StoreBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("engine.store_backend must be %q or %q, got %q", StoreBackendRedis, StoreBackendMemory, c.Engine.StoreBackend))
	}
	if err := c.Policy.ToDomain().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("console.port", 8000)
	v.SetDefault("grpc.port", 50052)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cas_attempts", 5)

	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("engine.fail_mode", FailModeClosed)
	v.SetDefault("engine.store_backend", StoreBackendRedis)
	v.SetDefault("engine.archive_buffer_size", 10000)
	v.SetDefault("engine.archive_batch_size", 100)
	v.SetDefault("engine.archive_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.status_rps", 50)
	v.SetDefault("engine.status_burst", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.service_name", "anticheat")

	p := domain.DefaultPolicy()
	weights := make(map[string]int, len(p.ViolationWeights))
	for k, w := range p.ViolationWeights {
		weights[string(k)] = w
	}
	v.SetDefault("policy.rate_window", p.RateWindow)
	v.SetDefault("policy.rate_limits", p.RateLimits)
	v.SetDefault("policy.default_rate_limit", p.DefaultRateLimit)
	v.SetDefault("policy.cooldowns", p.Cooldowns)
	v.SetDefault("policy.progress_min_increase", p.ProgressMinIncrease)
	v.SetDefault("policy.progress_max_ratio", p.ProgressMaxRatio)
	v.SetDefault("policy.repetition_window", p.RepetitionWindow)
	v.SetDefault("policy.repetition_threshold", p.RepetitionThreshold)
	v.SetDefault("policy.min_sequence_length", p.MinSequenceLength)
	v.SetDefault("policy.illegal_sequences", p.IllegalSequences)
	v.SetDefault("policy.action_history_size", p.ActionHistorySize)
	v.SetDefault("policy.ip_history_size", p.IPHistorySize)
	v.SetDefault("policy.ip_distinct_threshold", p.IPDistinctThreshold)
	v.SetDefault("policy.max_sessions", p.MaxSessions)
	v.SetDefault("policy.session_ttl", p.SessionTTL)
	v.SetDefault("policy.activity_log_size", p.ActivityLogSize)
	v.SetDefault("policy.violation_weights", weights)
	v.SetDefault("policy.default_weight", p.DefaultWeight)
	v.SetDefault("policy.max_risk_score", p.MaxRiskScore)
	v.SetDefault("policy.monitoring_threshold", p.MonitoringThreshold)
	v.SetDefault("policy.suspension_threshold", p.SuspensionThreshold)
}

// loadKeyResource — ключ из ENV (PEM целиком) или из файла
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
