// =============================================================================
// 📦 CollabEngine 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("COLLAB").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 CollabEngine 的完整配置结构
type Config struct {
	// Engine 协作引擎配置
	Engine EngineConfig `yaml:"engine"`

	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Auth 认证配置
	Auth AuthConfig `yaml:"auth"`

	// Redis 投递台账配置
	Redis RedisConfig `yaml:"redis"`

	// Database 结果存储配置
	Database DatabaseConfig `yaml:"database"`

	// Kafka 广播传输配置
	Kafka KafkaConfig `yaml:"kafka"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig 协作引擎配置
type EngineConfig struct {
	// 同时进行的协作与谈判上限
	MaxConcurrentCollaborations int `yaml:"max_concurrent_collaborations" split_words:"true"`
	// 协作编排超时（分钟）
	CollaborationTimeoutMinutes int `yaml:"collaboration_timeout_minutes" split_words:"true"`
	// 冲突解决超时（分钟）
	ConflictResolutionTimeoutMinutes int `yaml:"conflict_resolution_timeout_minutes" split_words:"true"`
	// 谈判轮次上限
	NegotiationRoundsLimit int `yaml:"negotiation_rounds_limit" split_words:"true"`
	// 单轮等待 Agent 回应的上限
	NegotiationRoundTimeout time.Duration `yaml:"negotiation_round_timeout" split_words:"true"`
	// 共识阈值 [0,1]
	ConsensusThreshold float64 `yaml:"consensus_threshold" split_words:"true"`
	// 是否自动执行冲突解决方案
	AutoConflictResolution bool `yaml:"auto_conflict_resolution" split_words:"true"`
	// 协作质量阈值 [0,1]
	CollaborationQualityThreshold float64 `yaml:"collaboration_quality_threshold" split_words:"true"`
	// 广播投递
	Broadcast BroadcastConfig `yaml:"broadcast"`
	// 外部顾问
	Advisor AdvisorConfig `yaml:"advisor"`
}

// BroadcastConfig 广播投递配置
type BroadcastConfig struct {
	// 每个收件人的最大投递次数
	MaxAttempts int `yaml:"max_attempts" split_words:"true"`
	// 首次重试前的等待
	InitialBackoff time.Duration `yaml:"initial_backoff" split_words:"true"`
	// 重试等待上限
	MaxBackoff time.Duration `yaml:"max_backoff" split_words:"true"`
	// 等待确认的时间
	AckTimeout time.Duration `yaml:"ack_timeout" split_words:"true"`
	// 并发投递的收件人数
	MaxFanout int `yaml:"max_fanout" split_words:"true"`
	// 进程内信箱容量
	MailboxSize int `yaml:"mailbox_size" split_words:"true"`
}

// AdvisorConfig 外部顾问调用配置
type AdvisorConfig struct {
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout"`
	// 失败后重试次数
	MaxRetries int `yaml:"max_retries" split_words:"true"`
	// 重试初始等待
	InitialBackoff time.Duration `yaml:"initial_backoff" split_words:"true"`
	// 连续失败多少次后熔断
	BreakerThreshold int `yaml:"breaker_threshold" split_words:"true"`
	// 熔断后多久尝试恢复
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" split_words:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" split_words:"true"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" split_words:"true"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" split_words:"true"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	// 每个 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" split_words:"true"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" split_words:"true"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// 是否启用认证
	Enabled bool `yaml:"enabled"`
	// 允许的 API Key
	APIKeys []string `yaml:"api_keys" split_words:"true"`
	// JWT HMAC 密钥，为空时不接受 JWT
	JWTSecret string `yaml:"jwt_secret" split_words:"true"`
	// JWT 签发者，为空时不校验
	JWTIssuer string `yaml:"jwt_issuer" split_words:"true"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否使用 Redis 台账
	Enabled bool `yaml:"enabled"`
	// 地址
	Addr string `yaml:"addr"`
	// 密码
	Password string `yaml:"password"`
	// 数据库编号
	DB int `yaml:"db"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" split_words:"true"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" split_words:"true"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" split_words:"true"`
	// 台账保留时间
	LedgerRetention time.Duration `yaml:"ledger_retention" split_words:"true"`
	// 是否启用 TLS
	TLS bool `yaml:"tls"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否使用数据库存储结果，关闭时使用内存存储
	Enabled bool `yaml:"enabled"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver"`
	// 主机
	Host string `yaml:"host"`
	// 端口
	Port int `yaml:"port"`
	// 用户名
	User string `yaml:"user"`
	// 密码
	Password string `yaml:"password"`
	// 数据库名
	Name string `yaml:"name"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" split_words:"true"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" split_words:"true"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" split_words:"true"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	// 启动时执行迁移
	AutoMigrate bool `yaml:"auto_migrate" split_words:"true"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否通过 Kafka 投递广播
	Enabled bool `yaml:"enabled"`
	// Broker 地址
	Brokers []string `yaml:"brokers"`
	// 收件人 topic 前缀
	TopicPrefix string `yaml:"topic_prefix" split_words:"true"`
	// 回执 topic
	AckTopic string `yaml:"ack_topic" split_words:"true"`
	// 回执消费组
	GroupID string `yaml:"group_id" split_words:"true"`
	// 批量写入等待
	BatchTimeout time.Duration `yaml:"batch_timeout" split_words:"true"`
	// 每秒写入上限，0 表示不限
	RatePerSecond float64 `yaml:"rate_per_second" split_words:"true"`
	// 是否启用 TLS
	TLS bool `yaml:"tls"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" split_words:"true"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" split_words:"true"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" split_words:"true"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" split_words:"true"`
	// 服务名称
	ServiceName string `yaml:"service_name" split_words:"true"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" split_words:"true"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "COLLAB",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 按配置分组从环境变量覆盖，例如 COLLAB_ENGINE_CONSENSUS_THRESHOLD
func (l *Loader) loadFromEnv(cfg *Config) error {
	groups := []struct {
		name   string
		target any
	}{
		{"ENGINE", &cfg.Engine},
		{"SERVER", &cfg.Server},
		{"AUTH", &cfg.Auth},
		{"REDIS", &cfg.Redis},
		{"DATABASE", &cfg.Database},
		{"KAFKA", &cfg.Kafka},
		{"LOG", &cfg.Log},
		{"TELEMETRY", &cfg.Telemetry},
	}
	for _, g := range groups {
		prefix := g.name
		if l.envPrefix != "" {
			prefix = l.envPrefix + "_" + g.name
		}
		if err := envconfig.Process(prefix, g.target); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(g.name), err)
		}
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string
	inUnit := func(v float64) bool { return v >= 0 && v <= 1 }

	// 验证引擎配置
	e := c.Engine
	if e.MaxConcurrentCollaborations <= 0 {
		errs = append(errs, "max_concurrent_collaborations must be positive")
	}
	if e.CollaborationTimeoutMinutes <= 0 || e.ConflictResolutionTimeoutMinutes <= 0 {
		errs = append(errs, "operation timeouts must be positive")
	}
	if e.NegotiationRoundsLimit <= 0 {
		errs = append(errs, "negotiation_rounds_limit must be positive")
	}
	if e.NegotiationRoundTimeout <= 0 {
		errs = append(errs, "negotiation_round_timeout must be positive")
	}
	if !inUnit(e.ConsensusThreshold) {
		errs = append(errs, "consensus_threshold must be between 0 and 1")
	}
	if !inUnit(e.CollaborationQualityThreshold) {
		errs = append(errs, "collaboration_quality_threshold must be between 0 and 1")
	}
	if e.Broadcast.MaxAttempts <= 0 || e.Broadcast.MaxFanout <= 0 {
		errs = append(errs, "broadcast max_attempts and max_fanout must be positive")
	}
	if e.Broadcast.AckTimeout <= 0 {
		errs = append(errs, "broadcast ack_timeout must be positive")
	}
	if e.Advisor.MaxRetries < 0 {
		errs = append(errs, "advisor max_retries must not be negative")
	}

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth enabled without api_keys or jwt_secret")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka enabled without brokers")
	}
	if !inUnit(c.Telemetry.SampleRate) {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
