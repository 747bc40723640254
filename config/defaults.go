// =============================================================================
// 📦 CollabEngine 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Server:    DefaultServerConfig(),
		Auth:      DefaultAuthConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Kafka:     DefaultKafkaConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig 返回默认协作引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentCollaborations:      10,
		CollaborationTimeoutMinutes:      30,
		ConflictResolutionTimeoutMinutes: 15,
		NegotiationRoundsLimit:           10,
		NegotiationRoundTimeout:          time.Minute,
		ConsensusThreshold:               0.75,
		AutoConflictResolution:           false,
		CollaborationQualityThreshold:    0.7,
		Broadcast: BroadcastConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			AckTimeout:     30 * time.Second,
			MaxFanout:      32,
			MailboxSize:    64,
		},
		Advisor: AdvisorConfig{
			Timeout:             30 * time.Second,
			MaxRetries:          1,
			InitialBackoff:      200 * time.Millisecond,
			BreakerThreshold:    5,
			BreakerResetTimeout: 30 * time.Second,
		},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAuthConfig 返回默认认证配置（默认关闭）
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   false,
		JWTIssuer: "collabengine",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:         false,
		Addr:            "localhost:6379",
		Password:        "",
		DB:              0,
		PoolSize:        10,
		MinIdleConns:    2,
		KeyPrefix:       "collab:broadcast:",
		LedgerRetention: 24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "collabengine",
		Password:        "",
		Name:            "collabengine",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultKafkaConfig 返回默认 Kafka 配置
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPrefix:  "collab.agent.",
		AckTopic:     "collab.acks",
		GroupID:      "collabengine",
		BatchTimeout: 10 * time.Millisecond,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "collabengine",
		SampleRate:   0.1,
	}
}
