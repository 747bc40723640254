package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, EngineConfig{}, cfg.Engine)
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, AuthConfig{}, cfg.Auth)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEmpty(t, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, 10, cfg.MaxConcurrentCollaborations)
	assert.Equal(t, 30, cfg.CollaborationTimeoutMinutes)
	assert.Equal(t, 15, cfg.ConflictResolutionTimeoutMinutes)
	assert.Equal(t, 10, cfg.NegotiationRoundsLimit)
	assert.Equal(t, time.Minute, cfg.NegotiationRoundTimeout)
	assert.Equal(t, 0.75, cfg.ConsensusThreshold)
	assert.False(t, cfg.AutoConflictResolution)
	assert.Equal(t, 0.7, cfg.CollaborationQualityThreshold)

	assert.Equal(t, 3, cfg.Broadcast.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Broadcast.AckTimeout)
	assert.Equal(t, 32, cfg.Broadcast.MaxFanout)
	assert.Equal(t, 1, cfg.Advisor.MaxRetries)
	assert.Equal(t, 5, cfg.Advisor.BreakerThreshold)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultAuthConfig(t *testing.T) {
	cfg := DefaultAuthConfig()
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.APIKeys)
	assert.Equal(t, "collabengine", cfg.JWTIssuer)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, "collab:broadcast:", cfg.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.LedgerRetention)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "collabengine", cfg.Name)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.True(t, cfg.AutoMigrate)
}

func TestDefaultKafkaConfig(t *testing.T) {
	cfg := DefaultKafkaConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "collab.agent.", cfg.TopicPrefix)
	assert.Equal(t, "collab.acks", cfg.AckTopic)
	assert.Equal(t, "collabengine", cfg.GroupID)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "collabengine", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
