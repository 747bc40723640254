package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/collabengine/config"
	"github.com/BaSui01/collabengine/internal/migration"
	"github.com/BaSui01/collabengine/testutil"
	"github.com/BaSui01/collabengine/testutil/fixtures"
	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	color.NoColor = true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "CollabEngine "+Version)
	assert.Contains(t, out, "Git Commit: "+GitCommit)
}

func TestHealthCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "health", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	_, err = execute(t, "health", "--addr", srv.URL, "--ready")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

// fakeMigrator 内存迁移器
type fakeMigrator struct {
	version uint
	total   uint
	closed  bool
}

func (f *fakeMigrator) Up(context.Context) error {
	f.version = f.total
	return nil
}

func (f *fakeMigrator) Down(context.Context) error {
	if f.version == 0 {
		return errors.New("no migration to roll back")
	}
	f.version--
	return nil
}

func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	v := int(f.version) + n
	if v < 0 || v > int(f.total) {
		return errors.New("out of range")
	}
	f.version = uint(v)
	return nil
}

func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.version = uint(max(v, 0))
	return nil
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) { return f.version, false, nil }

func (f *fakeMigrator) Status(context.Context) ([]migration.MigrationStatus, error) {
	out := make([]migration.MigrationStatus, 0, f.total)
	for v := uint(1); v <= f.total; v++ {
		out = append(out, migration.MigrationStatus{Version: v, Name: "records", Applied: v <= f.version})
	}
	return out, nil
}

func (f *fakeMigrator) Info(context.Context) (*migration.MigrationInfo, error) {
	return &migration.MigrationInfo{
		CurrentVersion:    f.version,
		TotalMigrations:   int(f.total),
		AppliedMigrations: int(f.version),
		PendingMigrations: int(f.total - f.version),
	}, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func TestMigrateCmd(t *testing.T) {
	fake := &fakeMigrator{total: 2}
	var gotOpts migrateOptions
	prev := openMigrator
	openMigrator = func(opts migrateOptions) (migration.Migrator, error) {
		gotOpts = opts
		return fake, nil
	}
	t.Cleanup(func() { openMigrator = prev })

	out, err := execute(t, "migrate", "up", "--db-type", "postgres", "--db-url", "postgres://x")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations complete. Current version: 2")
	assert.Equal(t, "postgres", gotOpts.dbType)
	assert.Equal(t, "postgres://x", gotOpts.dbURL)
	assert.True(t, fake.closed)

	out, err = execute(t, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")

	out, err = execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied")
	assert.Contains(t, out, "Pending")
	assert.Contains(t, out, "Total: 2, Applied: 1, Pending: 1")

	_, err = execute(t, "migrate", "steps", "1")
	require.NoError(t, err)
	assert.Equal(t, uint(2), fake.version)

	_, err = execute(t, "migrate", "steps", "zero")
	assert.Error(t, err)

	out, err = execute(t, "migrate", "force", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Version forced to 1")

	out, err = execute(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")
}

func TestOpenMigrator_RejectsSQLite(t *testing.T) {
	_, err := openMigrator(migrateOptions{dbType: "sqlite", dbURL: "file.db"})
	assert.ErrorIs(t, err, migration.ErrAutoMigrateOnly)

	_, err = openMigrator(migrateOptions{dbURL: "postgres://x"})
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	logger, level, err := initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, "debug", level.String())

	_, _, err = initLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\nengine:\n  negotiation_rounds_limit: 4\n"), 0o600))

	cfg, _, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 4, cfg.Engine.NegotiationRoundsLimit)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("engine:\n  consensus_threshold: 3\n"), 0o600))
	_, _, err = loadConfig(bad)
	assert.Error(t, err)
}

func localURL(t *testing.T, addr, path string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return "http://127.0.0.1:" + port + path
}

func TestApp_ServesWithSQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "records.db")
	cfg.Database.AutoMigrate = true
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	testutil.AssertEventuallyTrue(t, func() bool { return a.api.IsRunning() && a.metrics.IsRunning() }, 2*time.Second)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(localURL(t, a.api.Addr(), "/ready"))
	require.NoError(t, err)
	var ready struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", ready.Status)
	assert.Contains(t, ready.Checks, "database")
	assert.Contains(t, ready.Checks, "redis")
	assert.Contains(t, ready.Checks, "records")

	body, err := json.Marshal(fixtures.DiamondTask())
	require.NoError(t, err)
	resp, err = client.Post(localURL(t, a.api.Addr(), "/api/v1/tasks"), "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = client.Get(localURL(t, a.metrics.Addr(), "/metrics"))
	require.NoError(t, err)
	var metricsBody bytes.Buffer
	_, _ = metricsBody.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(metricsBody.String(), "collabengine_"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
