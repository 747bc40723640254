// 配置文件变更监听器实现。
//
// 轮询配置文件的修改时间，变化后重新加载配置并触发回调。
package config

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrWatcherRunning 表示监听器已经启动
var ErrWatcherRunning = errors.New("config watcher already running")

// Watcher 监听配置文件并在变更后重新加载
type Watcher struct {
	mu sync.RWMutex

	loader   *Loader
	interval time.Duration
	level    *zap.AtomicLevel
	logger   *zap.Logger

	current   *Config
	lastMod   time.Time
	callbacks []func(old, updated *Config)

	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithAtomicLevel 让重新加载后的 log.level 立即作用于该日志级别
func WithAtomicLevel(level *zap.AtomicLevel) WatcherOption {
	return func(w *Watcher) {
		w.level = level
	}
}

// NewWatcher 为 loader 指向的配置文件创建监听器，initial 为当前生效的配置
func NewWatcher(loader *Loader, initial *Config, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		loader:   loader,
		interval: 2 * time.Second,
		logger:   zap.NewNop(),
		current:  initial,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))
	if info, err := os.Stat(loader.configPath); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// OnReload 注册重新加载成功后的回调
func (w *Watcher) OnReload(callback func(old, updated *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Current 返回当前生效的配置
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start 启动轮询，直到 ctx 结束或调用 Stop
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("config watcher started",
		zap.String("path", w.loader.configPath),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop 停止轮询并等待循环退出
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("config watcher stopped")
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check 比较修改时间，变化时重新加载
func (w *Watcher) check() {
	info, err := os.Stat(w.loader.configPath)
	if err != nil {
		return
	}
	if info.ModTime().Equal(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	updated, err := w.loader.Load()
	if err == nil {
		err = updated.Validate()
	}
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous configuration", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	callbacks := make([]func(old, updated *Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.applyLogLevel(updated.Log.Level)
	if groups := restartRequired(old, updated); len(groups) > 0 {
		w.logger.Warn("configuration change requires restart", zap.Strings("groups", groups))
	}
	w.logger.Info("configuration reloaded", zap.String("path", w.loader.configPath))

	for _, cb := range callbacks {
		cb(old, updated)
	}
}

func (w *Watcher) applyLogLevel(text string) {
	if w.level == nil {
		return
	}
	lvl, err := zapcore.ParseLevel(text)
	if err != nil {
		w.logger.Warn("invalid log level in reloaded config", zap.String("level", text))
		return
	}
	if w.level.Level() != lvl {
		w.level.SetLevel(lvl)
	}
}

// restartRequired 返回只在重启后才会生效的已变更分组
func restartRequired(old, updated *Config) []string {
	if old == nil {
		return nil
	}
	var groups []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			groups = append(groups, name)
		}
	}
	check("engine", old.Engine, updated.Engine)
	check("server", old.Server, updated.Server)
	check("auth", old.Auth, updated.Auth)
	check("redis", old.Redis, updated.Redis)
	check("database", old.Database, updated.Database)
	check("kafka", old.Kafka, updated.Kafka)
	check("telemetry", old.Telemetry, updated.Telemetry)
	return groups
}
