// Package bootstrap wires together all components of the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/costboard/adapters/cache"
	"github.com/artpar/costboard/adapters/clock"
	"github.com/artpar/costboard/adapters/hasher"
	apihttp "github.com/artpar/costboard/adapters/http"
	"github.com/artpar/costboard/adapters/identity"
	"github.com/artpar/costboard/adapters/idgen"
	"github.com/artpar/costboard/adapters/memory"
	"github.com/artpar/costboard/adapters/metrics"
	"github.com/artpar/costboard/adapters/remote"
	"github.com/artpar/costboard/adapters/sqlite"
	"github.com/artpar/costboard/app"
	"github.com/artpar/costboard/config"
	"github.com/artpar/costboard/domain/ratelimit"
	"github.com/artpar/costboard/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App is the assembled application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *sqlite.DB // nil when snapshots are kept in memory
	Store      ports.SnapshotStore
	Source     ports.UsageSource // cached when Redis is configured
	Redis      *redis.Client
	Metrics    *metrics.Collector
	Billing    *app.BillingService
	Snapshots  *app.SnapshotService
	HTTPServer *http.Server

	clock        ports.Clock
	live         ports.UsageSource
	usageCache   *cache.UsageCache
	limiter      *memory.Limiter
	holder       *config.Holder
	shutdownOnce sync.Once
}

// Options customizes construction. The zero value is valid.
type Options struct {
	Version string
	Commit  string

	// Registry receives metrics. Nil uses a fresh registry.
	Registry *prometheus.Registry
	// Clock overrides the wall clock.
	Clock ports.Clock
	// LogOutput overrides stdout for logs.
	LogOutput io.Writer
}

// New creates the application from a loaded configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	a := &App{
		Config: cfg,
		Logger: setupLogger(cfg.Logging, opts.LogOutput),
		clock:  clk,
	}

	if cfg.Metrics.Enabled {
		reg := opts.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		a.Metrics = metrics.NewWithRegistry(reg)
	}

	if err := a.initStore(clk); err != nil {
		return nil, err
	}
	if err := a.initSource(); err != nil {
		a.Shutdown()
		return nil, err
	}

	// A nil *metrics.Collector must not reach the services as a non-nil interface.
	var m app.Metrics
	if a.Metrics != nil {
		m = a.Metrics
	}

	a.Billing = app.NewBillingService(a.Store, a.Source, clk, a.Logger, m)
	snapCfg := app.SnapshotServiceConfig{
		Timezone: cfg.Snapshots.Timezone,
		Interval: cfg.Snapshots.Interval,
	}
	if a.usageCache != nil {
		// The new period starts at the stored dataset; a cached one may predate it.
		snapCfg.AfterClose = a.usageCache.Invalidate
	}
	// Snapshots always read the upstream directly.
	a.Snapshots = app.NewSnapshotService(a.Store, a.live, idgen.UUID{}, a.Logger, m, snapCfg)

	if err := a.initHTTPServer(opts); err != nil {
		a.Shutdown()
		return nil, err
	}

	a.Logger.Info().
		Str("upstream", cfg.Upstream.URL).
		Bool("cache", a.Redis != nil).
		Bool("metrics", a.Metrics != nil).
		Dur("snapshot_interval", cfg.Snapshots.Interval).
		Msg("application initialized")

	return a, nil
}

// NewWithHotReload creates the application with a config file that is
// watched for changes and reloaded on SIGHUP.
func NewWithHotReload(path string, opts Options) (*App, error) {
	bootLogger := setupLogger(config.LoggingConfig{}, opts.LogOutput)

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get(), opts)
	if err != nil {
		return nil, err
	}
	a.holder = holder

	holder.OnChange(a.applyConfig)
	holder.OnReloadResult(func(err error) {
		a.Metrics.ConfigReloaded(time.Now(), err)
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP only")
	}
	holder.WatchSignals()

	return a, nil
}

// applyConfig applies the reloadable subset of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Snapshots.SetInterval(cfg.Snapshots.Interval)
}

func (a *App) initStore(clk ports.Clock) error {
	if a.Config.Database.Memory {
		a.Store = memory.NewSnapshotStore(clk)
		a.Logger.Warn().Msg("snapshots kept in memory, history is lost on restart")
		return nil
	}

	db, err := sqlite.Open(a.Config.Database.DSN)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Store = sqlite.NewSnapshotStore(db, clk)
	a.Logger.Info().Str("dsn", a.Config.Database.DSN).Msg("database initialized")
	return nil
}

func (a *App) initSource() error {
	up := a.Config.Upstream

	client := remote.NewClient(remote.ClientConfig{
		BaseURL: up.URL,
		APIKey:  up.AdminToken,
		Timeout: up.Timeout,
		Headers: up.Headers,
		Retry: remote.RetryConfig{
			Attempts:  up.Retry.Attempts,
			BaseDelay: up.Retry.BaseDelay,
			MaxDelay:  up.Retry.MaxDelay,
		},
	})

	a.live = remote.NewUsageSource(client, remote.UsageSourceConfig{
		Path:     up.Path,
		PageSize: up.PageSize,
	})
	a.Source = a.live

	if addr := a.Config.Cache.RedisAddr; addr != "" {
		rdb := cache.NewClient(addr)
		if err := cache.Ping(context.Background(), rdb); err != nil {
			rdb.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = rdb
		a.usageCache = cache.NewUsageCache(a.live, rdb, cache.Config{
			Key: a.Config.Cache.Key,
			TTL: a.Config.Cache.TTL,
		}, a.Logger)
		a.Source = a.usageCache
		a.Logger.Info().Dur("ttl", a.Config.Cache.TTL).Msg("usage cache enabled")
	}
	return nil
}

func (a *App) initHTTPServer(opts Options) error {
	cfg := a.Config

	h := hasher.NewBcrypt(cfg.Auth.BcryptCost)

	keys := make([]identity.Key, 0, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		keys = append(keys, identity.Key{UserID: k.UserID, KeyHash: k.KeyHash})
	}
	resolver := identity.NewKeyResolver(keys, h)

	var checker apihttp.HealthChecker
	if a.DB != nil {
		checker = a.DB
	}

	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		EnableMetrics:  a.Metrics != nil,
		EnableOpenAPI:  cfg.OpenAPI.Enabled,
		Version:        opts.Version,
		Commit:         opts.Commit,
		BillingHandler: apihttp.NewBillingHandler(a.Billing, resolver, a.Logger),
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Auth.AdminTokenHash != "" {
		routerCfg.AdminHandler = apihttp.NewAdminHandler(a.Snapshots, h, cfg.Auth.AdminTokenHash, a.Logger)
	} else {
		a.Logger.Warn().Msg("admin token hash not set, admin endpoints disabled")
	}

	if rl := cfg.RateLimit; rl.RequestsPerMinute > 0 {
		a.limiter = memory.NewLimiter(ratelimit.Policy{
			Limit:  rl.RequestsPerMinute,
			Window: time.Minute,
			Burst:  rl.Burst,
		}, memory.LimiterConfig{})
		routerCfg.RateLimiter = a.limiter
		routerCfg.Clock = a.clock
		a.Logger.Info().Int("rpm", rl.RequestsPerMinute).Int("burst", rl.Burst).Msg("api rate limit enabled")
	}

	router := apihttp.NewRouter(apihttp.NewHealthHandler(checker), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Int("keys", resolver.Len()).Msg("identity resolver ready")
	return nil
}

// Run starts the server and the snapshot loop, then blocks until
// SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	a.Snapshots.Start()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Safe to call more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(a.shutdown)
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.Snapshots != nil {
		a.Snapshots.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.limiter != nil {
		a.limiter.Close()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
