package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/steam-monitor/internal/config"
	"github.com/Sternrassler/steam-monitor/pkg/logging"
	"github.com/Sternrassler/steam-monitor/pkg/notify"
	"github.com/Sternrassler/steam-monitor/pkg/ratelimit"
	"github.com/Sternrassler/steam-monitor/pkg/refresh"
	"github.com/Sternrassler/steam-monitor/pkg/steamapi"
	"github.com/Sternrassler/steam-monitor/pkg/store"
	"github.com/Sternrassler/steam-monitor/pkg/tracker"
	"github.com/Sternrassler/steam-monitor/pkg/transport"
)

// app holds every wired component of a running monitor.
type app struct {
	cfg          *config.Config
	redis        *redis.Client
	set          *tracker.Set
	resolver     *transport.Resolver
	steam        *steamapi.Client
	dispatcher   *notify.Dispatcher
	orchestrator *refresh.Orchestrator
}

// wireApp builds the monitor from cfg and loads the tracking set.
func wireApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.NeedsRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	resolver, err := newResolver(cfg, a.redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = resolver

	a.steam = steamapi.New(resolver, steamapi.Config{
		StoreBaseURL: cfg.API.StoreBaseURL,
		APIBaseURL:   cfg.API.BaseURL,
		Language:     cfg.API.Language,
	})

	a.set = tracker.NewSet(newStore(cfg, a.redis))
	if err := a.set.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher = notify.NewDispatcher(newNotifier(cfg), newDeduper(a.redis), cfg.Notify.Timeout)

	a.orchestrator = refresh.New(a.set, tracker.NewTask(a.steam), a.dispatcher, orchestratorConfig(cfg))

	logger := logging.NewLogger("wire")
	logger.Debug().
		Str("store", cfg.Store.Backend).
		Strs("relays", resolver.Relays()).
		Int("apps", a.set.Len()).
		Msg("Monitor wired")

	return a, nil
}

// Close waits for pending notifications and releases connections.
func (a *app) Close() error {
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func newResolver(cfg *config.Config, redisClient *redis.Client) (*transport.Resolver, error) {
	relays := transport.DefaultRelays()
	if len(cfg.Transport.Relays) > 0 {
		relays = make([]transport.Adapter, 0, len(cfg.Transport.Relays))
		for _, rc := range cfg.Transport.Relays {
			adapter, err := transport.ParseTemplate(rc.Name, rc.Template)
			if err != nil {
				return nil, fmt.Errorf("transport.relays: %w", err)
			}
			relays = append(relays, adapter)
		}
	}

	tc := transport.DefaultConfig()
	tc.Timeout = cfg.Transport.Timeout
	tc.Retry = transport.RetryConfig{
		MaxAttempts:       cfg.Transport.Attempts,
		InitialBackoff:    cfg.Transport.RetryDelay,
		MaxBackoff:        cfg.Transport.RetryDelay,
		BackoffMultiplier: 1.0,
	}
	tc.RequestsPerSecond = cfg.Transport.RequestsPerSecond
	tc.BreakerFailures = cfg.Transport.BreakerFailures
	tc.BreakerTimeout = cfg.Transport.BreakerTimeout
	if cfg.Transport.UserAgent != "" {
		tc.UserAgent = cfg.Transport.UserAgent
	}

	resolver, err := transport.New(relays, tc)
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	if redisClient != nil && cfg.Transport.Cooldown > 0 {
		cooldowns := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit")).
			WithConfig(ratelimit.Config{DefaultCooldown: cfg.Transport.Cooldown})
		resolver.SetCooldownTracker(cooldowns)
	}
	return resolver, nil
}

func newStore(cfg *config.Config, redisClient *redis.Client) tracker.Store {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return store.NewRedis(redisClient)
	case config.BackendMemory:
		return store.NewMemory()
	default:
		return store.NewFile(cfg.Store.Path)
	}
}

func newNotifier(cfg *config.Config) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logging.NewLogger("notifications"))}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}
	return notifiers
}

func newDeduper(redisClient *redis.Client) notify.Deduper {
	if redisClient == nil {
		return notify.NewMemoryDeduper()
	}
	return notify.NewRedisDeduper(redisClient, notify.DefaultDedupeTTL)
}

func orchestratorConfig(cfg *config.Config) refresh.Config {
	rc := refresh.DefaultConfig()
	rc.Schedule.Pause = cfg.Refresh.RoundPause
	rc.ImportSchedule.Pause = cfg.Refresh.RoundPause
	rc.MaxRounds = cfg.Refresh.MaxRounds
	return rc
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadWith(opts.viper, opts.configFile)
	if err != nil {
		return nil, err
	}

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: opts.logOutput,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
