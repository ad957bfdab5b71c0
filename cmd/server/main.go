// Package main is the entry point for the adgate server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/ads"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/analytics"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/config"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/endpoints"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/host"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/idle"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/metrics"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/middleware"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig/sources"
	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to TOML configuration file")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("adgate", version)
		return
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: time.RFC3339,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	logger.Log.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Log
	log.Info().
		Str("version", version).
		Str("port", cfg.Server.Port).
		Strs("config_sources", cfg.RemoteConfig.Sources).
		Msg("Starting adgate")

	m := metrics.NewMetrics(cfg.Metrics.Namespace)
	loop := host.NewLoop(cfg.Server.TickInterval.Duration)

	fetcher, closeSources := buildFetcher(cfg.RemoteConfig)
	defer closeSources()

	storeOpts := []remoteconfig.Option{
		remoteconfig.WithDispatcher(loop),
		remoteconfig.WithObserver(m),
	}
	if cfg.RemoteConfig.SnapshotPath != "" {
		storeOpts = append(storeOpts, remoteconfig.WithSnapshot(remoteconfig.NewSnapshotFile(cfg.RemoteConfig.SnapshotPath)))
	}
	store := remoteconfig.NewStore(remoteconfig.DefaultCatalogue(), fetcher, storeOpts...)

	sink := analytics.Multi{analytics.NewLogSink()}
	var recorder *analytics.Recorder
	if cfg.Analytics.CollectorURL != "" {
		recorder = analytics.NewRecorder(cfg.Analytics.CollectorURL, cfg.Analytics.BufferSize)
		sink = append(sink, recorder)
		log.Info().Str("session_id", recorder.SessionID()).Msg("Analytics collector enabled")
	}

	gate := ads.NewGate(store)
	gate.SetNoAds(cfg.Ads.NoAds)

	router, err := buildRouter(ctx, cfg.Ads, store, ads.Deps{
		Gate:       gate,
		Sink:       sink,
		Observer:   m,
		Dispatcher: loop,
	})
	if err != nil {
		return err
	}

	var action idle.Action
	if router != nil && router.Interstitial() != nil {
		action = router.Interstitial().IdleAction()
	}
	trigger := idle.New(idleConfig(store), action,
		idle.WithEnabled(store.IdleAdsEnabled),
		idle.WithObserver(m),
	)

	loop.OnTick(func(f host.Frame) {
		trigger.Tick(f.Delta, f.Interacted)
		if router != nil {
			router.Update(f.Now)
		}
	})

	store.RunAfterReady(func() {
		cfg := idleConfig(store)
		trigger.SetThreshold(cfg.Threshold)
		trigger.SetMinInterval(cfg.MinInterval)
	})
	if router != nil {
		store.RunAfterReady(func() { router.Start(ctx) })
	}

	auth := middleware.NewAuth(middleware.NewAuthConfig(cfg.Server.APIKeys), m.AuthFailures.Inc)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.Burst,
	}, m.RateLimitRejected.Inc)
	sizeLimiter := middleware.NewSizeLimiter(middleware.SizeLimitConfig{
		MaxBodySize: cfg.Server.MaxBodyBytes,
	})

	mux := http.NewServeMux()
	mux.Handle("/health", endpoints.HealthHandler{})
	mux.Handle("/status", endpoints.NewStatusHandler(store, trigger, router))
	mux.Handle("/config", endpoints.NewConfigHandler(store))
	mux.Handle("/interact", endpoints.NewInteractHandler(loop))
	if router != nil {
		endpoints.NewAdsHandler(router, loop).Register(mux)
	}
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	var handler http.Handler = mux
	handler = sizeLimiter.Middleware(handler)
	handler = limiter.Middleware(handler)
	handler = auth.Middleware(handler)
	handler = m.Middleware(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.RequestLog(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})

	store.BeginFetch(gctx)
	g.Go(func() error {
		if err := store.WaitUntilReady(gctx, cfg.RemoteConfig.ReadyTimeout.Duration); err != nil {
			log.Warn().Err(err).Msg("Continuing with default config values")
			return nil
		}
		log.Info().Msg("Remote config ready")
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.RateLimit.Enabled {
		g.Go(func() error {
			every(gctx, time.Minute, func() { limiter.Sweep() })
			return nil
		})
	}

	if recorder != nil {
		g.Go(func() error {
			every(gctx, cfg.Analytics.FlushInterval.Duration, func() {
				flushCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
				defer cancel()
				if err := recorder.Flush(flushCtx); err != nil {
					log.Warn().Err(err).Msg("Analytics flush failed")
				}
			})
			return recorder.Close()
		})
	}

	return g.Wait()
}

// buildFetcher chains the configured sources in order. It returns a nil
// fetcher when none is configured so the store falls back to defaults.
func buildFetcher(cfg config.RemoteConfigConfig) (remoteconfig.Fetcher, func()) {
	log := logger.RemoteConfig()

	var (
		chain   sources.Chain
		closers []func() error
	)
	for _, name := range cfg.Sources {
		switch name {
		case config.SourceHTTP:
			chain = append(chain, sources.Named{
				Name:    name,
				Fetcher: sources.NewHTTPSource(cfg.HTTP.URL, cfg.FetchTimeout.Duration, cfg.HTTP.APIKey),
			})
		case config.SourceRedis:
			src, err := sources.NewRedisSource(cfg.Redis.URL, cfg.Redis.Key)
			if err != nil {
				log.Warn().Err(err).Msg("Redis config source disabled")
				continue
			}
			closers = append(closers, src.Close)
			chain = append(chain, sources.Named{Name: name, Fetcher: src})
		case config.SourceLaunchDarkly:
			src, err := sources.NewLaunchDarklySource(sources.LaunchDarklyConfig{
				SDKKey:     cfg.LaunchDarkly.SDKKey,
				BaseURI:    cfg.LaunchDarkly.BaseURI,
				ContextKey: cfg.LaunchDarkly.ContextKey,
				InitWait:   cfg.LaunchDarkly.InitWait.Duration,
			})
			if err != nil {
				log.Warn().Err(err).Msg("LaunchDarkly config source disabled")
				continue
			}
			closers = append(closers, src.Close)
			chain = append(chain, sources.Named{Name: name, Fetcher: src})
		case config.SourceStatic:
			chain = append(chain, sources.Named{Name: name, Fetcher: sources.Static(cfg.Static)})
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close config source")
			}
		}
	}
	if len(chain) == 0 {
		return nil, closeAll
	}

	timeout := cfg.FetchTimeout.Duration
	return remoteconfig.FetcherFunc(func(ctx context.Context) (map[string]float64, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return chain.Fetch(ctx)
	}), closeAll
}

// buildRouter creates the ad managers behind the SDK bridge. It returns nil
// when no bridge is configured.
func buildRouter(ctx context.Context, cfg config.AdsConfig, store *remoteconfig.Store, deps ads.Deps) (*ads.Router, error) {
	if cfg.BridgeURL == "" {
		logger.Log.Info().Msg("No ad bridge configured, ads disabled")
		return nil, nil
	}

	units := make(ads.Units, len(cfg.Units))
	for name, unit := range cfg.Units {
		format, err := ads.ParseFormat(name)
		if err != nil {
			return nil, fmt.Errorf("ads.units: %w", err)
		}
		units[format] = unit
	}

	bridge := ads.NewBridge(cfg.BridgeURL, cfg.LoadTimeout.Duration, cfg.BridgeAPIKey)
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := bridge.HealthCheck(healthCtx); err != nil {
		logger.Log.Warn().Err(err).Str("url", cfg.BridgeURL).Msg("Ad bridge not reachable yet")
	}

	deps.SDK = bridge
	return ads.NewRouter(ads.RouterConfig{
		Units:                units,
		InterstitialCooldown: func() time.Duration { return store.Seconds(remoteconfig.KeyCountDown) },
		AppOpenStartDelay:    func() time.Duration { return store.Seconds(remoteconfig.KeyTimeLoadStartApp) },
	}, deps)
}

// idleConfig reads the trigger timings from the store. Before readiness these
// are the snapshot or catalogue values.
func idleConfig(store *remoteconfig.Store) idle.Config {
	return idle.Config{
		Threshold:   store.Seconds(remoteconfig.KeyIdleTime),
		MinInterval: store.Seconds(remoteconfig.KeyIdleMinInterval),
	}
}

// every runs fn at each interval until ctx is done
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
