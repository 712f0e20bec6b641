package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/citemetric/scholarcrawl/internal/backoff"
	"github.com/citemetric/scholarcrawl/internal/blockdetect"
	"github.com/citemetric/scholarcrawl/internal/clock/system"
	"github.com/citemetric/scholarcrawl/internal/config"
	"github.com/citemetric/scholarcrawl/internal/extract"
	"github.com/citemetric/scholarcrawl/internal/fetchctl"
	directfetcher "github.com/citemetric/scholarcrawl/internal/fetcher/direct"
	headlessfetcher "github.com/citemetric/scholarcrawl/internal/fetcher/headless"
	"github.com/citemetric/scholarcrawl/internal/governor"
	"github.com/citemetric/scholarcrawl/internal/identity"
	"github.com/citemetric/scholarcrawl/internal/logging"
	"github.com/citemetric/scholarcrawl/internal/output"
	"github.com/citemetric/scholarcrawl/internal/progress"
	progresssinks "github.com/citemetric/scholarcrawl/internal/progress/sinks"
	"github.com/citemetric/scholarcrawl/internal/scholar"
	"github.com/citemetric/scholarcrawl/internal/scrape"
	"github.com/citemetric/scholarcrawl/internal/status"
)

// app holds the assembled scrape pipeline for one CLI invocation.
type app struct {
	cfg          config.Config
	logger       *zap.Logger
	hub          *progress.Hub
	statusServer *status.Server
	headless     *headlessfetcher.Fetcher
	batch        *scrape.BatchScraper
	runID        [16]byte
}

// buildApp assembles the full pipeline from configuration.
func buildApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	runID := progress.UUIDToBytes(uuid.New())
	logger.Info("starting run", zap.String("run_id", uuid.UUID(runID).String()))

	pool, err := buildIdentityPool(cfg.Identity)
	if err != nil {
		return nil, err
	}

	sinks := []progress.Sink{progresssinks.NewLogSink(logger)}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, promSink)

	var statusServer *status.Server
	if cfg.Status.Addr != "" {
		tracker := status.NewTracker()
		sinks = append(sinks, tracker)
		statusServer = status.NewServer(cfg.Status.Addr, tracker, prometheus.DefaultGatherer, logger)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks...)

	gov := governor.New(governor.Config{
		Enabled:   cfg.Governor.Enabled,
		Threshold: cfg.Governor.BlockThreshold,
		Window:    cfg.Governor.Window,
		Pause:     cfg.Governor.Pause,
	}, system.New(), logger)
	gov.SetNotifier(&pauseNotifier{emitter: hub, runID: runID})

	fetcher, headless, err := buildFetcher(cfg)
	if err != nil {
		return nil, err
	}

	controller := fetchctl.New(
		fetchctl.Config{
			BlockRetryLimit: cfg.Retry.BlockLimit,
			HardRetryLimit:  cfg.Retry.HardLimit,
			DelayMin:        cfg.Delay.Min,
			DelayMax:        cfg.Delay.Max,
			FetchTimeout:    cfg.Fetcher.Timeout,
			HostQPS:         cfg.RateLimit.HostQPS,
		},
		fetcher,
		blockdetect.New(cfg.Detector.Signatures),
		pool,
		gov,
		backoff.NewPolicy(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, cfg.Retry.HardDelay),
		hub,
		runID,
		logger,
	)

	profileScraper := scrape.NewProfileScraper(
		scrape.ProfileConfig{
			PageSize:          cfg.Scrape.PageSize,
			DetailConcurrency: cfg.Scrape.PaperConcurrency,
			MaxPublications:   cfg.Scrape.MaxPublications,
		},
		controller,
		extract.New(),
		hub,
		runID,
		logger,
	)

	writer, err := output.NewWriter(cfg.Scrape.OutputDir)
	if err != nil {
		return nil, err
	}

	batch := scrape.NewBatchScraper(
		scrape.BatchConfig{
			Concurrency:    cfg.Scrape.AuthorConcurrency,
			ProfileTimeout: cfg.Scrape.ProfileTimeout,
		},
		profileScraper,
		writer,
		hub,
		runID,
		logger,
	)

	if statusServer != nil {
		statusServer.Start()
	}
	return &app{
		cfg:          cfg,
		logger:       logger,
		hub:          hub,
		statusServer: statusServer,
		headless:     headless,
		batch:        batch,
		runID:        runID,
	}, nil
}

// Close tears the pipeline down in reverse dependency order.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	if a.statusServer != nil {
		if err := a.statusServer.Shutdown(ctx); err != nil {
			a.logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	_ = a.logger.Sync()
}

func buildIdentityPool(cfg config.IdentityConfig) (*identity.Pool, error) {
	var userAgents, proxies []string
	if cfg.UserAgentsFile != "" {
		lines, err := identity.LoadLines(cfg.UserAgentsFile)
		if err != nil {
			return nil, fmt.Errorf("load user agents: %w", err)
		}
		userAgents = lines
	}
	if cfg.ProxiesFile != "" {
		lines, err := identity.LoadLines(cfg.ProxiesFile)
		if err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		proxies = lines
	}
	if cfg.Proxy != "" {
		proxies = append(proxies, cfg.Proxy)
	}
	return identity.New(identity.Config{
		UserAgents: userAgents,
		Proxies:    proxies,
		Jitter:     true,
	}), nil
}

func buildFetcher(cfg config.Config) (scholar.Fetcher, *headlessfetcher.Fetcher, error) {
	switch cfg.Fetcher.Variant {
	case config.FetcherHeadless:
		f, err := headlessfetcher.New(headlessfetcher.Config{
			Visible:           cfg.Headless.Visible,
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: cfg.Headless.NavTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, f, nil
	default:
		return directfetcher.New(directfetcher.Config{Timeout: cfg.Fetcher.Timeout}), nil, nil
	}
}

// pauseNotifier bridges governor pause transitions into progress events.
type pauseNotifier struct {
	emitter progress.Emitter
	runID   [16]byte
}

func (n *pauseNotifier) PauseStarted(until time.Time) {
	n.emitter.Emit(progress.Event{
		RunID: n.runID,
		TS:    time.Now().UTC(),
		Stage: progress.StagePauseStart,
		Note:  "paused until " + until.UTC().Format(time.RFC3339),
	})
}

func (n *pauseNotifier) PauseEnded(dur time.Duration) {
	n.emitter.Emit(progress.Event{
		RunID: n.runID,
		TS:    time.Now().UTC(),
		Stage: progress.StagePauseEnd,
		Dur:   dur,
	})
}
