// Package app assembles the sorter from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parcel-sorter/internal/core/broker"
	"parcel-sorter/internal/core/cache"
	"parcel-sorter/internal/core/config"
	"parcel-sorter/internal/core/httpclient"
	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/core/metrics"
	"parcel-sorter/internal/core/server"
	chuteadapters "parcel-sorter/internal/features/chute/adapters"
	chutedomain "parcel-sorter/internal/features/chute/domain"
	chuteports "parcel-sorter/internal/features/chute/ports"
	chuteservice "parcel-sorter/internal/features/chute/service"
	congestiondomain "parcel-sorter/internal/features/congestion/domain"
	congestionservice "parcel-sorter/internal/features/congestion/service"
	execadapters "parcel-sorter/internal/features/execution/adapters"
	execservice "parcel-sorter/internal/features/execution/service"
	healthhandler "parcel-sorter/internal/features/health/handler"
	healthservice "parcel-sorter/internal/features/health/service"
	ingressservice "parcel-sorter/internal/features/ingress/service"
	rerouteadapters "parcel-sorter/internal/features/reroute/adapters"
	reroutehandler "parcel-sorter/internal/features/reroute/handler"
	rerouteports "parcel-sorter/internal/features/reroute/ports"
	rerouteservice "parcel-sorter/internal/features/reroute/service"
	sortingadapters "parcel-sorter/internal/features/sorting/adapters"
	sortinghandler "parcel-sorter/internal/features/sorting/handler"
	sortingports "parcel-sorter/internal/features/sorting/ports"
	sortingservice "parcel-sorter/internal/features/sorting/service"
	topologyadapters "parcel-sorter/internal/features/topology/adapters"
	topologyhandler "parcel-sorter/internal/features/topology/handler"
	topologyports "parcel-sorter/internal/features/topology/ports"
	topologyservice "parcel-sorter/internal/features/topology/service"
	trackingadapters "parcel-sorter/internal/features/tracking/adapters"
	trackinghandler "parcel-sorter/internal/features/tracking/handler"
	trackingports "parcel-sorter/internal/features/tracking/ports"
	trackingservice "parcel-sorter/internal/features/tracking/service"
)

const shutdownTimeout = 10 * time.Second

// Options overrides the infrastructure New would otherwise build from config.
type Options struct {
	// Source replaces the topology file.
	Source topologyports.TopologySource
	// Broker replaces the MQTT connection.
	Broker broker.Broker
	// Cache replaces the Redis connection.
	Cache cache.Cache
}

// Application is the wired sorter.
type Application struct {
	Config       *config.AppConfig
	Server       *server.Server
	Metrics      *metrics.Collector
	Orchestrator *sortingservice.Orchestrator
	Generator    *topologyservice.Generator
	Health       *healthservice.Registry
	Tracking     *trackingservice.TrackingService
	Execution    *execservice.Service
	Driver       *execadapters.SimulatedDriver
	Buses        *execservice.Buses
	Monitors     *ingressservice.Monitors
	// Ingress is nil when sensor ingress is disabled.
	Ingress *ingressservice.SensorSubscriber

	closers []func() error
}

// New builds every component. Configuration problems are reported together.
func New(ctx context.Context, cfg *config.AppConfig, opts Options) (*Application, error) {
	log := logger.Named("app")
	a := &Application{Config: cfg, Metrics: metrics.NewCollector()}

	b, err := a.broker(cfg, opts)
	if err != nil {
		return nil, err
	}
	store, err := a.cache(ctx, cfg, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	source := opts.Source
	if source == nil {
		source = topologyadapters.NewFileSource(cfg.TopologyFile)
	}
	a.Health = healthservice.NewRegistry(nil, cfg.Health.LineDegradedRatio)
	a.Generator, err = topologyservice.NewGenerator(ctx, source, a.Health, cfg.Sorter.ExceptionChuteID, cfg.Sorter.PathCacheSize)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load topology: %w", err)
	}
	nodeIDs := a.Generator.Topology().NodeIDs()
	a.Health.SetKnownNodes(nodeIDs)

	var archive trackingports.TrackingArchive
	if store != nil {
		archive = trackingadapters.NewRedisArchive(store, time.Duration(cfg.Redis.TrackingArchiveTTLHours)*time.Hour)
	}
	a.Tracking = trackingservice.NewTrackingService(archive)

	var errs error
	upstream, err := a.upstream(cfg, b)
	errs = multierr.Append(errs, err)
	notifier, err := a.notifier(cfg, b)
	errs = multierr.Append(errs, err)
	if errs != nil {
		a.Close()
		return nil, errs
	}

	executions := sortingservice.NewExecutions()
	replanCutoff := ms(cfg.Sorter.ReplanCutoffMs)
	var repo rerouteports.PlanRepository = rerouteadapters.NewMemoryRepository()
	if cfg.Redis.RoutePlanStore == config.RoutePlanStoreRedis {
		repo = rerouteadapters.NewRedisRepository(store, ms(cfg.Sorter.ParcelTTLMs)+replanCutoff)
	}
	plans := rerouteservice.NewService(repo, sortingservice.NewReplanner(a.Generator, a.Tracking, executions), replanCutoff)

	a.Driver = execadapters.NewSimulatedDriver(ms(cfg.Simulation.LatencyMs), cfg.Simulation.FailingDiverters)
	a.Buses = execservice.NewBuses(cfg.Sorter.EventBufferSize, a.Metrics.RecordEventDropped)
	a.closers = append(a.closers, func() error { a.Buses.Close(); return nil })
	a.Execution = execservice.NewService(
		execservice.NewDriverExecutor(a.Driver),
		execservice.NewFallbackHandler(a.Generator),
		a.Driver,
		a.Buses,
	)

	a.Orchestrator = sortingservice.NewOrchestrator(sortingservice.Config{
		SortingMode:      chutedomain.SortingMode(cfg.Sorter.SortingMode),
		ExceptionChuteID: cfg.Sorter.ExceptionChuteID,
		ParcelTTL:        ms(cfg.Sorter.ParcelTTLMs),
		ArrivalWindow:    ms(cfg.Sorter.ArrivalWindowMs),
	}, sortingservice.Dependencies{
		Tracking:   a.Tracking,
		Plans:      plans,
		Window:     congestionservice.NewMetricsWindow(time.Duration(cfg.Congestion.WindowSeconds) * time.Second),
		Detector:   congestionservice.NewDetector(thresholds(cfg.Congestion)),
		Policy:     congestionservice.NewPolicy(policy(cfg.Overload)),
		Selector:   chuteservice.NewSelector(selectorConfig(cfg.Sorter), upstream),
		Generator:  a.Generator,
		Rebuilder:  a.Generator,
		Nodes:      a.Health,
		Executor:   a.Execution,
		Executions: executions,
		Notifier:   notifier,
		Metrics:    a.Metrics,
	})

	a.Monitors, err = ingressservice.NewMonitors(ingressservice.MonitorConfig{
		ParcelTimeout:   ms(cfg.Monitor.ParcelTimeoutMs),
		LostAfter:       ms(cfg.Monitor.ParcelLostAfterMs),
		Retention:       time.Duration(cfg.Monitor.RetentionMinutes) * time.Minute,
		MonitorSchedule: cfg.Monitor.MonitorSchedule,
		CleanupSchedule: cfg.Monitor.CleanupSchedule,
	}, a.Tracking, a.Orchestrator)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.MQTT.IngressEnabled {
		a.Ingress = ingressservice.NewSensorSubscriber(b, cfg.MQTT.SensorTopic, a.Orchestrator, ms(cfg.Monitor.SensorDebounceMs))
	}

	if err := a.Execution.ResetDiverters(ctx, nodeIDs); err != nil {
		log.Warn("Some diverters did not reset", zap.Error(err))
	}

	a.Server = server.New(cfg, a.Metrics.Handler())
	a.routes(plans)

	log.Info("Sorter assembled",
		zap.String("sorting_mode", cfg.Sorter.SortingMode),
		zap.String("upstream_mode", cfg.Upstream.Mode),
		zap.Int("diverters", len(nodeIDs)),
		zap.Bool("ingress", a.Ingress != nil),
	)
	return a, nil
}

func (a *Application) routes(plans *rerouteservice.Service) {
	health := healthhandler.NewHealthHandler(a.Health)
	topology := topologyhandler.NewTopologyHandler(a.Orchestrator, a.Generator)
	tracking := trackinghandler.NewTrackingHandler(a.Tracking)
	sorting := sortinghandler.NewSortingHandler(a.Orchestrator)
	reroute := reroutehandler.NewRerouteHandler(plans)

	api := a.Server.App.Group("/api")
	api.Get("/health/nodes", health.ListNodes)
	api.Put("/health/nodes/:id", health.UpdateNode)
	api.Get("/health/degradation", health.GetDegradation)
	api.Post("/topology/rebuild", topology.Rebuild)
	api.Get("/topology/paths/:chute", topology.GetPath)
	api.Get("/parcels/active", tracking.GetActive)
	api.Get("/parcels/:id", tracking.GetParcel)
	api.Post("/debug/sort", sorting.DebugSort)
	api.Post("/sorting/chute-change", reroute.ChangeChute)
}

func (a *Application) broker(cfg *config.AppConfig, opts Options) (broker.Broker, error) {
	if opts.Broker != nil {
		return opts.Broker, nil
	}
	if cfg.Upstream.Mode != config.UpstreamModeMQTT && !cfg.MQTT.IngressEnabled {
		return nil, nil
	}
	client, err := broker.Connect(cfg.MQTT)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { client.Close(); return nil })
	return client, nil
}

func (a *Application) cache(ctx context.Context, cfg *config.AppConfig, opts Options) (cache.Cache, error) {
	if opts.Cache != nil {
		return opts.Cache, nil
	}
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	adapter, err := cache.NewRedisAdapter(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, adapter.Close)
	if err := adapter.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return adapter, nil
}

func (a *Application) upstream(cfg *config.AppConfig, b broker.Broker) (chuteports.UpstreamRouter, error) {
	switch cfg.Upstream.Mode {
	case config.UpstreamModeMQTT:
		router, err := chuteadapters.NewMQTTRouter(b, cfg.MQTT.DetectedTopic, cfg.MQTT.AssignmentTopic)
		if err != nil {
			return nil, fmt.Errorf("subscribe to chute assignments: %w", err)
		}
		return router, nil
	case config.UpstreamModeHTTP:
		client := httpclient.NewRetryableClient(ms(cfg.Sorter.ChuteAssignmentTimeoutMs), cfg.Upstream.HTTPRetryMax)
		return chuteadapters.NewHTTPRouter(cfg.Upstream.HTTPURL, client), nil
	default:
		return nil, nil
	}
}

func (a *Application) notifier(cfg *config.AppConfig, b broker.Broker) (sortingports.Notifier, error) {
	switch {
	case cfg.Upstream.NotificationSinkURL != "":
		n, err := sortingadapters.NewCloudEventsNotifier(cfg.Upstream.NotificationSinkURL)
		if err != nil {
			return nil, fmt.Errorf("notification sink: %w", err)
		}
		return n, nil
	case cfg.Upstream.Mode == config.UpstreamModeMQTT:
		return sortingadapters.NewMQTTNotifier(b, cfg.MQTT.CompletedTopic), nil
	default:
		return nil, nil
	}
}

// Run serves until ctx is done or a component fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Server.Run(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		execservice.Observe(ctx, a.Buses, a.Metrics)
		return nil
	})
	g.Go(func() error {
		return a.Monitors.Run(ctx)
	})
	if a.Ingress != nil {
		g.Go(func() error {
			return a.Ingress.Run(ctx)
		})
	}

	err := g.Wait()
	a.Orchestrator.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the broker, cache and event buses.
func (a *Application) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func thresholds(c config.CongestionConfig) congestiondomain.Thresholds {
	return congestiondomain.Thresholds{
		InFlightWarning:    c.InFlightWarning,
		InFlightSevere:     c.InFlightSevere,
		LatencyWarning:     ms(c.LatencyWarningMs),
		LatencySevere:      ms(c.LatencySevereMs),
		SuccessRateWarning: c.SuccessRateWarning,
		SuccessRateSevere:  c.SuccessRateSevere,
		MinSamples:         c.MinSamplesSuccessRate,
	}
}

func policy(c config.OverloadConfig) congestiondomain.PolicyConfig {
	return congestiondomain.PolicyConfig{
		Enabled:                      c.Enabled,
		ForceExceptionOnSevere:       c.ForceExceptionOnSevere,
		ForceExceptionOnOverCapacity: c.ForceExceptionOnOverCapacity,
		ForceExceptionOnTimeout:      c.ForceExceptionOnTimeout,
		ForceExceptionOnWindowMiss:   c.ForceExceptionOnWindowMiss,
		MaxInFlightParcels:           c.MaxInFlightParcels,
		MinRequiredTTL:               ms(c.MinRequiredTTLMs),
		MinArrivalWindow:             ms(c.MinArrivalWindowMs),
		PreferRecirculation:          c.PreferRecirculation,
	}
}

func selectorConfig(c config.SorterConfig) chuteservice.SelectorConfig {
	return chuteservice.SelectorConfig{
		ExceptionChuteID:  c.ExceptionChuteID,
		FixedChuteID:      c.FixedChuteID,
		AvailableChuteIDs: c.AvailableChuteIDs,
		AssignmentTimeout: ms(c.ChuteAssignmentTimeoutMs),
		MaxRetries:        c.UpstreamMaxRetries,
	}
}
