// Package supervisor wires the reducer/engine, lifecycle scheduler, engine
// resource manager, persistence adapter, and bridge transports into one
// running process: the single composition root for the whole binary.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/bridge"
	"github.com/switchboardhq/supervisor/internal/core/engine"
	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
	"github.com/switchboardhq/supervisor/internal/enginemgr"
	"github.com/switchboardhq/supervisor/internal/infrastructure/config"
	"github.com/switchboardhq/supervisor/internal/infrastructure/monitoring"
	"github.com/switchboardhq/supervisor/internal/infrastructure/tracing"
	"github.com/switchboardhq/supervisor/internal/lifecycle"
	"github.com/switchboardhq/supervisor/internal/logging"
	"github.com/switchboardhq/supervisor/internal/persistence"
	"github.com/switchboardhq/supervisor/internal/settings"
)

// Supervisor owns every long-lived component and the HTTP listener that
// exposes the bridge to the privileged chrome document.
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger
	store  persistence.Store
	metrics *monitoring.Metrics

	engine     *engine.Engine
	scheduler  *lifecycle.Scheduler
	engineMgr  *enginemgr.Manager
	dispatcher *bridge.Dispatcher
	hub        *bridge.EventHub

	httpServer *http.Server

	mutationCancel context.CancelFunc
	mutationDone   chan struct{}
}

// New constructs every component and seeds default settings, but starts
// neither the mutation goroutine nor the listener; call Run for that.
func New(cfg *config.Config) (*Supervisor, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	wrapped, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("supervisor: logger: %w", err)
	}
	logger := wrapped.Logger

	store, err := persistence.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open store: %w", err)
	}

	ctx := context.Background()
	initial, revision, err := store.Load(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("supervisor: load state: %w", err)
	}

	metrics := monitoring.New()

	eng := engine.New(initial, revision, engine.Config{
		RingCapacity: cfg.Lifecycle.ResyncRingSize,
		Persist:      store,
	})
	metrics.SetRevision(eng.Revision())

	if err := bootstrapIfEmpty(eng, initial, logger); err != nil {
		store.Close()
		return nil, fmt.Errorf("supervisor: bootstrap: %w", err)
	}
	metrics.SetRevision(eng.Revision())

	host := selectHost(cfg.Engine, logger)
	mgr := enginemgr.New(host, logger, metrics)

	sched := lifecycle.New(mgr, eng, cfg.Lifecycle.WarmBudget)
	for id, tab := range eng.Snapshot().State.Tabs {
		sched.Track(id, tab.ProfileID, tab.WorkspaceID, tab.Pinned)
	}

	dispatcher := bridge.New(eng, sched, logger, mgr.ResolveThumbnail, cfg.Lifecycle.QueueCapacity)

	hub := bridge.NewEventHub(metrics)
	dispatcher.SetNotifier(func(p patch.Patch) {
		hub.Broadcast(bridge.StreamEvent{Kind: bridge.EventPatch, Payload: p})
	})

	defaults, err := settings.Load(cfg.Settings.DefaultsPath)
	if err != nil {
		logger.Warn("settings: failed to load defaults file, booting with none", zap.Error(err))
		defaults = settings.Defaults{}
	}
	settings.Seed(ctx, eng, defaults, initial.Settings, logger)

	s := &Supervisor{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		metrics:    metrics,
		engine:     eng,
		scheduler:  sched,
		engineMgr:  mgr,
		dispatcher: dispatcher,
		hub:        hub,
	}
	return s, nil
}

// bootstrapIfEmpty seeds a usable shell on a genuinely empty store: one
// profile named "Default", one workspace named "Home", and a starting tab
// at https://youtube.com, made active at every level. Without this a fresh
// database boots with zero profiles and nothing for the bridge to serve.
func bootstrapIfEmpty(eng *engine.Engine, initial *state.BrowserState, logger *zap.Logger) error {
	if len(initial.Profiles) > 0 {
		return nil
	}

	profilePatch, err := eng.Dispatch(intent.NewProfile("Default"))
	if err != nil {
		return fmt.Errorf("create default profile: %w", err)
	}
	profileID, ok := upsertedProfileID(profilePatch)
	if !ok {
		return fmt.Errorf("default profile missing from its own patch")
	}

	workspacePatch, err := eng.Dispatch(intent.NewWorkspace(profileID, "Home"))
	if err != nil {
		return fmt.Errorf("create home workspace: %w", err)
	}
	workspaceID, ok := upsertedWorkspaceID(workspacePatch)
	if !ok {
		return fmt.Errorf("home workspace missing from its own patch")
	}

	if _, err := eng.Dispatch(intent.NewTab(workspaceID, "https://youtube.com", true)); err != nil {
		return fmt.Errorf("create initial tab: %w", err)
	}

	logger.Info("bootstrapped default profile/workspace/tab",
		zap.Uint64("profile_id", uint64(profileID)),
		zap.Uint64("workspace_id", uint64(workspaceID)),
		zap.Uint64("revision", eng.Revision()),
	)
	return nil
}

func upsertedProfileID(p patch.Patch) (ids.ProfileID, bool) {
	for _, op := range p.Ops {
		if op.Kind == patch.OpUpsertProfile && op.Profile != nil {
			return op.Profile.ID, true
		}
	}
	return 0, false
}

func upsertedWorkspaceID(p patch.Patch) (ids.WorkspaceID, bool) {
	for _, op := range p.Ops {
		if op.Kind == patch.OpUpsertWorkspace && op.Workspace != nil {
			return op.Workspace.ID, true
		}
	}
	return 0, false
}

// selectHost picks the engine resource manager's backing Host. Only the
// in-process simulated host is available today: wiring a real engine
// subprocess needs an IPC contract this exercise forbids fabricating (see
// the dropped-dependency note for the gRPC/protobuf stack). A configured
// dial target is accepted without error so the flag has somewhere to go
// once a real transport exists, but is otherwise ignored.
func selectHost(cfg config.EngineConfig, logger *zap.Logger) enginemgr.Host {
	if cfg.DialTarget != "" {
		logger.Warn("engine: dial target configured but no out-of-process engine transport is wired; using the in-process simulated host", zap.String("addr", cfg.DialTarget))
	}
	return enginemgr.NewSimHost()
}

// Run starts the mutation goroutine and the HTTP listener, blocking until
// ctx is canceled. It always returns a non-nil error: http.ErrServerClosed
// on a clean shutdown, or the listener's own failure.
func (s *Supervisor) Run(ctx context.Context) error {
	mutationCtx, cancel := context.WithCancel(ctx)
	s.mutationCancel = cancel
	s.mutationDone = make(chan struct{})
	go func() {
		defer close(s.mutationDone)
		s.dispatcher.Run(mutationCtx)
	}()

	router := s.buildRouter()
	addr := s.cfg.Bridge.Host + ":" + s.cfg.Bridge.Port
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("supervisor listening", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Supervisor) buildRouter() *gin.Engine {
	tracer := tracing.New("switchboard-supervisor-bridge", s.logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(tracing.HTTPMiddleware(tracer))

	limiter := s.buildRateLimiter()
	httpHandler := bridge.NewHTTPHandler(s.dispatcher, limiter, s.logger)
	httpHandler.Register(router)

	streamHandler := bridge.NewStreamHandler(s.hub, s.logger)
	streamHandler.Register(router)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *Supervisor) buildRateLimiter() *bridge.OriginRateLimiter {
	if !s.cfg.RateLimit.Enabled {
		return nil
	}
	return bridge.NewOriginRateLimiter(bridge.OriginRateLimitConfig{
		RequestsPerSecond: float64(s.cfg.RateLimit.RequestsPerSecond),
		Burst:             s.cfg.RateLimit.Burst,
	})
}

// shutdown stops accepting new connections, drains the mutation queue, and
// closes the persistence adapter before returning.
func (s *Supervisor) shutdown() error {
	s.logger.Info("supervisor shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}

	s.mutationCancel()
	<-s.mutationDone

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close error", zap.Error(err))
	}

	return http.ErrServerClosed
}
