package workflowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cordum/mediaflow/core/adapters/export"
	"github.com/cordum/mediaflow/core/adapters/webhook"
	"github.com/cordum/mediaflow/core/infra/artifacts"
	"github.com/cordum/mediaflow/core/infra/bus"
	"github.com/cordum/mediaflow/core/infra/config"
	"github.com/cordum/mediaflow/core/infra/deadletter"
	"github.com/cordum/mediaflow/core/infra/locks"
	"github.com/cordum/mediaflow/core/infra/logging"
	"github.com/cordum/mediaflow/core/infra/metrics"
	wf "github.com/cordum/mediaflow/core/workflow"
)

const (
	component              = "workflow-engine"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 5 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 3 * time.Second
	defaultDrainTimeout    = 30 * time.Second
	workflowEngineQueue    = "mediaflow-workflow-engine"
	metricsNamespace       = "mediaflow"
)

// backends are the storage handles one engine process runs on.
type backends struct {
	store     wf.Store
	locks     locks.Store
	artifacts artifacts.Store
	dead      deadletter.Store
	closers   []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackends picks in-process or Redis storage per cfg.StoreBackend.
func openBackends(cfg *config.Config, engineCfg *config.EngineConfig) (*backends, error) {
	if cfg.StoreBackend != config.StoreRedis {
		return &backends{
			store:     wf.NewMemoryStore(),
			locks:     locks.NewLocalStore(),
			artifacts: artifacts.NewMemoryStore(),
			dead:      deadletter.NewMemoryStore(),
		}, nil
	}
	b := &backends{}
	store, err := wf.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis workflow store: %w", err)
	}
	b.store = store
	b.closers = append(b.closers, store.Close)

	lockStore, err := locks.NewRedisStore(cfg.RedisURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis lock store: %w", err)
	}
	b.locks = lockStore
	b.closers = append(b.closers, lockStore.Close)

	artifactStore, err := artifacts.NewRedisStore(cfg.RedisURL, engineCfg.ArtifactRetention())
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis artifact store: %w", err)
	}
	b.artifacts = artifactStore
	b.closers = append(b.closers, artifactStore.Close)

	deadStore, err := deadletter.NewRedisStore(cfg.RedisURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis dead letter store: %w", err)
	}
	b.dead = deadStore
	b.closers = append(b.closers, deadStore.Close)
	return b, nil
}

// newService assembles the executor and service from engine tuning.
func newService(cfg *config.Config, engineCfg *config.EngineConfig, b *backends, m metrics.WorkflowMetrics, pub bus.Publisher) *wf.Service {
	notifier := webhook.NewNotifier(engineCfg.WebhookTimeout())
	exec := wf.NewExecutor(wf.Collaborators{
		Exporter: export.NewExporter(b.artifacts),
		Notifier: notifier,
		Files:    wf.LocalFiles{},
	}, wf.ExecutorOptions{
		BatchPollInterval: engineCfg.BatchPollInterval(),
		BatchTimeout:      engineCfg.BatchTimeout(),
		WebhookTimeout:    engineCfg.WebhookTimeout(),
		MaxActionDepth:    engineCfg.Steps.MaxActionDepth,
	}).WithClassifier(wf.NewContentClassifier().WithDefaultThreshold(engineCfg.Classification.DefaultThreshold))

	svc := wf.NewService(b.store, exec).
		WithLocks(b.locks, engineCfg.LockTTL()).
		WithMetrics(m).
		WithEvents(pub).
		WithPool(wf.NewPool(engineCfg.Runs.MaxConcurrent))
	if !cfg.NotificationsEnabled {
		svc.WithNotifier(mutedNotifier{})
	}
	return svc
}

// Run starts the workflow engine control-plane component.
func Run(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}
	engineCfg, err := config.LoadEngine(cfg.EngineConfigPath)
	if err != nil {
		return fmt.Errorf("load engine config: %w", err)
	}
	if cfg.MaxConcurrentRuns > 0 {
		engineCfg.Runs.MaxConcurrent = cfg.MaxConcurrentRuns
	}

	b, err := openBackends(cfg, engineCfg)
	if err != nil {
		return err
	}
	defer b.Close()

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer natsBus.Close()

	svc := newService(cfg, engineCfg, b, metrics.NewProm(metricsNamespace), natsBus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.LoadTriggers(ctx); err != nil {
		return fmt.Errorf("load triggers: %w", err)
	}

	// Runs outlive the signal context so they can drain on shutdown.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	d := newDispatcher(runCtx, svc).WithDeadLetters(b.dead)

	owner, _ := os.Hostname()
	sched := newScheduler(svc, b.locks, d.Dispatch, owner, engineCfg.ScanInterval())
	go sched.Start(ctx)

	if err := natsBus.Subscribe(bus.SubjectTriggerAll, workflowEngineQueue, d.HandleEvent); err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.SubjectTriggerAll, err)
	}

	srv := startHealthServer(cfg.HTTPAddr, natsBus, b.dead)
	logging.Info(component, "started",
		"http", cfg.HTTPAddr, "store", cfg.StoreBackend,
		"max_concurrent", engineCfg.Runs.MaxConcurrent, "scan_interval", engineCfg.ScanInterval().String())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if !d.Wait(defaultDrainTimeout) {
		logging.Warn(component, "runs still active after drain timeout, cancelling")
		cancelRuns()
		d.Wait(defaultShutdownTimeout)
	}
	logging.Info(component, "stopped")
	return nil
}

type busStatus interface {
	IsConnected() bool
	Status() string
}

func startHealthServer(addr string, nb busStatus, dead deadletter.Store) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(nb, dead),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(component, "http server error", "error", err)
		}
	}()
	return srv
}

func newMux(nb busStatus, dead deadletter.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if nb != nil && !nb.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("nats " + nb.Status()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	if dead != nil {
		mux.HandleFunc("GET /dead-letters", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
			entries, err := dead.List(r.Context(), limit)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(entries)
		})
		mux.HandleFunc("DELETE /dead-letters/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := dead.Delete(r.Context(), r.PathValue("id")); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return mux
}

// mutedNotifier drops definition notifications when they are disabled.
type mutedNotifier struct{}

func (mutedNotifier) Deliver(_ context.Context, target wf.NotificationTarget, eventType string, _ map[string]any) (wf.DeliveryResult, error) {
	logging.Debug(component, "notification muted", "target", target.Target, "event", eventType)
	return wf.DeliveryResult{Success: true}, nil
}
