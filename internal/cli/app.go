package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"myhelper/internal/actions"
	"myhelper/internal/actions/llm"
	"myhelper/internal/actions/system"
	"myhelper/internal/catalog"
	"myhelper/internal/config"
	"myhelper/internal/executor"
	"myhelper/internal/gateway"
	"myhelper/internal/llm_client"
	"myhelper/internal/logger"
	"myhelper/internal/notifier"
	"myhelper/internal/planner"
	"myhelper/internal/queue"
	"myhelper/internal/reporter"
	"myhelper/internal/store"
	"myhelper/internal/supervisor"
	"myhelper/internal/tracing"
	"myhelper/internal/worker"
)

// app is the intake side of the engine: enough to create and query missions.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   store.Store
	catalog *catalog.Catalog
	queue   *queue.Queue
	intake  *supervisor.Service
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, cfg.StoreBackend, cfg.DataDir, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	if err := cat.Publish(ctx, s); err != nil {
		s.Close()
		return nil, fmt.Errorf("publish catalog: %w", err)
	}
	q := queue.New(s, cfg.PollInterval, nil)
	return &app{
		cfg:     cfg,
		log:     logger.Log,
		store:   s,
		catalog: cat,
		queue:   q,
		intake:  supervisor.NewService(s, q, cat, nil),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// engine adds the processing side: coordinator, workers and recovery.
type engine struct {
	*app
	coord       *supervisor.Coordinator
	pool        *worker.Pool
	recoverer   *queue.Recoverer
	stopTracing tracing.Shutdown
}

func openEngine(ctx context.Context, cfg config.Config, results chan<- supervisor.Outcome) (*engine, error) {
	stopTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SamplingRate: cfg.Tracing.SamplingRate,
		Environment:  cfg.Tracing.Environment,
	})
	if err != nil {
		return nil, err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		stopTracing(ctx)
		return nil, err
	}
	coord, err := a.coordinator(ctx, results)
	if err != nil {
		a.Close()
		stopTracing(ctx)
		return nil, err
	}
	pool := worker.NewPool(a.queue, coord, cfg.Workers, nil)
	return &engine{
		app:         a,
		coord:       coord,
		pool:        pool,
		recoverer:   queue.NewRecoverer(a.store, a.queue, cfg.StaleAfter, pool.IsLive, nil),
		stopTracing: stopTracing,
	}, nil
}

func (a *app) needsLLM() bool {
	if a.cfg.Planner == "llm" || a.cfg.Reporter == "llm" {
		return true
	}
	return slices.ContainsFunc(a.catalog.Tools(), func(t catalog.Tool) bool {
		return t.Function != nil && t.Function.Name == "llm.generate_content"
	})
}

func (a *app) coordinator(ctx context.Context, results chan<- supervisor.Outcome) (*supervisor.Coordinator, error) {
	var provider llm_client.Provider
	if a.needsLLM() {
		p, err := llm_client.New(ctx, llm_client.Config{
			Backend:    a.cfg.LLMBackend,
			Model:      a.cfg.LLMModel,
			OllamaHost: a.cfg.OllamaHost,
		})
		if err != nil {
			if a.cfg.Planner == "llm" || a.cfg.Reporter == "llm" {
				return nil, fmt.Errorf("llm provider: %w", err)
			}
			a.log.Warn("llm provider unavailable, llm.generate_content disabled", "error", err)
		} else {
			provider = p
		}
	}

	var plan planner.Planner
	switch a.cfg.Planner {
	case "llm":
		plan = planner.NewLLMPlanner(provider, a.catalog, a.cfg.LLMModel, nil)
	case "file", "":
		fp, err := planner.LoadFilePlanner(a.cfg.PlansPath)
		if err != nil {
			return nil, err
		}
		plan = fp
	default:
		return nil, fmt.Errorf("unsupported planner %q", a.cfg.Planner)
	}

	var rep reporter.Reporter = reporter.Rules{}
	switch a.cfg.Reporter {
	case "llm":
		rep = reporter.LLM{Provider: provider, Model: a.cfg.LLMModel}
	case "rules", "":
	default:
		return nil, fmt.Errorf("unsupported reporter %q", a.cfg.Reporter)
	}

	sandbox, err := system.NewSandbox(a.cfg.SandboxDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	funcs := &actions.Functions{Sandbox: sandbox}
	if provider != nil {
		funcs.LLM = llm.NewGenerator(provider)
	}
	gwOpts := gateway.Options{SandboxDir: a.cfg.SandboxDir, AllowPrivileged: a.cfg.Commands.AllowPrivileged}
	if uid, gid, ok, err := a.cfg.Commands.Credential(); err != nil {
		return nil, err
	} else if ok {
		gwOpts.RunAs = &gateway.Credential{UID: uid, GID: gid}
	}
	gw := gateway.New(a.catalog, funcs, gwOpts)

	notify, err := a.notifiers()
	if err != nil {
		return nil, err
	}

	return supervisor.NewCoordinator(a.store, a.catalog, plan, executor.New(gw, nil), rep, notify, supervisor.Options{
		PlannerTimeout:    a.cfg.PlannerTimeout,
		ReporterTimeout:   a.cfg.ReporterTimeout,
		MissionTimeout:    a.cfg.MissionTimeout,
		HeartbeatInterval: a.cfg.HeartbeatInterval,
		Results:           results,
	}), nil
}

func (a *app) notifiers() (*notifier.Multi, error) {
	ns := []notifier.Notifier{notifier.NewLog(nil)}
	n := a.cfg.Notify
	if n.WebhookURL != "" {
		ns = append(ns, notifier.NewWebhook(n.WebhookURL, nil))
	}
	if n.SlackWebhookURL != "" {
		ns = append(ns, notifier.NewSlack(n.SlackWebhookURL))
	}
	if n.DiscordWebhook != "" {
		d, err := notifier.NewDiscord(n.DiscordWebhook)
		if err != nil {
			return nil, err
		}
		ns = append(ns, d)
	}
	return notifier.NewMulti(nil, ns...), nil
}

// Close waits for pending notifications, flushes spans and closes the store.
func (e *engine) Close() error {
	e.coord.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.stopTracing(ctx); err != nil {
		e.log.Warn("trace flush failed", "error", err)
	}
	return e.app.Close()
}
