package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	backend "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/randalmurphal/taskrouter/internal/actions"
	"github.com/randalmurphal/taskrouter/internal/agent"
	"github.com/randalmurphal/taskrouter/internal/llm"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/observability"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// App is an assembled router.
type App struct {
	Config  Config
	Logger  *slog.Logger
	Graph   *flowgraph.CompiledGraph[agent.State]
	Service *agent.Service
	Actions *actions.Registry

	closers []func() error
}

// New wires the configured store, locker, collaborators and graph.
// Close releases what New opened.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := OpenStore(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	lockCfg := cfg.Lock
	lockCfg.TTL = cfg.LockTTL()
	locker, closeLocker, err := OpenLocker(lockCfg)
	if err != nil {
		return nil, fmt.Errorf("session locker: %w", err)
	}
	a.closers = append(a.closers, closeLocker)

	acts := vehicleActions(cfg.Router.Actions)
	a.Actions = actions.NewRegistry(logger, acts...)

	responder, planner, err := collaborators(cfg.Agent, acts, logger)
	if err != nil {
		return nil, err
	}

	opts := []flowgraph.Option{
		flowgraph.WithCheckpointer(store),
		flowgraph.WithLocker(locker),
		flowgraph.WithStepBudget(cfg.Engine.StepBudget),
		flowgraph.WithLogger(logger),
	}
	if cfg.Telemetry.Metrics {
		opts = append(opts, flowgraph.WithMetrics(observability.NewMetricsRecorder()))
	}
	if cfg.Telemetry.Tracing {
		opts = append(opts, flowgraph.WithTracing(observability.NewSpanManager()))
	}

	a.Graph, err = agent.Compile(agent.Deps{
		Classifier:  agent.NewKeywordClassifier(cfg.Router.Default, cfg.Router.Categories...),
		Responder:   responder,
		Planner:     planner,
		Executor:    a.Actions,
		Routes:      cfg.Router.Routes,
		NodeTimeout: cfg.Engine.NodeTimeout,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile router graph: %w", err)
	}
	a.Service = agent.NewService(a.Graph, logger)

	logger.Info("router assembled",
		slog.String("checkpoint", cfg.Checkpoint.Driver),
		slog.String("lock", cfg.Lock.Driver),
		slog.String("provider", cfg.Agent.Provider),
		slog.String("planner", cfg.Agent.Planner))
	return a, nil
}

// Close releases the store and locker connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the configured checkpoint backend.
func OpenStore(ctx context.Context, cfg CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Driver {
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	case "sqlite":
		return checkpoint.NewSQLiteStore(cfg.DSN)
	case "redis":
		return checkpoint.NewRedisStore(cfg.DSN, cfg.Password, cfg.DB,
			checkpoint.WithRedisPrefix(cfg.Prefix),
			checkpoint.WithRedisTTL(cfg.TTL)), nil
	case "postgres":
		return checkpoint.OpenPostgresStore(ctx, cfg.DSN)
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		store, err := checkpoint.NewMongoStore(ctx, client, cfg.Database, cfg.Collection)
		if err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}
		return &mongoOwned{MongoStore: store, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", cfg.Driver)
	}
}

// mongoOwned closes the client it connected along with the store.
type mongoOwned struct {
	*checkpoint.MongoStore
	client *mongo.Client
}

func (m *mongoOwned) Close() error {
	_ = m.MongoStore.Close()
	return m.client.Disconnect(context.Background())
}

// OpenLocker creates the configured session locker and its close function.
func OpenLocker(cfg LockConfig) (session.Locker, func() error, error) {
	switch cfg.Driver {
	case "local":
		return session.NewLocalLocker(), func() error { return nil }, nil
	case "redis":
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return session.NewRedisLocker(client,
			session.WithLockPrefix(cfg.Prefix),
			session.WithLockTTL(cfg.TTL),
			session.WithPollInterval(cfg.PollInterval)), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}

// vehicleActions returns the vehicle actions with configured trigger overrides.
func vehicleActions(triggers map[string][]string) []actions.Action {
	acts := actions.VehicleActions()
	for i := range acts {
		if t, ok := triggers[acts[i].Name]; ok {
			acts[i].Triggers = t
		}
	}
	return acts
}

func collaborators(cfg AgentConfig, acts []actions.Action, logger *slog.Logger) (agent.Responder, agent.Planner, error) {
	var (
		responder agent.Responder
		client    *llm.Client
	)
	switch cfg.Provider {
	case "static":
		responder = llm.StaticResponder(cfg.StaticReply)
	case "openai":
		c, err := llm.NewClient(cfg.Config, llm.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		client = c
		responder = llm.NewResponder(c)
	default:
		return nil, nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}

	switch cfg.Planner {
	case "keyword":
		return responder, actions.NewKeywordPlanner(acts...), nil
	case "model":
		if client == nil {
			return nil, nil, errors.New("model planner needs the openai provider")
		}
		return responder, llm.NewPlanner(client, acts), nil
	default:
		return nil, nil, fmt.Errorf("unknown agent planner %q", cfg.Planner)
	}
}
