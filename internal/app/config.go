// Package app loads the router's configuration and assembles its parts.
package app

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/taskrouter/internal/agent"
	"github.com/randalmurphal/taskrouter/internal/llm"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/config"
)

// EnvPrefix prefixes environment overrides: TASKROUTER_SERVER_PORT sets server.port.
const EnvPrefix = "TASKROUTER"

// Config is the full router configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Router     RouterConfig     `mapstructure:"router"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Lock       LockConfig       `mapstructure:"lock"`
	Log        LogConfig        `mapstructure:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig is the HTTP listener. The chat client dials the same address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AgentConfig selects the responder and planner.
type AgentConfig struct {
	// Provider is "openai" or "static".
	Provider string `mapstructure:"provider"`
	// Planner is "keyword" or "model".
	Planner string `mapstructure:"planner"`
	// StaticReply is the answer of the static provider.
	StaticReply string `mapstructure:"static_reply"`

	llm.Config `mapstructure:",squash"`
}

// RouterConfig is the classification policy.
type RouterConfig struct {
	Default    string            `mapstructure:"default"`
	Categories []agent.Category  `mapstructure:"categories"`
	Routes     map[string]string `mapstructure:"routes"`
	// Actions overrides the trigger phrases of actions by name.
	Actions map[string][]string `mapstructure:"actions"`
}

// EngineConfig bounds graph runs.
type EngineConfig struct {
	StepBudget  int           `mapstructure:"step_budget"`
	NodeTimeout time.Duration `mapstructure:"node_timeout"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	// Driver is memory, sqlite, redis, postgres or mongo.
	Driver string `mapstructure:"driver"`
	// DSN is the sqlite path, redis address, postgres DSN or mongo URI.
	DSN        string        `mapstructure:"dsn"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	TTL        time.Duration `mapstructure:"ttl"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
}

// LockConfig selects the session locker.
type LockConfig struct {
	// Driver is local or redis.
	Driver   string `mapstructure:"driver"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// TTL bounds how long a crashed holder blocks its session. Zero uses
	// the engine's MaxRun.
	TTL          time.Duration `mapstructure:"ttl"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MaxRun is the longest a run can take: every step hitting the node timeout.
func (e EngineConfig) MaxRun() time.Duration {
	return time.Duration(e.StepBudget) * e.NodeTimeout
}

// LockTTL returns the lock lease, derived from the engine bounds when unset.
func (c Config) LockTTL() time.Duration {
	if c.Lock.TTL > 0 {
		return c.Lock.TTL
	}
	return c.Engine.MaxRun()
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig turns on OpenTelemetry instrumentation of graph runs
// through the global providers.
type TelemetryConfig struct {
	Metrics bool `mapstructure:"metrics"`
	Tracing bool `mapstructure:"tracing"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5000},
		Agent: AgentConfig{
			Provider: "openai",
			Planner:  "keyword",
			Config: llm.Config{
				Model:       "gpt-3.5-turbo",
				Timeout:     time.Minute,
				MaxAttempts: 3,
			},
		},
		Router: RouterConfig{Default: agent.CategoryQA},
		Engine: EngineConfig{
			StepBudget:  flowgraph.DefaultStepBudget,
			NodeTimeout: 2 * time.Minute,
		},
		Checkpoint: CheckpointConfig{Driver: "sqlite", DSN: "taskrouter.db", Prefix: "taskrouter:"},
		Lock: LockConfig{
			Driver:       "local",
			Prefix:       "taskrouter:lock:",
			PollInterval: 50 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (YAML or JSON; empty means defaults only), expands
// ${NAME} references, applies TASKROUTER_* overrides from environ and
// OPENAI_API_KEY, and validates.
func Load(path string, environ []string) (Config, error) {
	raw := config.New(nil)
	if path != "" {
		var err error
		if raw, err = config.FromFile(path); err != nil {
			return Config{}, err
		}
	}
	raw, err := raw.ExpandEnv(environ, config.MissingError)
	if err != nil {
		return Config{}, fmt.Errorf("expand %s: %w", path, err)
	}
	return Decode(raw.WithEnv(EnvPrefix, environ), environ)
}

// Decode fills Defaults from raw and validates the result.
func Decode(raw config.Config, environ []string) (Config, error) {
	cfg := Defaults()
	if err := raw.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Agent.APIKey == "" {
		cfg.Agent.APIKey = lookupEnv(environ, "OPENAI_API_KEY")
	}
	if len(cfg.Router.Categories) == 0 {
		cfg.Router.Categories = []agent.Category{{Name: agent.CategoryVehicle, Triggers: []string{"启动", "关闭"}}}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Agent.Provider {
	case "openai":
		if c.Agent.Model == "" {
			errs = append(errs, errors.New("agent.model is required for the openai provider"))
		}
	case "static":
		if c.Agent.Planner == "model" {
			errs = append(errs, errors.New("agent.planner model needs the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown agent.provider %q", c.Agent.Provider))
	}
	if c.Agent.Planner != "keyword" && c.Agent.Planner != "model" {
		errs = append(errs, fmt.Errorf("unknown agent.planner %q", c.Agent.Planner))
	}
	if c.Agent.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("agent.max_attempts cannot be negative, got %d", c.Agent.MaxAttempts))
	}
	if c.Router.Default == "" {
		errs = append(errs, errors.New("router.default is required"))
	}
	if c.Engine.StepBudget < 1 {
		errs = append(errs, fmt.Errorf("engine.step_budget must be positive, got %d", c.Engine.StepBudget))
	}
	if c.Engine.NodeTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.node_timeout cannot be negative, got %s", c.Engine.NodeTimeout))
	}
	if c.Lock.TTL < 0 {
		errs = append(errs, fmt.Errorf("lock.ttl cannot be negative, got %s", c.Lock.TTL))
	}
	switch c.Checkpoint.Driver {
	case "memory":
	case "sqlite", "redis", "postgres", "mongo":
		if c.Checkpoint.DSN == "" {
			errs = append(errs, fmt.Errorf("checkpoint.dsn is required for %s", c.Checkpoint.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint.driver %q", c.Checkpoint.Driver))
	}
	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.Addr == "" {
			errs = append(errs, errors.New("lock.addr is required for redis"))
		}
		// An unbounded node could hold the lease past any TTL.
		if c.Engine.NodeTimeout <= 0 {
			errs = append(errs, errors.New("lock.driver redis needs a positive engine.node_timeout"))
		} else if c.Lock.TTL != 0 && c.Lock.TTL < c.Engine.MaxRun() {
			errs = append(errs, fmt.Errorf("lock.ttl %s is below the longest run %s (engine.step_budget x engine.node_timeout)",
				c.Lock.TTL, c.Engine.MaxRun()))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.driver %q", c.Lock.Driver))
	}
	return errors.Join(errs...)
}

func lookupEnv(environ []string, name string) string {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v
		}
	}
	return ""
}
