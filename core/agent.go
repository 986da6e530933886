package core

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/encodeous/ribd/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Env is the ambient context handed to the core: logger plus agent
// configuration. It can be read from any goroutine.
type Env struct {
	Log *slog.Logger
	Cfg *state.AgentCfg
}

// Agent owns the published snapshot. Readers grab Current from any
// goroutine without synchronization; writers are serialized so that only
// one updater operates against a snapshot's future at a time.
type Agent struct {
	Env
	mu  sync.Mutex
	cur atomic.Pointer[state.RouteTableMap]
}

func NewAgent(env Env) *Agent {
	if env.Log == nil {
		env.Log = slog.Default()
	}
	a := &Agent{Env: env}
	empty := state.NewRouteTableMap()
	empty.MarkPublished()
	a.cur.Store(empty)
	return a
}

// Current returns the latest published snapshot.
func (a *Agent) Current() *state.RouteTableMap {
	return a.cur.Load()
}

// Apply runs fn against a fresh updater, publishes the result and returns
// the delta against the previous snapshot. A nil delta means the
// transaction changed nothing. When fn fails, the published snapshot is
// left untouched.
func (a *Agent) Apply(fn func(u *RouteUpdater) error) (*RouteDelta, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.cur.Load()
	u := NewRouteUpdater(a.Log, old)
	if a.Cfg != nil {
		u.Alpm = a.Cfg.Alpm
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	newMap := u.UpdateDone()
	if newMap == nil {
		return nil, nil
	}
	a.cur.Store(newMap)
	return NewRouteDelta(old, newMap), nil
}

// Revert swaps a single route back after a downstream programming
// failure, bypassing resolution.
func (a *Agent) Revert(router state.RouterID, newRoute, oldRoute *state.Route) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, err := RevertNewRouteEntry(a.cur.Load(), router, newRoute, oldRoute)
	if err != nil {
		return err
	}
	a.cur.Store(snap)
	return nil
}

// NewLogger builds the agent logger: tinted console output, optionally
// fanned out to a log file.
func NewLogger(level slog.Level, logPath string) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: "ribd",
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start reads the config, seeds the connected and link-local routes and
// serves the inspect socket until SIGINT or SIGTERM.
func Start(configPath, logPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	cfg, err := state.ReadAgentConfig(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := state.AgentConfigValidator(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}

	logger, err := NewLogger(level, cfg.LogPath)
	if err != nil {
		return err
	}

	agent := NewAgent(Env{Log: logger, Cfg: cfg})

	delta, err := agent.Apply(func(u *RouteUpdater) error {
		return u.AddInterfaceAndLinkLocalRoutes(cfg.InterfaceMap())
	})
	if err != nil {
		return fmt.Errorf("seed interface routes: %w", err)
	}
	if delta != nil {
		logger.Info("seeded interface routes", "tables", len(delta.Tables))
	}

	srv, err := StartIPC(agent, cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer srv.Close()

	logger.Info("ribd has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c
	logger.Info("received shutdown signal")
	return nil
}
