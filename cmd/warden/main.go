package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/agent"
	"github.com/wardenhq/warden/approval"
	"github.com/wardenhq/warden/bus"
	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/guard"
	"github.com/wardenhq/warden/model"
	"github.com/wardenhq/warden/provider"
	"github.com/wardenhq/warden/store"
	"github.com/wardenhq/warden/tools"
)

func main() {
	configPath := flag.String("config", "~/.warden/config.json", "path to config file")
	flag.Parse()
	if flag.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "unexpected positional arguments")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*configPath, logger); err != nil {
		logger.Error("warden exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	path, err := expandHome(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	deps, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	logger.Info("warden starting",
		"model", cfg.Provider.Model,
		"workspace", cfg.Workspace,
		"approval_mode", cfg.Approval.Mode,
	)

	deps.bus.SubscribeAll(func(sessionID string, ev bus.Event) {
		logEvent(logger, sessionID, ev)
	})

	now := time.Now().UTC()
	session := model.Session{
		ID:             uuid.NewString(),
		WorkingDir:     cfg.Workspace,
		Source:         model.SourceInteractive,
		PermissionMode: model.PermissionGated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go readInput(deps.loop, session)

	<-sigCh
	logger.Info("shutting down")
	stopWatch := watchSecondSignal(sigCh, os.Stderr)
	shutdown(deps, os.Stderr)
	stopWatch()
	return nil
}

// readInput feeds stdin lines to the session until EOF. Service surfaces
// (HTTP, chat relays) plug into the same Enqueue contract.
func readInput(loop *agent.Loop, session model.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		loop.Enqueue(session, agent.Input{Content: line, Source: model.SourceInteractive})
	}
}

type runtimeDeps struct {
	bus       *bus.EventBus
	approvals *approval.Manager
	loop      *agent.Loop
	sqlStore  *store.SQLiteStore
}

func buildRuntime(cfg *config.Config) (*runtimeDeps, error) {
	if err := os.MkdirAll(cfg.StatePath, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		return nil, err
	}
	sqlStore, err := store.OpenSQLite(filepath.Join(cfg.StatePath, "warden.db"))
	if err != nil {
		return nil, err
	}

	approvals := approval.NewManager(sqlStore)
	approvals.SetMode(approval.Mode(cfg.Approval.Mode))
	approvals.SetDefaultTimeouts(
		time.Duration(cfg.Approval.InteractiveTimeoutSec)*time.Second,
		time.Duration(cfg.Approval.APITimeoutSec)*time.Second,
		time.Duration(cfg.Approval.RelayTimeoutSec)*time.Second,
	)

	b := bus.NewEventBus()
	loop := agent.NewLoop(
		b,
		approvals,
		tools.DefaultRegistry(cfg.Workspace),
		provider.NewOpenAI(cfg.Provider),
		guard.New(cfg.Guard.ProtectedPaths...),
		agent.Config{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxHistory:    cfg.Agent.MaxHistory,
			SystemPrompt:  cfg.Agent.SystemPrompt,
		},
	)
	return &runtimeDeps{bus: b, approvals: approvals, loop: loop, sqlStore: sqlStore}, nil
}

func logEvent(logger *slog.Logger, sessionID string, ev bus.Event) {
	switch ev.Type {
	case bus.EventAssistant:
		if ev.Message != nil && ev.Message.Content != "" {
			fmt.Println(ev.Message.Content)
		}
	case bus.EventResult:
		logger.Info("turn finished", "session", sessionID, "iterations", ev.Iterations, "cost_usd", ev.CostUSD)
	case bus.EventToolStatus:
		logger.Info("tool", "session", sessionID, "name", ev.ToolName, "status", ev.Status)
	case bus.EventError:
		logger.Error("session error", "session", sessionID, "err", ev.Error)
	case bus.EventQueueStatus:
		logger.Info("queued", "session", sessionID, "status", ev.Status)
	}
}

func expandHome(p string) (string, error) {
	if p == "" || p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(h, p[2:]), nil
	}
	return "", fmt.Errorf("unsupported home path %q", p)
}
