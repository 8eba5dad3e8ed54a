package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"cli-commander/internal/config"
	"cli-commander/internal/console"
	"cli-commander/internal/dispatch"
	"cli-commander/internal/launcher"
	"cli-commander/internal/session"
	"cli-commander/internal/watcher"
)

// app wires the registry, dispatcher and renderer for one invocation.
type app struct {
	logger     *log.Logger
	renderer   *console.Renderer
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	watcher    *watcher.Watcher

	// Settings given as flags are not overwritten by a config reload.
	pinned map[string]bool
}

func newApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	pinned := make(map[string]bool)
	if flags.Changed("grace") {
		d, _ := flags.GetDuration("grace")
		cfg.GracePeriod = config.Duration(d)
		pinned["grace"] = true
	}
	if flags.Changed("wait") {
		d, _ := flags.GetDuration("wait")
		cfg.PostSendWait = config.Duration(d)
		pinned["wait"] = true
	}
	if flags.Changed("shell") {
		cfg.Shell, _ = flags.GetString("shell")
	}
	if follow, _ := flags.GetBool("follow"); follow {
		cfg.Follow = true
	}
	debug, _ := flags.GetBool("debug")
	if debug {
		cfg.LogLevel = "debug"
		pinned["log_level"] = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "commander",
	})
	lvl, _ := cfg.Level()
	logger.SetLevel(lvl)

	jsonMode, _ := flags.GetBool("json")
	renderer := console.NewRenderer(os.Stdout, jsonMode)

	opts := []session.Option{
		session.WithGracePeriod(cfg.GracePeriod.D()),
		session.WithMaxSessions(cfg.MaxSessions),
		session.WithOutputLines(cfg.OutputLines),
		session.WithLogger(logger),
	}
	if cfg.Follow {
		opts = append(opts, session.WithSink(renderer.Follow))
	}
	registry := session.NewRegistry(launcher.New(cfg.Shell, cfg.ShellArgs, cfg.WorkDir), opts...)

	a := &app{
		logger:     logger,
		renderer:   renderer,
		registry:   registry,
		dispatcher: dispatch.New(registry, cfg.PostSendWait.D()),
		pinned:     pinned,
	}

	if path != "" {
		w, err := watcher.New(path, a.reload, watcher.WithLogger(logger))
		if err != nil {
			logger.Warn("config hot reload disabled", "path", path, "error", err)
		} else {
			a.watcher = w
		}
	}

	logger.Debug("commander ready",
		"shell", cfg.Shell,
		"grace_period", cfg.GracePeriod,
		"post_send_wait", cfg.PostSendWait,
		"config", path,
	)
	return a, nil
}

func (a *app) console(opts ...console.Option) *console.Console {
	opts = append([]console.Option{console.WithLogger(a.logger)}, opts...)
	return console.New(a.dispatcher, a.renderer, opts...)
}

// reload applies the settings that can change while sessions are running.
func (a *app) reload(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		a.logger.Warn("config reload failed, keeping current settings", "path", path, "error", err)
		return
	}

	if !a.pinned["grace"] {
		a.registry.SetGracePeriod(cfg.GracePeriod.D())
	}
	if !a.pinned["wait"] {
		a.dispatcher.SetWait(cfg.PostSendWait.D())
	}
	if !a.pinned["log_level"] {
		if lvl, err := cfg.Level(); err == nil {
			a.logger.SetLevel(lvl)
		}
	}
	a.logger.Info("config reloaded",
		"grace_period", a.registry.GracePeriod(),
		"post_send_wait", a.dispatcher.Wait(),
	)
}

// Close stops the watcher and terminates every session.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Close()
	}

	closed, err := a.registry.CloseAll(context.Background())
	if err != nil {
		a.logger.Error("some sessions could not be closed", "error", err)
		return
	}
	if closed > 0 {
		a.logger.Debug("sessions closed on exit", "count", closed)
	}
}
