package main

import (
	"context"
	"fmt"

	"adforge/internal/agents"
	"adforge/internal/bus"
	"adforge/internal/cache"
	"adforge/internal/capability"
	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/orchestrator"
	"adforge/internal/prompt"
	"adforge/internal/store"
	"adforge/internal/visual"
)

// app is the fully wired pipeline for one CLI invocation.
type app struct {
	cfg     config.Config
	store   *store.LocalStore
	bus     *bus.Bus
	sched   *capability.Scheduler
	runner  *agents.Runner
	orch    *orchestrator.Orchestrator
	watcher *prompt.Watcher
}

// buildApp loads configuration and wires the whole pipeline: store, cache,
// bus, scheduler, provider adapters, prompt registry, agents, visual
// orchestrator, campaign orchestrator.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Debug = true
	}
	if err := logging.Initialize(logging.Options{
		Dir:     cfg.Logging.Dir,
		Debug:   cfg.Logging.Debug,
		Console: cfg.Logging.Console,
	}); err != nil {
		return nil, err
	}
	logging.Boot("adforge %s starting (config=%s)", cfg.Version, cfgPath)

	st, err := store.NewLocalStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	genCache := cache.NewSQLiteCache(st.DB())

	// The failure handler closes over orch, which is wired below.
	var orch *orchestrator.Orchestrator
	b := bus.New(
		bus.WithRecorder(st),
		bus.WithHistoryLimit(cfg.Storage.BusHistoryLimit),
		bus.WithDeliveryFailureHandler(func(msg bus.Message, agentID string) {
			if orch != nil {
				orch.RecordDeliveryFailure(msg, agentID)
			}
		}),
	)

	sched := capability.NewScheduler(capability.SchedulerConfig{
		TextSlots:  cfg.Generation.TextSlots,
		ImageSlots: cfg.Generation.ImageSlots,
		VideoSlots: cfg.Generation.VideoSlots,
	})

	gemini, err := capability.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.Generation.AssetDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	var text capability.TextGenerator = gemini
	if cfg.LLM.TextProvider == "openai" {
		text, err = capability.NewOpenAIText(cfg.LLM.OpenAIAPIKey)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	registry, err := prompt.NewRegistry(cfg.Prompts.TemplateDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	var watcher *prompt.Watcher
	if cfg.Prompts.WatchTemplates && cfg.Prompts.TemplateDir != "" {
		watcher, err = prompt.NewWatcher(registry)
		if err != nil {
			st.Close()
			return nil, err
		}
		if err := watcher.Start(ctx); err != nil {
			st.Close()
			return nil, err
		}
	}

	textOpts := capability.Options{
		Model:      cfg.LLM.TextModel,
		Timeout:    cfg.Generation.TextTimeoutDuration(),
		MaxRetries: cfg.Generation.MaxRetries,
	}
	runner := agents.NewRunner(b,
		agents.NewAnalyst(text, sched, registry, textOpts),
		agents.NewStrategist(text, sched, registry, textOpts, 0),
	)

	vis := visual.New(gemini, gemini, sched, genCache, b, visual.Config{
		MaxConcurrent: cfg.Generation.MaxConcurrent,
		ImageOpts: capability.Options{
			Model:      cfg.LLM.ImageModel,
			Timeout:    cfg.Generation.ImageTimeoutDuration(),
			MaxRetries: cfg.Generation.MaxRetries,
		},
		VideoOpts: capability.Options{
			Model:      cfg.LLM.VideoModel,
			Timeout:    cfg.Generation.VideoTimeoutDuration(),
			MaxRetries: cfg.Generation.MaxRetries,
		},
	})

	orch = orchestrator.New(st, st, b, vis)

	if err := runner.Start(ctx); err != nil {
		st.Close()
		return nil, err
	}
	if err := orch.Start(ctx); err != nil {
		runner.Stop()
		st.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		store:   st,
		bus:     b,
		sched:   sched,
		runner:  runner,
		orch:    orch,
		watcher: watcher,
	}, nil
}

// buildReadOnlyApp opens only the store for commands that never generate.
func buildReadOnlyApp() (*store.LocalStore, config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfg, err
	}
	if err := logging.Initialize(logging.Options{
		Dir:     cfg.Logging.Dir,
		Debug:   cfg.Logging.Debug || verbose,
		Console: false,
	}); err != nil {
		return nil, cfg, err
	}
	st, err := store.NewLocalStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open store: %w", err)
	}
	return st, cfg, nil
}

// close tears the pipeline down in dependency order.
func (a *app) close() {
	a.orch.Stop()
	a.runner.Stop()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.sched.Stop()
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Error("failed to close store: %v", err)
	}
	logging.Sync()
}
