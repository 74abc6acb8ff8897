package main

import (
	"fmt"
	"os"

	"github.com/tactix-ai/tactix/internal/config"
	"github.com/tactix-ai/tactix/internal/coordinator"
	"github.com/tactix-ai/tactix/internal/decompose"
	"github.com/tactix-ai/tactix/internal/hierarchy"
	"github.com/tactix-ai/tactix/internal/pool"
	"github.com/tactix-ai/tactix/internal/provider"
	"github.com/tactix-ai/tactix/internal/state"
	"github.com/tactix-ai/tactix/internal/validation"
	"github.com/tactix-ai/tactix/internal/workflow"
	"github.com/tactix-ai/tactix/pkg/models"
)

// allCapabilities lists every task type a generalist handles.
var allCapabilities = []models.TaskType{
	models.TaskTypeAnalysis, models.TaskTypeDesign, models.TaskTypeUIGeneration,
	models.TaskTypeCodeGeneration, models.TaskTypeValidationLogic,
	models.TaskTypeTestGeneration, models.TaskTypeIntegration,
	models.TaskTypeReview, models.TaskTypeDelivery,
}

// engine bundles everything a command needs to execute requests.
type engine struct {
	manager  *workflow.Manager
	store    *state.DB
	debugLog *coordinator.DebugLogger
}

// openStore opens the project database if a project marker exists,
// falling back to the global database.
func openStore() (*state.DB, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// defaultRoster registers the built-in agent pool: three generalists, two
// specialists, one reviewer.
func defaultRoster(registry *pool.Registry) error {
	agents := []*models.Agent{
		{ID: "gen-1", Class: models.ClassGeneralist, Capabilities: allCapabilities, MaxConcurrency: 2},
		{ID: "gen-2", Class: models.ClassGeneralist, Capabilities: allCapabilities, MaxConcurrency: 2},
		{ID: "gen-3", Class: models.ClassGeneralist, Capabilities: allCapabilities, MaxConcurrency: 2},
		{ID: "spec-code", Class: models.ClassSpecialist, MaxConcurrency: 2, Capabilities: []models.TaskType{
			models.TaskTypeCodeGeneration, models.TaskTypeValidationLogic, models.TaskTypeTestGeneration,
		}},
		{ID: "spec-ui", Class: models.ClassSpecialist, MaxConcurrency: 2, Capabilities: []models.TaskType{
			models.TaskTypeUIGeneration, models.TaskTypeDesign,
		}},
		{ID: "rev-1", Class: models.ClassReviewer, MaxConcurrency: 1, Capabilities: []models.TaskType{
			models.TaskTypeReview, models.TaskTypeIntegration, models.TaskTypeDelivery,
		}},
	}
	for _, agent := range agents {
		if err := registry.Register(agent); err != nil {
			return err
		}
	}
	return nil
}

// pipelineForLevel builds a level's validation pipeline from its ordered
// validator table, applying the level's blocking weight boost.
func pipelineForLevel(cfg *config.Config, level config.LevelConfig) (*validation.Pipeline, error) {
	registry := validation.DefaultRegistry()

	specs := make([]validation.Spec, 0, len(level.Validators))
	for _, vs := range level.Validators {
		v, err := registry.Resolve(vs.Name)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level.Index, err)
		}
		weight := vs.Weight
		if vs.Blocking {
			weight += level.BlockingWeightBoost
		}
		specs = append(specs, validation.Spec{
			Validator: v,
			Weight:    weight,
			Blocking:  vs.Blocking,
			Budget:    vs.Budget.Std(),
		})
	}

	return validation.NewPipeline(cfg.Validation.Threshold, specs...)
}

// toLevels converts loaded level configs into the hierarchy's ladder.
func toLevels(levelCfgs []config.LevelConfig) []hierarchy.Level {
	levels := make([]hierarchy.Level, 0, len(levelCfgs))
	for _, lc := range levelCfgs {
		levels = append(levels, hierarchy.Level{
			Index:                 lc.Index,
			Strategy:              models.CoordinationStrategy(lc.Strategy),
			BlockingWeightBoost:   lc.BlockingWeightBoost,
			MaxCorrectionAttempts: lc.MaxCorrectionAttempts,
			RetryBudget:           lc.RetryBudget,
		})
	}
	return levels
}

// buildEngine wires the full stack: provider, pool, per-level validation,
// coordinator factory, persistence, and the workflow manager.
func buildEngine(cfg *config.Config) (*engine, error) {
	levelCfgs, err := config.LoadLevelConfigs("configs")
	if err != nil {
		levelCfgs = config.DefaultLevelConfigs()
	}
	levelsByIndex := make(map[int]config.LevelConfig, len(levelCfgs))
	for _, lc := range levelCfgs {
		levelsByIndex[lc.Index] = lc
	}

	prov, err := provider.NewAnthropicProvider(provider.ClientConfig{
		APIKey: cfg.Anthropic.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	invoker := coordinator.NewProviderInvoker(prov)

	registry := pool.NewRegistry(cfg.AgentClassLimits())
	if err := defaultRoster(registry); err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	reliability := state.NewReliabilityStore(store)

	debugLog, err := coordinator.NewDebugLogger(cfg.Engine.DebugLog)
	if err != nil {
		store.Close()
		return nil, err
	}

	factory := func(level hierarchy.Level) (*coordinator.Coordinator, error) {
		lc, ok := levelsByIndex[level.Index]
		if !ok {
			return nil, fmt.Errorf("no config for level %d", level.Index)
		}
		pipeline, err := pipelineForLevel(cfg, lc)
		if err != nil {
			return nil, err
		}

		maxCorrections := cfg.Validation.MaxCorrectionAttempts
		if level.MaxCorrectionAttempts > 0 {
			maxCorrections = level.MaxCorrectionAttempts
		}

		return coordinator.New(registry, invoker,
			coordinator.WithGlobalConcurrency(cfg.Engine.GlobalConcurrency),
			coordinator.WithQuorum(cfg.Engine.Quorum),
			coordinator.WithTimeouts(cfg.ComplexityTimeouts()),
			coordinator.WithValidation(pipeline, maxCorrections),
			coordinator.WithReliability(reliability),
			coordinator.WithEventEmitter(coordinator.NewEventEmitter(256)),
			coordinator.WithDebugLogger(debugLog.Log),
		), nil
	}

	manager, err := workflow.NewManager(workflow.Config{
		Decomposer: decompose.New(cfg.Engine.Retries),
		Levels:     toLevels(levelCfgs),
		Factory:    factory,
		Store:      store,
		Retention:  cfg.Retention.Window,
		GCInterval: cfg.Retention.GCInterval,
	})
	if err != nil {
		debugLog.Close()
		store.Close()
		return nil, err
	}

	return &engine{manager: manager, store: store, debugLog: debugLog}, nil
}

// close releases the engine's resources. Stop the manager first.
func (e *engine) close() {
	e.debugLog.Close()
	e.store.Close()
}
