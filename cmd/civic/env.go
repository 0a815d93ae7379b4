package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/git"
	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/index"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
	"github.com/CivicPress/civicpress-sub010/internal/sagas"
	"github.com/CivicPress/civicpress-sub010/internal/schema"
	"github.com/CivicPress/civicpress-sub010/internal/storage/sqlite"
	"github.com/CivicPress/civicpress-sub010/internal/template"
	"github.com/CivicPress/civicpress-sub010/internal/workflows"
)

// appEnv bundles the opened repository services a command runs against.
// Close the env when the command is done.
type appEnv struct {
	root       string
	store      *sqlite.Store
	stateStore *saga.StateStore
	locks      *saga.LockManager
	coord      *saga.Coordinator
	deps       *sagas.Dependencies
	defs       map[string]*saga.Definition
}

// openEnv locates the civic repository root, opens the metadata store,
// and wires the saga coordinator with its definitions. Callers outside
// a civic repository get an error telling them to run civic init.
func openEnv(ctx context.Context) (*appEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	root, err := config.FindRoot(cwd)
	if err != nil {
		return nil, fmt.Errorf("not in a civic repository (run 'civic init' first): %w", err)
	}
	return openEnvAt(ctx, root)
}

func openEnvAt(ctx context.Context, root string) (*appEnv, error) {
	dbPath := config.GetString("db")
	if dbPath == "" {
		dbPath = filepath.Join(root, ".civic", "civic.db")
	}
	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	catalogue, err := workflows.LoadFromRoot(root)
	if err != nil {
		store.Close()
		return nil, err
	}

	stateStore := saga.NewStateStore(store.UnderlyingDB())
	locks := saga.NewLockManager(store.UnderlyingDB())
	idem := saga.NewIdempotencyManager(stateStore, config.GetDuration("saga.idempotency-ttl"))
	coord := saga.NewCoordinator(stateStore, locks, idem, saga.NewMetrics())
	coord.StepTimeout = config.GetDuration("saga.step-timeout")
	coord.SagaTimeout = config.GetDuration("saga.timeout")
	coord.LockTimeout = config.GetDuration("saga.lock-timeout")

	deps := &sagas.Dependencies{
		Store:     store,
		Repo:      git.New(root),
		Validator: schema.New(config.GetRecordTypes(), catalogue.Statuses),
		Indexer:   index.New(store, root),
		Hooks:     hooks.NewRunnerFromWorkspace(root),
		Workflows: catalogue,
		Root:      root,
	}

	return &appEnv{
		root:       root,
		store:      store,
		stateStore: stateStore,
		locks:      locks,
		coord:      coord,
		deps:       deps,
		defs:       sagas.Definitions(deps),
	}, nil
}

func (e *appEnv) Close() error {
	return e.store.Close()
}

// templates builds the template engine for this repository: stock
// templates under templates/, repository overrides under
// .civic/templates/.
func (e *appEnv) templates() *template.Engine {
	base := filepath.Join(e.root, config.GetString("templates.dir"))
	custom := filepath.Join(e.root, config.GetString("templates.custom-dir"))
	return template.NewEngine(base, custom)
}

// mustOpenEnv is the command-body variant: it exits the process on
// failure so Run funcs stay flat.
func mustOpenEnv(ctx context.Context) *appEnv {
	env, err := openEnv(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	return env
}

// statusCatalogue returns the workflow statuses of the enclosing
// repository, or the configured defaults outside one. The status enum
// the validator enforces must match what the workflow allows.
func statusCatalogue() []string {
	cwd, err := os.Getwd()
	if err != nil {
		return config.GetRecordStatuses()
	}
	root, err := config.FindRoot(cwd)
	if err != nil {
		return config.GetRecordStatuses()
	}
	catalogue, err := workflows.LoadFromRoot(root)
	if err != nil {
		return config.GetRecordStatuses()
	}
	return catalogue.Statuses
}
