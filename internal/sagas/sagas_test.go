package sagas

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/git"
	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/index"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
	"github.com/CivicPress/civicpress-sub010/internal/schema"
	"github.com/CivicPress/civicpress-sub010/internal/storage"
	"github.com/CivicPress/civicpress-sub010/internal/storage/sqlite"
	"github.com/CivicPress/civicpress-sub010/internal/workflows"
)

// recordingEmitter captures emitted events so tests can assert exactly
// what the sagas announced.
type recordingEmitter struct {
	mu     sync.Mutex
	events []hooks.Payload
}

func (e *recordingEmitter) Emit(event string, payload hooks.Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	payload.Event = event
	e.events = append(e.events, payload)
}

func (e *recordingEmitter) byEvent(event string) []hooks.Payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []hooks.Payload
	for _, p := range e.events {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

type sagaEnv struct {
	root    string
	store   storage.Storage
	coord   *saga.Coordinator
	deps    *Dependencies
	emitter *recordingEmitter
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func newSagaEnv(t *testing.T) *sagaEnv {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	runGit(t, root, "init")
	runGit(t, root, "config", "user.email", "clerk@example.org")
	runGit(t, root, "config", "user.name", "Test Clerk")
	runGit(t, root, "config", "commit.gpgsign", "false")

	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(root, ".civic", "civic.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	stateStore := saga.NewStateStore(store.UnderlyingDB())
	locks := saga.NewLockManager(store.UnderlyingDB())
	idem := saga.NewIdempotencyManager(stateStore, 0)
	coord := saga.NewCoordinator(stateStore, locks, idem, nil)
	coord.Logf = t.Logf

	emitter := &recordingEmitter{}
	deps := &Dependencies{
		Store:     store,
		Repo:      git.New(root),
		Validator: schema.New(config.GetRecordTypes(), config.GetRecordStatuses()),
		Indexer:   index.New(store, root),
		Hooks:     emitter,
		Workflows: workflows.Default(),
		Root:      root,
		Logf:      t.Logf,
	}
	return &sagaEnv{root: root, store: store, coord: coord, deps: deps, emitter: emitter}
}

// createSeedRecord runs the create saga so later tests start from a
// committed record.
func (env *sagaEnv) createSeedRecord(t *testing.T, id, title, recordType string) *records.Record {
	t.Helper()
	rec := &records.Record{ID: id, Title: title, Type: recordType}
	res, err := env.coord.Execute(context.Background(), CreateRecord(env.deps), NewCreateRequest(rec, "clerk"))
	if err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
	if res.Status != saga.StatusCompleted {
		t.Fatalf("seed create status = %s, want %s", res.Status, saga.StatusCompleted)
	}
	return rec
}

func TestDefinitionsCoverEverySagaType(t *testing.T) {
	defs := Definitions(&Dependencies{})
	for _, want := range []string{"CreateRecord", "UpdateRecord", "ArchiveRecord", "PublishDraft"} {
		def, ok := defs[want]
		if !ok {
			t.Fatalf("missing definition %s", want)
		}
		if len(def.Steps) == 0 {
			t.Errorf("%s has no steps", want)
		}
	}
}

func TestCommitStepsAreCritical(t *testing.T) {
	for name, def := range Definitions(&Dependencies{}) {
		for _, step := range def.Steps {
			if step.Name == "CommitToGit" {
				if !step.Critical {
					t.Errorf("%s: CommitToGit not critical", name)
				}
				if step.Compensatable {
					t.Errorf("%s: CommitToGit must not be compensatable", name)
				}
			}
			if step.Name == "RemoveFromIndex" && step.Critical {
				t.Errorf("%s: RemoveFromIndex should not be critical", name)
			}
		}
	}
}
