package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdhq/stackd/internal/queue"
	"github.com/stackdhq/stackd/internal/store"
	"github.com/stackdhq/stackd/internal/templates"
	"github.com/stackdhq/stackd/internal/terraform"
	"github.com/stackdhq/stackd/internal/types"
	"github.com/stackdhq/stackd/internal/workspace"
)

// scriptedExecutor returns canned results per subcommand.
type scriptedExecutor struct {
	results map[string]terraform.Result
	calls   []string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{results: map[string]terraform.Result{}}
}

func (e *scriptedExecutor) Run(_ context.Context, _ string, args ...string) (terraform.Result, error) {
	e.calls = append(e.calls, args[0])
	return e.results[args[0]], nil
}

// recordingPublisher captures updates in emission order.
type recordingPublisher struct {
	mu      sync.Mutex
	updates []types.Update
}

func (p *recordingPublisher) Publish(_ context.Context, update types.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	return nil
}

func (p *recordingPublisher) statuses() []types.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.JobStatus
	for _, u := range p.updates {
		if u.Type != types.UpdateTypeStatus {
			continue
		}
		record := u.Data.(*types.JobRecord)
		if len(out) == 0 || out[len(out)-1] != record.Status {
			out = append(out, record.Status)
		}
	}
	return out
}

// failingQueue rejects all enqueues.
type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, *types.JobRequest, queue.Priority) error {
	return queue.ErrQueueUnavailable
}
func (failingQueue) Dequeue(context.Context) (*types.JobRequest, error) { return nil, nil }
func (failingQueue) Complete(context.Context, string) error             { return nil }
func (failingQueue) Peek(context.Context) ([]*types.JobRequest, error)  { return nil, nil }

type fixture struct {
	orch  *Orchestrator
	store *store.MemoryStore
	queue queue.Queue
	exec  *scriptedExecutor
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	templatesRoot := t.TempDir()
	for _, name := range []string{"s3", "ec2"} {
		dir := filepath.Join(templatesRoot, name)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tf"), []byte("# "+name), 0o600))
	}

	q, err := queue.NewFileQueue(t.TempDir())
	require.NoError(t, err)

	exec := newScriptedExecutor()
	exec.results["output"] = terraform.Result{Stdout: "{}"}

	pub := &recordingPublisher{}
	memStore := store.NewMemoryStore()
	orch := NewOrchestrator(
		memStore,
		q,
		templates.NewResolver(templatesRoot),
		workspace.NewBuilder(t.TempDir()),
		terraform.NewRunner(exec),
		pub,
	)
	return &fixture{orch: orch, store: memStore, queue: q, exec: exec, pub: pub}
}

func s3Request() *types.JobRequest {
	return types.NewJobRequest(types.ActionCreate, types.ResourceS3, "reports")
}

func TestSubmitCreatesQueuedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := s3Request()
	jobID, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)
	assert.Equal(t, req.JobID, jobID)

	record, err := f.orch.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, record.Status)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, jobID, claimed.JobID)
}

func TestSubmitQueueUnavailableRecordsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orch := NewOrchestrator(f.store, failingQueue{}, templates.NewResolver(t.TempDir()),
		workspace.NewBuilder(t.TempDir()), terraform.NewRunner(f.exec), f.pub)

	req := s3Request()
	_, err := orch.Submit(ctx, req, queue.PriorityDefault)
	require.ErrorIs(t, err, queue.ErrQueueUnavailable)

	// Not orphaned in QUEUED: the failure is recorded on the job itself.
	record, err := orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "enqueue")
	assert.NotNil(t, record.CompletedAt)
}

func TestRunS3JobCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.exec.results["output"] = terraform.Result{Stdout: `{"bucket_name":{"value":"reports-dev"}}`}

	req := s3Request()
	_, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	f.orch.Run(ctx, claimed)

	record, err := f.orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, record.Status)
	assert.Contains(t, record.TerraformOutput, "bucket_name")
	assert.NotNil(t, record.StartedAt)
	assert.NotNil(t, record.CompletedAt)
	require.NotNil(t, record.Progress)
	assert.Equal(t, 100, record.Progress.Percentage)

	// At least one log entry per terraform step.
	steps := map[string]bool{}
	for _, l := range record.Logs {
		if l.Step != "" {
			steps[l.Step] = true
		}
	}
	for _, step := range []string{terraform.StepInit, terraform.StepPlan, terraform.StepApply, terraform.StepOutput} {
		assert.Truef(t, steps[step], "missing log for %s", step)
	}

	// Status sequence is a forward-only walk of the state machine.
	assert.Equal(t, []types.JobStatus{
		types.JobStatusQueued,
		types.JobStatusRunning,
		types.JobStatusCompleted,
	}, f.pub.statuses())
}

func TestRunPlanConflictFailsWithoutApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.exec.results["plan"] = terraform.Result{ExitCode: 1, Stderr: "Error: bucket already exists"}

	req := s3Request()
	_, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	f.orch.Run(ctx, claimed)

	record, err := f.orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, string(terraform.CategoryResourceConflict))

	for _, l := range record.Logs {
		assert.NotEqual(t, terraform.StepApply, l.Step)
	}
	assert.NotContains(t, f.exec.calls, "apply")
}

func TestRunOutputParseFailureStillCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.exec.results["output"] = terraform.Result{Stdout: "garbage"}

	req := s3Request()
	_, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	f.orch.Run(ctx, claimed)

	record, err := f.orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, record.Status)
	assert.Empty(t, record.TerraformOutput)

	var sawWarning bool
	for _, l := range record.Logs {
		if l.Step == terraform.StepOutput && l.Level == types.LogLevelWarning {
			sawWarning = true
		}
	}
	assert.True(t, sawWarning)
}

func TestRunNoTemplateAvailableFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orch := NewOrchestrator(f.store, f.queue, templates.NewResolver(t.TempDir()),
		workspace.NewBuilder(t.TempDir()), terraform.NewRunner(f.exec), f.pub)

	req := s3Request()
	_, err := orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	orch.Run(ctx, claimed)

	record, err := orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "no template available")
	assert.Empty(t, f.exec.calls)
}

func TestCancelQueuedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := s3Request()
	_, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	ok, err := f.orch.Cancel(ctx, req.JobID)
	require.NoError(t, err)
	assert.True(t, ok)

	record, err := f.orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, record.Status)
	assert.NotNil(t, record.CompletedAt)
}

func TestCancelTerminalJobReturnsFalse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := s3Request()
	_, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	ok, err := f.orch.Cancel(ctx, req.JobID)
	require.NoError(t, err)
	require.True(t, ok)

	// Second cancel: already terminal.
	ok, err = f.orch.Cancel(ctx, req.JobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// cancelOnCompleteStore injects a concurrent cancel at the moment the
// pipeline tries to persist COMPLETED, before that write reaches the store.
type cancelOnCompleteStore struct {
	store.JobStore
	once      sync.Once
	cancel    func() (bool, error)
	cancelled bool
	cancelErr error
}

func (s *cancelOnCompleteStore) CompareAndSetStatus(ctx context.Context, record *types.JobRecord, status types.JobStatus) error {
	if status == types.JobStatusCompleted {
		s.once.Do(func() { s.cancelled, s.cancelErr = s.cancel() })
	}
	return s.JobStore.CompareAndSetStatus(ctx, record, status)
}

func TestCancelRacingCompletionWins(t *testing.T) {
	ctx := context.Background()

	templatesRoot := t.TempDir()
	dir := filepath.Join(templatesRoot, "s3")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tf"), []byte("# s3"), 0o600))

	q, err := queue.NewFileQueue(t.TempDir())
	require.NoError(t, err)
	exec := newScriptedExecutor()
	exec.results["output"] = terraform.Result{Stdout: "{}"}
	pub := &recordingPublisher{}

	wrapped := &cancelOnCompleteStore{JobStore: store.NewMemoryStore()}
	orch := NewOrchestrator(wrapped, q, templates.NewResolver(templatesRoot),
		workspace.NewBuilder(t.TempDir()), terraform.NewRunner(exec), pub)

	req := s3Request()
	wrapped.cancel = func() (bool, error) { return orch.Cancel(ctx, req.JobID) }

	_, err = orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)
	claimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	orch.Run(ctx, claimed)

	// The cancel landed first and won; the pipeline's COMPLETED write was
	// refused instead of overwriting the terminal state.
	require.NoError(t, wrapped.cancelErr)
	assert.True(t, wrapped.cancelled)

	record, err := orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, record.Status)

	statuses := pub.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, types.JobStatusCancelled, statuses[len(statuses)-1])
	assert.NotContains(t, statuses, types.JobStatusCompleted)
}

func TestRunSkipsCancelledJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := s3Request()
	_, err := f.orch.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	// Cancelled after enqueue, before a worker claims it.
	_, err = f.orch.Cancel(ctx, req.JobID)
	require.NoError(t, err)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	f.orch.Run(ctx, claimed)

	record, err := f.orch.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, record.Status)
	assert.Empty(t, f.exec.calls)
}

func TestGetJobUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestStatusNeverMovesBackward(t *testing.T) {
	tests := []struct {
		from, to types.JobStatus
		want     bool
	}{
		{types.JobStatusQueued, types.JobStatusRunning, true},
		{types.JobStatusQueued, types.JobStatusCancelled, true},
		{types.JobStatusRunning, types.JobStatusCompleted, true},
		{types.JobStatusRunning, types.JobStatusFailed, true},
		{types.JobStatusRunning, types.JobStatusQueued, false},
		{types.JobStatusCompleted, types.JobStatusRunning, false},
		{types.JobStatusFailed, types.JobStatusQueued, false},
		{types.JobStatusCancelled, types.JobStatusRunning, false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRunWorkspaceBuildFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orchFail := NewOrchestrator(f.store, f.queue, templates.NewResolver(t.TempDir()),
		failingBuilder{}, terraform.NewRunner(f.exec), f.pub)

	// Resolver has no templates either, but the point stands: any step
	// failure lands in FAILED, never stuck in RUNNING.
	req := s3Request()
	_, err := orchFail.Submit(ctx, req, queue.PriorityDefault)
	require.NoError(t, err)

	claimed, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	orchFail.Run(ctx, claimed)

	record, err := orchFail.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, record.Status)
}

type failingBuilder struct{}

func (failingBuilder) Build(string, *types.JobRequest) (string, error) {
	return "", errors.New("disk full")
}
