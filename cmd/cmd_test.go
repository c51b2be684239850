package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/socialcards/internal/cards"
)

type fakeApp struct {
	batch     cards.JobBatch
	report    cards.RunReport
	planErr   error
	calls     []string
	closed    bool
	watchFile string
	unshared  bool
	logger    *zap.Logger
}

func (f *fakeApp) Close()            { f.closed = true }
func (f *fakeApp) SharedCache() bool { return !f.unshared }

func (f *fakeApp) Logger() *zap.Logger {
	if f.logger == nil {
		return zap.NewNop()
	}
	return f.logger
}

func (f *fakeApp) Plan(context.Context) (cards.JobBatch, error) {
	f.calls = append(f.calls, "plan")
	return f.batch, f.planErr
}

func (f *fakeApp) Capture(context.Context) (cards.RunReport, error) {
	f.calls = append(f.calls, "capture")
	return f.report, nil
}

func (f *fakeApp) WatchTarget() (string, bool) {
	return f.watchFile, f.watchFile != ""
}

func withFakeApp(t *testing.T, fake *fakeApp) *string {
	t.Helper()
	var gotPath string
	original := newApp
	newApp = func(_ context.Context, cfgPath string) (App, error) {
		gotPath = cfgPath
		return fake, nil
	}
	t.Cleanup(func() {
		newApp = original
		cfgFile = ""
	})
	return &gotPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := executeRoot(context.Background(), root)
	return out.String(), err
}

func TestPlanCommand(t *testing.T) {
	fake := &fakeApp{batch: cards.JobBatch{{Path: "/a-social-card"}, {Path: "/b-social-card"}}}
	gotPath := withFakeApp(t, fake)

	out, err := execute(t, "plan", "--config", "site.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "planned 2 social cards")
	assert.Equal(t, "site.yaml", *gotPath)
	assert.Equal(t, []string{"plan"}, fake.calls)
	assert.True(t, fake.closed)
}

func TestPlanCommandError(t *testing.T) {
	fake := &fakeApp{planErr: cards.ErrMissingQuery}
	withFakeApp(t, fake)

	_, err := execute(t, "plan")
	assert.ErrorIs(t, err, cards.ErrMissingQuery)
	assert.True(t, fake.closed)
}

func TestUnsharedCacheWarnsOnSeparatePhases(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fake := &fakeApp{unshared: true, logger: zap.New(core)}
	withFakeApp(t, fake)

	_, err := execute(t, "plan")
	require.NoError(t, err)
	_, err = execute(t, "capture")
	require.NoError(t, err)
	_, err = execute(t, "run")
	require.NoError(t, err)

	warnings := logs.FilterMessageSnippet("memory cache backend").All()
	require.Len(t, warnings, 2)
	assert.Equal(t, "plan", warnings[0].ContextMap()["command"])
	assert.Equal(t, "capture", warnings[1].ContextMap()["command"])
}

func TestCaptureCommandPrintsSummary(t *testing.T) {
	fake := &fakeApp{report: cards.RunReport{Attempted: 3, Succeeded: 2, Failed: 1}}
	withFakeApp(t, fake)

	out, err := execute(t, "capture")
	require.NoError(t, err)
	assert.Contains(t, out, "captured 2 of 3 social cards, 1 failed")
}

func TestRunCommandPlansThenCaptures(t *testing.T) {
	fake := &fakeApp{report: cards.RunReport{Skipped: true}}
	withFakeApp(t, fake)

	out, err := execute(t, "run")
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "capture"}, fake.calls)
	assert.Contains(t, out, "social card capture disabled")
}

func TestWatchRequiresFileCache(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "watch")
	assert.ErrorContains(t, err, "file cache backend")
}

func TestAppInitFailure(t *testing.T) {
	original := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("no config") }
	t.Cleanup(func() { newApp = original })

	_, err := execute(t, "capture")
	assert.ErrorContains(t, err, "failed to initialize application services")
}

func TestResolveAppMissing(t *testing.T) {
	_, err := resolveApp(context.Background())
	assert.Error(t, err)
}

func TestWatchBatchesDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "socialCardPages.json")

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchBatches(ctx, watcher, target, 200*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return nil
		}, zap.NewNop())
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("[]"), 0o600))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte("[]"), 0o600))
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watchBatches did not stop after cancel")
	}
}
