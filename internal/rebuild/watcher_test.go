package rebuild

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/internal/engine"
	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

const doorGraph = `{
  "name": "door",
  "nodes": [
    {"id": "N1", "kind": "MakeValue", "config": {"value": 1}},
    {"id": "N2", "kind": "Consume"}
  ],
  "edges": [{"from": "N1", "from_port": "Out", "to": "N2", "to_port": "In"}]
}`

const brokenGraph = `{"nodes": [{"id": "x", "kind": "NoSuchKind"}]}`

func newCompiler(t *testing.T) *engine.Compiler {
	t.Helper()
	reg := nodes.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(reg))
	c, err := engine.NewCompiler(reg,
		engine.WithLogger(logging.Discard()),
		engine.WithCache(engine.NewMemoryCache()))
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWatcher_InvalidSchedule(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), "every minute", newCompiler(t), logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron expression")
}

func TestWatcher_NextRun(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), "*/5 * * * *", newCompiler(t), logging.Discard())
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 10, 2, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), w.NextRun(from))
}

func TestWatcher_RunOnce(t *testing.T) {
	dir := t.TempDir()
	door := writeFile(t, dir, "door.json", doorGraph)
	writeFile(t, dir, "broken.json", brokenGraph)
	writeFile(t, dir, "notes.txt", "ignored")

	w, err := NewWatcher(dir, "", newCompiler(t), logging.Discard())
	require.NoError(t, err)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Compiled)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{OutputPath(door)}, report.Written)

	out, err := os.ReadFile(filepath.Join(dir, "door.gen.cs"))
	require.NoError(t, err)
	assert.Equal(t, "var v0 = 1;\nConsume(v0);", string(out))
	assert.NoFileExists(t, filepath.Join(dir, "broken.gen.cs"))

	again, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Compiled)
	assert.Equal(t, 1, again.Unchanged)
	assert.Equal(t, 1, again.Failed)
}

func TestWatcher_RewritesStaleOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "door.json", doorGraph)
	writeFile(t, dir, "door.gen.cs", "// stale")

	w, err := NewWatcher(dir, "", newCompiler(t), logging.Discard())
	require.NoError(t, err)
	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Compiled)
}

type countingCompiler struct {
	inner GraphCompiler
	calls atomic.Int64
}

func (c *countingCompiler) Compile(ctx context.Context, def *schema.GraphDefinition) (*schema.CompiledArtifact, error) {
	c.calls.Add(1)
	return c.inner.Compile(ctx, def)
}

func TestWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "door.json", doorGraph)
	cc := &countingCompiler{inner: newCompiler(t)}

	w, err := NewWatcher(dir, "0 0 1 1 *", cc, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.Error(t, w.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "door.gen.cs"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "initial scan runs immediately")

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Equal(t, int64(1), cc.calls.Load())
}

func TestWatcher_RunOnceCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "door.json", doorGraph)
	w, err := NewWatcher(dir, "", newCompiler(t), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
