package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/pkg/schema"
)

func TestBatchCompiler_CompileAll(t *testing.T) {
	c := newCompiler(t)
	b := NewBatchCompiler(c, 4)

	var defs []*schema.GraphDefinition
	for i := 0; i < 12; i++ {
		defs = append(defs, chain(fmt.Sprintf("g%02d", i), i%5))
	}
	defs = append(defs, &schema.GraphDefinition{Name: "broken", Nodes: []schema.NodeDefinition{node("x", "Boom")}})

	results := b.CompileAll(context.Background(), defs)
	require.Len(t, results, len(defs))

	for i, r := range results[:12] {
		assert.Equal(t, i, r.Index)
		require.NoError(t, r.Err)
		assert.Equal(t, defs[i].Name, r.Artifact.GraphName)

		single, err := compile(t, c, defs[i])
		require.NoError(t, err)
		assert.Equal(t, single.SourceText, r.Artifact.SourceText, "batch output matches a standalone pass")
	}

	last := results[12]
	requireCode(t, last.Err, schema.ErrCodeNodeExecution)
	assert.Equal(t, schema.CompileStatusFailed, last.Artifact.Status)

	m := b.Metrics()
	assert.Equal(t, int64(12), m.Completed)
	assert.Equal(t, int64(1), m.Failed)
}

func TestBatchCompiler_CancelledContext(t *testing.T) {
	c := newCompiler(t)
	b := NewBatchCompiler(c, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := b.CompileAll(ctx, []*schema.GraphDefinition{chain("a", 1), chain("b", 1)})
	require.Len(t, results, 2)
	for _, r := range results {
		require.Error(t, r.Err)
	}
}

func TestBatchCompiler_Empty(t *testing.T) {
	b := NewBatchCompiler(newCompiler(t), 2)
	assert.Empty(t, b.CompileAll(context.Background(), nil))
}

func TestBatchCompiler_ConcurrentCompileAll(t *testing.T) {
	b := NewBatchCompiler(newCompiler(t), 2)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			results := b.CompileAll(context.Background(), []*schema.GraphDefinition{
				chain(fmt.Sprintf("left%d", i), 1),
				chain(fmt.Sprintf("right%d", i), 2),
			})
			for _, r := range results {
				assert.NoError(t, r.Err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = b.Metrics()
		}()
	}
	wg.Wait()

	m := b.Metrics()
	assert.Equal(t, int64(2), m.Completed)
	assert.Zero(t, m.Active)
}
