package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rendis/blueprint/pkg/schema"
)

// BatchResult is the outcome of one definition in a batch.
type BatchResult struct {
	Index    int
	Artifact *schema.CompiledArtifact
	Err      error
}

// BatchCompiler runs independent compile passes on a bounded pool.
type BatchCompiler struct {
	compiler *Compiler
	size     int
	logger   *slog.Logger

	mu      sync.Mutex
	metrics PoolMetrics
}

// NewBatchCompiler creates a BatchCompiler running at most size passes at once.
func NewBatchCompiler(c *Compiler, size int) *BatchCompiler {
	return &BatchCompiler{compiler: c, size: size, logger: c.logger}
}

// CompileAll compiles every definition and returns the results in input order.
// Definitions that could not be submitted carry the context error.
func (b *BatchCompiler) CompileAll(ctx context.Context, defs []*schema.GraphDefinition) []BatchResult {
	results := make([]BatchResult, len(defs))
	pool := NewWorkerPool(b.size, WithPanicHandler(func(r any) {
		b.logger.Error("batch compile panicked", "panic", fmt.Sprint(r))
	}))

	for i, def := range defs {
		results[i].Index = i
		err := pool.Submit(ctx, func(ctx context.Context) error {
			a, err := b.compiler.Compile(ctx, def)
			results[i].Artifact = a
			results[i].Err = err
			return err
		})
		if err != nil {
			results[i].Err = err
		}
	}

	pool.Shutdown()
	b.mu.Lock()
	b.metrics = pool.Metrics()
	b.mu.Unlock()
	return results
}

// Metrics returns the pool metrics of the most recently finished CompileAll call.
func (b *BatchCompiler) Metrics() PoolMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}
