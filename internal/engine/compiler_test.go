package engine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/pkg/schema"
)

func TestCompile_SimpleChain(t *testing.T) {
	c := newCompiler(t)
	def := &schema.GraphDefinition{
		Name:  "simple",
		Nodes: []schema.NodeDefinition{value("N1", 42), node("N2", "Consume")},
		Edges: []schema.EdgeDefinition{edge("N1", "Out", "N2", "In")},
	}

	a, err := compile(t, c, def)
	require.NoError(t, err)
	assert.Equal(t, schema.CompileStatusCompiled, a.Status)
	assert.Equal(t, []string{"N1", "N2"}, a.Order)
	assert.Equal(t, "var v0 = 42;\nConsume(v0);", a.SourceText)
	assert.Equal(t, map[string]map[string]string{"N1": {"Out": "v0"}}, a.OutputsByNode)
	assert.True(t, a.Diagnostics.Valid())
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "simple", a.GraphName)
	assert.NotEmpty(t, a.GraphHash)
	assert.False(t, a.Cached)
}

func TestCompile_OptionalInputDefault(t *testing.T) {
	c := newCompiler(t)
	def := &schema.GraphDefinition{Nodes: []schema.NodeDefinition{node("N3", "OptionalConsume")}}

	a, err := compile(t, c, def)
	require.NoError(t, err)
	assert.Equal(t, "Consume(fallback);", a.SourceText)
	assert.Empty(t, a.OutputsByNode)
}

func TestCompile_DefaultLiteralChangeTouchesOnlyReader(t *testing.T) {
	withDefault := func(lit string) *Compiler {
		reg := nodes.NewRegistry()
		require.NoError(t, nodes.RegisterBuiltins(reg))
		reg.MustRegister(
			nodes.Kind{
				Name:     "Pass",
				Ports:    []nodes.PortDescriptor{nodes.Input("In"), nodes.Output("Out")},
				Template: nodes.Lines("var ${{ outputs.Out }} = ${{ inputs.In }};"),
			},
			nodes.Kind{
				Name:     "Reader",
				Ports:    []nodes.PortDescriptor{nodes.OptionalInput("In", lit)},
				Template: nodes.Lines("Read(${{ inputs.In }});"),
			},
		)
		c, err := NewCompiler(reg, WithLogger(logging.Discard()))
		require.NoError(t, err)
		return c
	}
	def := &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{
			value("a", 1), node("b", "Pass"), node("c", "Consume"),
			node("m", "Reader"),
			value("z", 7), node("zz", "Consume"),
		},
		Edges: []schema.EdgeDefinition{
			edge("a", "Out", "b", "In"),
			edge("b", "Out", "c", "In"),
			edge("z", "Out", "zz", "In"),
		},
	}

	before, err := compile(t, withDefault("0"), def)
	require.NoError(t, err)
	after, err := compile(t, withDefault("42"), def)
	require.NoError(t, err)

	assert.Equal(t, before.Order, after.Order)
	assert.Equal(t, before.OutputsByNode, after.OutputsByNode)

	oldLines := strings.Split(before.SourceText, "\n")
	newLines := strings.Split(after.SourceText, "\n")
	require.Len(t, newLines, len(oldLines))
	var changed []int
	for i := range oldLines {
		if oldLines[i] != newLines[i] {
			changed = append(changed, i)
		}
	}
	require.Equal(t, []int{3}, changed)
	assert.Equal(t, "Read(0);", oldLines[3])
	assert.Equal(t, "Read(42);", newLines[3])
}

func TestCompile_MultipleEdgesOnSingleInput(t *testing.T) {
	c := newCompiler(t)
	def := &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{value("A", 1), value("B", 2), node("C", "Consume")},
		Edges: []schema.EdgeDefinition{
			edge("A", "Out", "C", "In"),
			edge("B", "Out", "C", "In"),
		},
	}

	a, err := compile(t, c, def)
	requireCode(t, err, schema.ErrCodeMultipleEdges)
	assert.Equal(t, schema.CompileStatusFailed, a.Status)
	assert.Equal(t, 1, a.Diagnostics.Count(schema.ErrCodeMultipleEdges))
	assert.Empty(t, a.SourceText)
	assert.Empty(t, a.Order)
}

func TestCompile_CycleRejected(t *testing.T) {
	c := newCompiler(t)
	def := &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{node("N4", "Pass"), node("N5", "Pass")},
		Edges: []schema.EdgeDefinition{
			edge("N4", "Out", "N5", "In"),
			edge("N5", "Out", "N4", "In"),
		},
	}

	a, err := compile(t, c, def)
	requireCode(t, err, schema.ErrCodeCycleDetected)
	assert.Equal(t, schema.CompileStatusFailed, a.Status)
	assert.Empty(t, a.SourceText)
	assert.Empty(t, a.Partial)

	var cycle schema.Diagnostic
	for _, d := range a.Diagnostics.Errors {
		if d.Code == schema.ErrCodeCycleDetected {
			cycle = d
		}
	}
	assert.ElementsMatch(t, []string{"N4", "N5"}, cycle.Nodes)
}

func TestCompile_Deterministic(t *testing.T) {
	c := newCompiler(t)
	def := &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{
			node("sum", "BinaryOp"), value("b", 2), value("a", 1), node("out", "Consume"),
		},
		Edges: []schema.EdgeDefinition{
			edge("a", "Out", "sum", "A"),
			edge("b", "Out", "sum", "B"),
			edge("sum", "Result", "out", "In"),
		},
	}
	def.Nodes[0].Config = map[string]any{"operator": "+"}

	first, err := compile(t, c, def)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "sum", "out"}, first.Order)
	assert.Equal(t, "var v0 = 1;\nvar v1 = 2;\nvar t0 = v0 + v1;\nConsume(t0);", first.SourceText)

	for i := 0; i < 5; i++ {
		again, err := compile(t, c, def)
		require.NoError(t, err)
		assert.Equal(t, first.SourceText, again.SourceText)
		assert.Equal(t, first.OutputsByNode, again.OutputsByNode)
		assert.NotEqual(t, first.ID, again.ID)
	}
}

func TestCompile_IdentifiersUnique(t *testing.T) {
	c := newCompiler(t)
	a, err := compile(t, c, chain("long", 6))
	require.NoError(t, err)

	seen := map[string]string{}
	for id, outs := range a.OutputsByNode {
		for _, ident := range outs {
			prev, dup := seen[ident]
			assert.False(t, dup, "identifier %s used by %s and %s", ident, prev, id)
			seen[ident] = id
		}
	}
	assert.Len(t, seen, 7)
}

func TestCompile_TopologicalSoundness(t *testing.T) {
	c := newCompiler(t)
	def := chain("sound", 4)
	a, err := compile(t, c, def)
	require.NoError(t, err)

	pos := map[string]int{}
	for i, id := range a.Order {
		pos[id] = i
	}
	for _, e := range def.Edges {
		assert.Less(t, pos[e.From], pos[e.To], "%s must precede %s", e.From, e.To)
	}
}

func TestCompile_NodeFailureStopsPass(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		message string
	}{
		{name: "error", kind: "Boom", message: "generator exploded"},
		{name: "panic", kind: "Panic", message: "unexpected state"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newCompiler(t)
			def := &schema.GraphDefinition{
				Nodes: []schema.NodeDefinition{
					value("a", 1), node("b", "Consume"), node("c", tc.kind), value("d", 2), node("e", "Consume"),
				},
				Edges: []schema.EdgeDefinition{
					edge("a", "Out", "b", "In"),
					edge("d", "Out", "e", "In"),
				},
			}

			a, err := compile(t, c, def)
			requireCode(t, err, schema.ErrCodeNodeExecution)
			assert.Contains(t, err.Error(), tc.message)
			assert.Equal(t, schema.CompileStatusFailed, a.Status)
			assert.Empty(t, a.SourceText)
			assert.Equal(t, []string{"var v0 = 1;", "Consume(v0);"}, a.Partial)
			require.Len(t, a.Diagnostics.Errors, 1)
			assert.Equal(t, "c", a.Diagnostics.Errors[0].NodeID)
		})
	}
}

func TestCompile_UnboundOutput(t *testing.T) {
	c := newCompiler(t)
	a, err := compile(t, c, &schema.GraphDefinition{Nodes: []schema.NodeDefinition{node("lazy", "Lazy")}})
	requireCode(t, err, schema.ErrCodeNodeExecution)
	assert.Equal(t, "Out", a.Diagnostics.Errors[0].Port)
	assert.Equal(t, []string{"// nothing bound"}, a.Partial)
}

func TestCompile_Cancelled(t *testing.T) {
	reg := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.MustRegister(nodes.Kind{
		Name:  "CancelNow",
		Ports: []nodes.PortDescriptor{nodes.Input("In"), nodes.Output("Out")},
		Factory: func(map[string]any) (nodes.Behavior, error) {
			return nodes.BehaviorFunc(func(ec *nodes.ExecContext) (map[string]string, error) {
				cancel()
				out := nodes.AllocateOutputs(ec)
				ec.Emitter.Emitf("var %s = %s;", out["Out"], ec.Input("In"))
				return out, nil
			}), nil
		},
	})
	c, err := NewCompiler(reg, WithLogger(logging.Discard()))
	require.NoError(t, err)

	def := &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{value("a", 1), node("b", "CancelNow"), node("c", "Consume")},
		Edges: []schema.EdgeDefinition{edge("a", "Out", "b", "In"), edge("b", "Out", "c", "In")},
	}
	a, err := c.Compile(ctx, def)
	requireCode(t, err, schema.ErrCodeCancelled)
	assert.Equal(t, schema.CompileStatusCancelled, a.Status)
	assert.Empty(t, a.SourceText)
	assert.Equal(t, []string{"var v0 = 1;", "var v1 = v0;"}, a.Partial)
}

func TestCompile_CancelledBeforeStart(t *testing.T) {
	c := newCompiler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := c.Compile(ctx, chain("x", 1))
	requireCode(t, err, schema.ErrCodeCancelled)
	assert.Equal(t, schema.CompileStatusCancelled, a.Status)
	assert.Empty(t, a.Partial)
}

func TestCompile_DoesNotMutateDefinition(t *testing.T) {
	c := newCompiler(t)
	def := chain("immutable", 2)
	def.Nodes[0].Config = map[string]any{"value": map[string]any{"nested": []any{1, 2}}}
	before, err := graph.ComputeHash(def)
	require.NoError(t, err)
	nodesBefore := len(def.Nodes)

	_, err = compile(t, c, def)
	require.NoError(t, err)

	after, err := graph.ComputeHash(def)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, def.Nodes, nodesBefore)
}

func TestCompile_EmptyGraph(t *testing.T) {
	c := newCompiler(t)
	a, err := compile(t, c, &schema.GraphDefinition{Name: "empty"})
	require.NoError(t, err)
	assert.Equal(t, "", a.SourceText)
	assert.Empty(t, a.Order)
}

func TestCompile_NilDefinition(t *testing.T) {
	c := newCompiler(t)
	a, err := c.Compile(context.Background(), nil)
	assert.Nil(t, a)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestCompile_Separator(t *testing.T) {
	c := newCompiler(t, WithSeparator("\r\n"))
	a, err := compile(t, c, chain("crlf", 0))
	require.NoError(t, err)
	assert.Equal(t, "var v0 = 1;\r\nConsume(v0);", a.SourceText)
}

func TestCompile_KeepsWarnings(t *testing.T) {
	c := newCompiler(t)
	def := &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{value("a", 1), node("b", "Consume"), node("lonely", "OptionalConsume")},
		Edges: []schema.EdgeDefinition{edge("a", "Out", "b", "In")},
	}
	a, err := compile(t, c, def)
	require.NoError(t, err)
	assert.True(t, a.Diagnostics.Has(schema.ErrCodeIsolatedNode))
	assert.Contains(t, a.SourceText, "Consume(fallback);")
}

func TestCompile_EmitsEvents(t *testing.T) {
	app := &mockAppender{}
	c := newCompiler(t, WithEventAppender(app))

	_, err := compile(t, c, chain("events", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{
		schema.EventCompileStarted,
		schema.EventCompileValidated,
		schema.EventCompileScheduled,
		schema.EventCompileExecuting,
		schema.EventCompileCompleted,
	}, app.Types())
}

func TestCompile_FailureEventNamesNode(t *testing.T) {
	app := &mockAppender{}
	c := newCompiler(t, WithEventAppender(app))

	_, err := compile(t, c, &schema.GraphDefinition{Nodes: []schema.NodeDefinition{node("x", "Boom")}})
	require.Error(t, err)
	events := app.Events()
	last := events[len(events)-1]
	assert.Equal(t, schema.EventCompileFailed, last.Type)
	assert.Equal(t, "x", last.NodeID)
}

func TestCompile_EventStoreFailureDoesNotFailPass(t *testing.T) {
	c := newCompiler(t, WithEventAppender(&failAppender{}))
	a, err := compile(t, c, chain("store-down", 1))
	require.NoError(t, err)
	assert.True(t, a.Succeeded())
}

type historyRecorder struct {
	mu        sync.Mutex
	artifacts []*schema.CompiledArtifact
}

func (h *historyRecorder) SaveArtifact(_ context.Context, a *schema.CompiledArtifact) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.artifacts = append(h.artifacts, a.Clone())
	return nil
}

func TestCompile_History(t *testing.T) {
	h := &historyRecorder{}
	c := newCompiler(t, WithHistory(h))

	ok, err := compile(t, c, chain("good", 1))
	require.NoError(t, err)
	bad, err := compile(t, c, &schema.GraphDefinition{Nodes: []schema.NodeDefinition{node("x", "Nope")}})
	requireCode(t, err, schema.ErrCodeUnknownNodeKind)

	require.Len(t, h.artifacts, 2)
	assert.Equal(t, ok.ID, h.artifacts[0].ID)
	assert.Equal(t, bad.ID, h.artifacts[1].ID)
	assert.Equal(t, schema.CompileStatusFailed, h.artifacts[1].Status)
}

func TestCompile_HooksObserveTransitions(t *testing.T) {
	c := newCompiler(t)
	var seen []string
	c.FSM().OnAfter(schema.CompileStatusExecuting, schema.CompileStatusCompiled, func(from, to string) error {
		seen = append(seen, from+"->"+to)
		return nil
	})

	_, err := compile(t, c, chain("hooks", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"executing->compiled"}, seen)
}

func TestPlan(t *testing.T) {
	c := newCompiler(t)
	sched, g, err := c.Plan(context.Background(), chain("plan", 2))
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"src"}, sched.Roots)
	assert.Len(t, sched.Levels, 4)

	_, _, err = c.Plan(context.Background(), &schema.GraphDefinition{Nodes: []schema.NodeDefinition{node("x", "Nope")}})
	requireCode(t, err, schema.ErrCodeUnknownNodeKind)
}

func TestNewCompiler_RequiresResolver(t *testing.T) {
	_, err := NewCompiler(nil)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestCompile_WithLibSQLEventLog(t *testing.T) {
	s, err := store.NewLibSQLStore("file:" + t.TempDir() + "/events.db")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(context.Background()))
	el := store.NewEventLog(s)

	c := newCompiler(t, WithEventAppender(el), WithHistory(s))
	a, err := compile(t, c, chain("persisted", 1))
	require.NoError(t, err)

	tl, err := el.ReplayEvents(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.CompileStatusCompiled, tl.Status)
	assert.Len(t, tl.Transitions, 4)

	saved, err := s.GetArtifact(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.SourceText, saved.SourceText)
}
