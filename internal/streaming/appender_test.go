package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/internal/engine"
	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/pkg/schema"
)

type recordingAppender struct {
	mu     sync.Mutex
	events []*store.Event
	err    error
}

func (r *recordingAppender) AppendEvent(_ context.Context, e *store.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestPublishingAppender(t *testing.T) {
	hub := NewMemoryHub()
	next := &recordingAppender{}
	a := NewPublishingAppender(hub, next)

	ch, cancel, err := hub.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)
	defer cancel()

	ev := &store.Event{CompileID: "c-1", NodeID: "N1", Type: schema.EventCompileFailed, Payload: []byte(`{"from":"executing","to":"failed"}`)}
	require.NoError(t, a.AppendEvent(context.Background(), ev))

	got := receive(t, ch)
	assert.Equal(t, "c-1", got.CompileID)
	assert.Equal(t, "N1", got.NodeID)
	assert.Equal(t, schema.EventCompileFailed, got.EventType)
	assert.JSONEq(t, `{"from":"executing","to":"failed"}`, string(got.Payload))
	assert.False(t, got.Timestamp.IsZero())
	assert.Len(t, next.events, 1)
}

func TestPublishingAppender_NextError(t *testing.T) {
	hub := NewMemoryHub()
	a := NewPublishingAppender(hub, &recordingAppender{err: errors.New("disk full")})

	ch, cancel, err := hub.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)
	defer cancel()

	err = a.AppendEvent(context.Background(), &store.Event{CompileID: "c-1", Type: schema.EventCompileStarted})
	require.EqualError(t, err, "disk full")
	assert.Equal(t, schema.EventCompileStarted, receive(t, ch).EventType)
}

func TestPublishingAppender_CompilePass(t *testing.T) {
	hub := NewMemoryHub()
	reg := nodes.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(reg))
	c, err := engine.NewCompiler(reg,
		engine.WithLogger(logging.Discard()),
		engine.WithEventAppender(NewPublishingAppender(hub, nil)))
	require.NoError(t, err)

	ch, cancel, err := hub.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)
	defer cancel()

	artifact, err := c.Compile(context.Background(), &schema.GraphDefinition{
		Name: "door",
		Nodes: []schema.NodeDefinition{
			{ID: "N1", Kind: "MakeValue", Config: map[string]any{"value": 1}},
			{ID: "N2", Kind: "Consume"},
		},
		Edges: []schema.EdgeDefinition{{From: "N1", FromPort: "Out", To: "N2", ToPort: "In"}},
	})
	require.NoError(t, err)

	var types []string
	for range 5 {
		e := receive(t, ch)
		assert.Equal(t, artifact.ID, e.CompileID)
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		schema.EventCompileStarted,
		schema.EventCompileValidated,
		schema.EventCompileScheduled,
		schema.EventCompileExecuting,
		schema.EventCompileCompleted,
	}, types)
}
