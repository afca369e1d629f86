package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/blueprint/internal/emit"
	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/internal/validation"
	"github.com/rendis/blueprint/pkg/schema"
)

// ArtifactCache stores compiled artifacts by cache key.
// Implementations must return copies from Lookup.
type ArtifactCache interface {
	Lookup(ctx context.Context, key string) (*schema.CompiledArtifact, bool, error)
	Remember(ctx context.Context, key string, a *schema.CompiledArtifact) error
}

// ArtifactHistory persists the outcome of every compile pass.
type ArtifactHistory interface {
	SaveArtifact(ctx context.Context, a *schema.CompiledArtifact) error
}

// Fingerprinter is implemented by resolvers whose catalog can be summarized
// in a stable string. Only fingerprinted catalogs take part in caching.
type Fingerprinter interface {
	Fingerprint() string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithCache enables the artifact cache.
func WithCache(cache ArtifactCache) Option {
	return func(c *Compiler) { c.cache = cache }
}

// WithHistory records every artifact, failed or not.
func WithHistory(h ArtifactHistory) Option {
	return func(c *Compiler) { c.history = h }
}

// WithEventAppender sends compile state transitions to an event log.
func WithEventAppender(a EventAppender) Option {
	return func(c *Compiler) { c.events = a }
}

// WithSeparator sets the line separator of the emitted source text.
func WithSeparator(sep string) Option {
	return func(c *Compiler) { c.separator = sep }
}

// Compiler turns graph definitions into source text. One Compiler may run
// any number of passes concurrently; each pass owns its own writer and bindings.
type Compiler struct {
	kinds     nodes.Resolver
	validator *validation.GraphValidator
	fsm       *CompileFSM
	logger    *slog.Logger
	cache     ArtifactCache
	history   ArtifactHistory
	events    EventAppender
	separator string
}

// NewCompiler creates a Compiler resolving node kinds through kinds.
func NewCompiler(kinds nodes.Resolver, opts ...Option) (*Compiler, error) {
	if kinds == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "compiler requires a node kind resolver")
	}
	c := &Compiler{kinds: kinds, separator: "\n"}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	v, err := validation.NewGraphValidator(kinds)
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}
	c.validator = v
	c.fsm = NewCompileFSM(c.events)
	return c, nil
}

// Resolver returns the node kind resolver the compiler was built with.
func (c *Compiler) Resolver() nodes.Resolver { return c.kinds }

// FSM exposes the state machine so callers can register transition hooks.
func (c *Compiler) FSM() *CompileFSM { return c.fsm }

// Validate runs the validation pipeline without compiling.
func (c *Compiler) Validate(ctx context.Context, def *schema.GraphDefinition) *schema.Diagnostics {
	if def == nil {
		d := &schema.Diagnostics{}
		d.AddError(schema.Diagnostic{Code: schema.ErrCodeValidation, Message: "graph definition is nil"})
		return d
	}
	return c.validator.Validate(ctx, def)
}

// Plan validates def and returns its execution schedule and graph.
func (c *Compiler) Plan(ctx context.Context, def *schema.GraphDefinition) (*Schedule, *graph.Graph, error) {
	if err := c.Validate(ctx, def).ToError(); err != nil {
		return nil, nil, err
	}
	g := graph.New(def, c.kinds)
	sched, err := BuildSchedule(g)
	if err != nil {
		return nil, nil, err
	}
	return sched, g, nil
}

// CacheKey returns the cache key of def under the current catalog and
// output options, or "" when the catalog cannot be fingerprinted. Every
// option that changes SourceText is part of the key.
func (c *Compiler) CacheKey(def *schema.GraphDefinition) (string, error) {
	fp, ok := c.kinds.(Fingerprinter)
	if !ok {
		return "", nil
	}
	hash, err := graph.ComputeHash(def)
	if err != nil {
		return "", err
	}
	return hash + ":" + fp.Fingerprint() + ":" + strconv.Quote(c.separator), nil
}

// pass is the mutable state of one compile run.
type pass struct {
	id       string
	status   schema.CompileStatus
	artifact *schema.CompiledArtifact
	log      *slog.Logger
	started  time.Time
}

// Compile runs one full pass over def. The returned artifact is never nil
// for a non-nil definition; the error is artifact.Err().
func (c *Compiler) Compile(ctx context.Context, def *schema.GraphDefinition) (*schema.CompiledArtifact, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph definition is nil")
	}

	p := &pass{
		id:      uuid.NewString(),
		status:  schema.CompileStatusUnvalidated,
		started: time.Now(),
	}
	ctx = logging.WithIDs(ctx, p.id, def.Name, "")
	p.log = logging.LogWith(ctx, c.logger)
	p.artifact = &schema.CompiledArtifact{
		ID:        p.id,
		GraphName: def.Name,
		Status:    schema.CompileStatusUnvalidated,
	}

	c.record(ctx, p, schema.EventCompileStarted)

	hash, err := graph.ComputeHash(def)
	if err != nil {
		p.log.Warn("graph hash failed", "error", err)
	}
	p.artifact.GraphHash = hash

	// A hit is the artifact already in history; the pass only leaves a
	// cache_hit event and the cache's hit counter behind.
	key, _ := c.CacheKey(def)
	if hit := c.lookup(ctx, p, key); hit != nil {
		return hit, nil
	}

	if err := ctx.Err(); err != nil {
		return c.cancel(ctx, p, err), p.artifact.Err()
	}

	diags := c.validator.Validate(ctx, def)
	p.artifact.Diagnostics = *diags
	if !diags.Valid() {
		p.log.Info("graph validation failed", "errors", len(diags.Errors))
		c.fail(ctx, p, "")
		return c.finish(ctx, p, key), p.artifact.Err()
	}
	c.advance(ctx, p, schema.CompileStatusValidated)

	g := graph.New(def, c.kinds)
	sched, err := BuildSchedule(g)
	if err != nil {
		c.addError(p, err)
		c.fail(ctx, p, "")
		return c.finish(ctx, p, key), p.artifact.Err()
	}
	p.artifact.Order = sched.Order
	c.advance(ctx, p, schema.CompileStatusScheduled)

	c.advance(ctx, p, schema.CompileStatusExecuting)
	w := emit.NewWriter(emit.WithSeparator(c.separator))
	produced := make(map[string]map[string]string, g.Len())

	for _, id := range sched.Order {
		if err := ctx.Err(); err != nil {
			p.artifact.Partial = w.Lines()
			return c.cancel(ctx, p, err), p.artifact.Err()
		}

		n, _ := g.Node(id)
		outputs, err := c.executeNode(ctx, g, n, w, produced)
		if err != nil {
			p.log.Warn("node execution failed", "node_id", id, "kind", n.Kind, "error", err)
			c.addError(p, err)
			p.artifact.Partial = w.Lines()
			c.fail(ctx, p, id)
			return c.finish(ctx, p, key), p.artifact.Err()
		}
		produced[id] = outputs
	}

	p.artifact.SourceText = w.Build()
	p.artifact.OutputsByNode = make(map[string]map[string]string)
	for id, outs := range produced {
		if len(outs) > 0 {
			p.artifact.OutputsByNode[id] = outs
		}
	}
	c.advance(ctx, p, schema.CompileStatusCompiled)
	return c.finish(ctx, p, key), nil
}

// executeNode binds the inputs of n, runs its behavior and checks that every
// declared output received an identifier.
func (c *Compiler) executeNode(ctx context.Context, g *graph.Graph, n *graph.Node, w *emit.Writer, produced map[string]map[string]string) (map[string]string, error) {
	ctx = logging.WithNodeID(ctx, n.ID)
	if n.Spec == nil {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownNodeKind, "unknown node kind %q", n.Kind).WithNode(n.ID)
	}

	inputs := make(map[string]nodes.Binding)
	for _, port := range n.Spec.Inputs() {
		if e, ok := g.InputEdge(n.ID, port.Name); ok {
			if v, ok := produced[e.From][e.FromPort]; ok {
				inputs[port.Name] = nodes.Binding{Value: v}
				continue
			}
		}
		if port.Optional || port.DefaultLiteral != "" {
			inputs[port.Name] = nodes.Binding{Value: port.DefaultLiteral, Literal: true}
		}
	}

	behavior, err := n.Spec.Behavior(n.Config)
	if err != nil {
		return nil, nodeError(n, err)
	}

	ec := &nodes.ExecContext{
		Context: ctx,
		NodeID:  n.ID,
		Kind:    n.Spec,
		Config:  n.Config,
		Inputs:  inputs,
		Emitter: w,
	}
	outputs, err := runBehavior(behavior, ec)
	if err != nil {
		return nil, nodeError(n, err)
	}

	bound := make(map[string]string, len(outputs))
	for _, port := range n.Spec.Outputs() {
		ident := outputs[port.Name]
		if ident == "" {
			return nil, schema.NewErrorf(schema.ErrCodeNodeExecution,
				"node %s (%s) did not bind output port %s", n.ID, n.Kind, port.Name).
				WithNode(n.ID).WithPort(port.Name)
		}
		bound[port.Name] = ident
	}
	logging.LogWith(ctx, c.logger).Debug("node executed", "kind", n.Kind, "outputs", len(bound))
	return bound, nil
}

func runBehavior(b nodes.Behavior, ec *nodes.ExecContext) (outputs map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.Execute(ec)
}

func nodeError(n *graph.Node, err error) *schema.BlueprintError {
	return schema.NewErrorf(schema.ErrCodeNodeExecution, "node %s (%s): %v", n.ID, n.Kind, err).
		WithNode(n.ID).
		WithCause(err)
}

func (c *Compiler) lookup(ctx context.Context, p *pass, key string) *schema.CompiledArtifact {
	if c.cache == nil || key == "" {
		return nil
	}
	hit, ok, err := c.cache.Lookup(ctx, key)
	if err != nil {
		p.log.Warn("artifact cache lookup failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	out := hit.Clone()
	out.Cached = true
	if name := logging.Graph(ctx); name != "" {
		out.GraphName = name
	}
	p.log.Debug("artifact cache hit", "artifact_id", out.ID)
	c.record(ctx, p, schema.EventCompileCacheHit)
	return out
}

func (c *Compiler) advance(ctx context.Context, p *pass, to schema.CompileStatus) {
	c.move(ctx, p, "", to)
}

func (c *Compiler) fail(ctx context.Context, p *pass, nodeID string) {
	c.move(ctx, p, nodeID, schema.CompileStatusFailed)
}

func (c *Compiler) cancel(ctx context.Context, p *pass, cause error) *schema.CompiledArtifact {
	p.artifact.Diagnostics.AddError(schema.Diagnostic{
		Code:    schema.ErrCodeCancelled,
		Message: "compile cancelled: " + cause.Error(),
	})
	// The caller's context is already done; the final event still has to land.
	c.move(context.WithoutCancel(ctx), p, "", schema.CompileStatusCancelled)
	return c.finish(context.WithoutCancel(ctx), p, "")
}

// move applies a transition. Event log failures are logged and never
// change the outcome of the pass.
func (c *Compiler) move(ctx context.Context, p *pass, nodeID string, to schema.CompileStatus) {
	var err error
	if to == schema.CompileStatusFailed {
		err = c.fsm.Fail(ctx, p.id, nodeID, p.status)
	} else {
		err = c.fsm.Transition(ctx, p.id, p.status, to)
	}
	if err != nil {
		p.log.Warn("compile transition not recorded", "from", p.status, "to", to, "error", err)
	}
	p.status = to
	p.artifact.Status = to
}

func (c *Compiler) record(ctx context.Context, p *pass, eventType string) {
	if err := c.fsm.Record(ctx, p.id, eventType); err != nil {
		p.log.Warn("compile event not recorded", "event", eventType, "error", err)
	}
}

func (c *Compiler) addError(p *pass, err error) {
	var be *schema.BlueprintError
	if errors.As(err, &be) {
		p.artifact.Diagnostics.AddError(be.Diagnostic())
		return
	}
	p.artifact.Diagnostics.AddError(schema.Diagnostic{Code: schema.ErrCodeNodeExecution, Message: err.Error()})
}

// finish stamps the artifact and hands it to history and cache.
func (c *Compiler) finish(ctx context.Context, p *pass, key string) *schema.CompiledArtifact {
	a := p.artifact
	a.DurationMs = time.Since(p.started).Milliseconds()
	a.CreatedAt = time.Now().UTC()

	if c.history != nil {
		if err := c.history.SaveArtifact(ctx, a); err != nil {
			p.log.Warn("artifact history save failed", "error", err)
		}
	}
	if c.cache != nil && key != "" && a.Succeeded() {
		if err := c.cache.Remember(ctx, key, a); err != nil {
			p.log.Warn("artifact cache save failed", "error", err)
		}
	}

	p.log.Info("compile finished",
		"status", a.Status,
		"nodes", len(a.Order),
		"errors", len(a.Diagnostics.Errors),
		"duration_ms", a.DurationMs)
	return a.Clone()
}
