package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rendis/blueprint/internal/diagram"
	"github.com/rendis/blueprint/internal/engine"
	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/internal/loader"
	"github.com/rendis/blueprint/internal/rebuild"
	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/pkg/mcp"
	"github.com/rendis/blueprint/pkg/schema"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// loadGraph reads one definition. A missing name defaults to the file name.
func loadGraph(ctx context.Context, path, selector string) (*schema.GraphDefinition, error) {
	def, err := loader.Load(ctx, path, selector)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

func printDiagnostics(w io.Writer, d *schema.Diagnostics) {
	for _, diag := range d.All() {
		fmt.Fprintln(w, diag.String())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runCompile(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("compile", stderr)
	selector := fs.String("select", "", "jq expression selecting the graph object inside each file")
	out := fs.String("o", "", "output file for a single graph (default stdout)")
	asJSON := fs.Bool("json", false, "print the full artifact as JSON")
	trace := fs.Bool("trace", false, "print compile events to stderr as they happen")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(stderr, "compile: at least one graph file is required")
		return exitUsage
	}
	if len(files) > 1 && *out != "" {
		fmt.Fprintln(stderr, "compile: -o needs exactly one graph file")
		return exitUsage
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer a.close()

	if *trace {
		stop := a.trace(ctx, stderr)
		defer stop()
	}

	if len(files) == 1 {
		return compileOne(ctx, a, files[0], *selector, *out, *asJSON, stdout, stderr)
	}
	return compileMany(ctx, a, files, *selector, *asJSON, stdout, stderr)
}

func compileOne(ctx context.Context, a *app, path, selector, out string, asJSON bool, stdout, stderr io.Writer) int {
	def, err := loadGraph(ctx, path, selector)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	artifact, err := a.compiler.Compile(ctx, def)
	if artifact == nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if asJSON {
		if werr := writeJSON(stdout, artifact); werr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", werr)
			return exitFailure
		}
	} else {
		printDiagnostics(stderr, &artifact.Diagnostics)
	}
	if err != nil {
		return exitFailure
	}
	if !asJSON {
		text := artifact.SourceText
		if out == "" || out == "-" {
			text += "\n"
		}
		if werr := writeOutput(out, []byte(text), stdout); werr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", werr)
			return exitFailure
		}
	}
	return exitOK
}

// compileMany compiles every file on the batch pool and writes each result
// next to its graph.
func compileMany(ctx context.Context, a *app, files []string, selector string, asJSON bool, stdout, stderr io.Writer) int {
	defs := make([]*schema.GraphDefinition, 0, len(files))
	paths := make([]string, 0, len(files))
	code := exitOK
	for _, path := range files {
		def, err := loadGraph(ctx, path, selector)
		if err != nil {
			fmt.Fprintf(stderr, "FAIL %s: %v\n", path, err)
			code = exitFailure
			continue
		}
		defs = append(defs, def)
		paths = append(paths, path)
	}

	results := engine.NewBatchCompiler(a.compiler, a.cfg.PoolSize).CompileAll(ctx, defs)
	if asJSON {
		artifacts := make([]*schema.CompiledArtifact, 0, len(results))
		for _, r := range results {
			if r.Artifact != nil {
				artifacts = append(artifacts, r.Artifact)
			}
			if r.Err != nil {
				code = exitFailure
			}
		}
		if err := writeJSON(stdout, artifacts); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		return code
	}

	for _, r := range results {
		path := paths[r.Index]
		if r.Err != nil {
			fmt.Fprintf(stderr, "FAIL %s: %v\n", path, r.Err)
			code = exitFailure
			continue
		}
		target := rebuild.OutputPath(path)
		if err := os.WriteFile(target, []byte(r.Artifact.SourceText), 0o644); err != nil {
			fmt.Fprintf(stderr, "FAIL %s: %v\n", path, err)
			code = exitFailure
			continue
		}
		fmt.Fprintf(stdout, "ok   %s -> %s\n", path, target)
	}
	return code
}

func runValidate(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("validate", stderr)
	selector := fs.String("select", "", "jq expression selecting the graph object")
	asJSON := fs.Bool("json", false, "print diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "validate: exactly one graph file is required")
		return exitUsage
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	def, err := loadGraph(ctx, fs.Arg(0), *selector)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	diags := a.compiler.Validate(ctx, def)
	if *asJSON {
		if err := writeJSON(stdout, diags); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
	} else {
		printDiagnostics(stdout, diags)
		if diags.Valid() {
			fmt.Fprintf(stdout, "%s: valid (%d warnings)\n", def.Name, len(diags.Warnings))
		} else {
			fmt.Fprintf(stdout, "%s: %d errors\n", def.Name, len(diags.Errors))
		}
	}
	if !diags.Valid() {
		return exitFailure
	}
	return exitOK
}

func runKinds(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("kinds", stderr)
	category := fs.String("category", "", "only list kinds of this category")
	asJSON := fs.Bool("json", false, "print the catalog as JSON")
	packs := fs.Bool("packs", false, "list kind pack files instead of kinds")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	if *packs {
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PREFIX\tSTATUS\tKINDS\tPATH\tERROR")
		for _, p := range a.plugins.Packs() {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.Prefix, p.Status, len(p.Kinds), p.Path, p.Error)
		}
		tw.Flush()
		return exitOK
	}

	kinds := a.registry.List()
	if *category != "" {
		filtered := kinds[:0]
		for _, k := range kinds {
			if k.Category == *category {
				filtered = append(filtered, k)
			}
		}
		kinds = filtered
	}

	if *asJSON {
		if err := writeJSON(stdout, kinds); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCATEGORY\tINPUTS\tOUTPUTS\tDESCRIPTION")
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", k.Name, k.Category, len(k.Inputs), len(k.Outputs), k.Description)
	}
	tw.Flush()
	return exitOK
}

func runDiagram(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("diagram", stderr)
	selector := fs.String("select", "", "jq expression selecting the graph object")
	format := fs.String("format", "mermaid", "output format: mermaid, ascii, png")
	out := fs.String("o", "", "output file (default stdout)")
	status := fs.Bool("status", false, "compile first and overlay per-node status")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "diagram: exactly one graph file is required")
		return exitUsage
	}

	a, err := newApp(ctx, cfg, *status)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer a.close()

	def, err := loadGraph(ctx, fs.Arg(0), *selector)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	var artifact *schema.CompiledArtifact
	if *status {
		// A failed pass still carries the statuses worth drawing.
		artifact, _ = a.compiler.Compile(ctx, def)
	}

	model, err := diagram.Build(graph.New(def, a.compiler.Resolver()), artifact)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	var data []byte
	switch *format {
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case "png":
		img, err := diagram.RenderImage(ctx, model)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		data = img
		if *out == "" {
			data = []byte(base64.StdEncoding.EncodeToString(img) + "\n")
		}
	default:
		fmt.Fprintf(stderr, "diagram: unknown format %q\n", *format)
		return exitUsage
	}

	if err := writeOutput(*out, data, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runWatch(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("watch", stderr)
	schedule := fs.String("schedule", cfg.WatchSchedule, "5-field cron schedule")
	once := fs.Bool("once", false, "scan once and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "watch: exactly one directory is required")
		return exitUsage
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer a.close()

	w, err := rebuild.NewWatcher(fs.Arg(0), *schedule, a.compiler, a.logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	if *once {
		report, err := w.RunOnce(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		if err := writeJSON(stdout, report); err != nil {
			return exitFailure
		}
		if report.Failed > 0 {
			return exitFailure
		}
		return exitOK
	}

	if err := w.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	a.logger.Info("watching graphs", "dir", fs.Arg(0), "schedule", *schedule, "next_run", w.NextRun(time.Now()))
	<-ctx.Done()
	if err := w.Stop(); err != nil {
		a.logger.Warn("stop watcher", "error", err)
	}
	return exitOK
}

func runHistory(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	graphName := fs.String("graph", "", "only passes of this graph")
	statusFilter := fs.String("status", "", "only passes ending in this status")
	limit := fs.Int("limit", 20, "maximum number of passes")
	asJSON := fs.Bool("json", false, "print artifacts as JSON")
	id := fs.String("id", "", "print the full artifact of one pass")
	stats := fs.Bool("stats", false, "print artifact cache statistics")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer st.Close()

	switch {
	case *id != "":
		art, err := st.GetArtifact(ctx, *id)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		if err := writeJSON(stdout, art); err != nil {
			return exitFailure
		}
		return exitOK
	case *stats:
		cs, err := st.CacheStats(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		if err := writeJSON(stdout, cs); err != nil {
			return exitFailure
		}
		return exitOK
	}

	artifacts, err := st.ListArtifacts(ctx, store.ArtifactFilter{
		GraphName: *graphName,
		Status:    schema.CompileStatus(*statusFilter),
		Limit:     *limit,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	if *asJSON {
		if err := writeJSON(stdout, artifacts); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGRAPH\tSTATUS\tDURATION\tCREATED")
	for _, art := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
			art.ID, art.GraphName, art.Status, art.DurationMs, art.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
	return exitOK
}

func runPrune(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("prune", stderr)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "delete passes older than this")
	vacuum := fs.Bool("vacuum", false, "reclaim free pages afterwards")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer st.Close()

	n, err := st.PruneArtifacts(ctx, time.Now().UTC().Add(-*olderThan))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if *vacuum {
		if err := st.Vacuum(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
	}
	fmt.Fprintf(stdout, "pruned %d passes\n", n)
	return exitOK
}

func runEvents(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "events: exactly one compile id is required")
		return exitUsage
	}

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer st.Close()

	timeline, err := store.NewEventLog(st).ReplayEvents(ctx, fs.Arg(0))
	if err != nil {
		var be *schema.BlueprintError
		if errors.As(err, &be) && be.Code == schema.ErrCodeNotFound {
			fmt.Fprintf(stderr, "no events recorded for %s\n", fs.Arg(0))
			return exitFailure
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if err := writeJSON(stdout, timeline); err != nil {
		return exitFailure
	}
	return exitOK
}

func runServe(ctx context.Context, cfg Config, stderr io.Writer) int {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer a.close()

	deps := mcp.BlueprintServerDeps{
		Compiler: a.compiler,
		Kinds:    a.registry,
		Logger:   a.logger,
	}
	if a.store != nil {
		deps.History = a.store
	}

	a.logger.Info("serving MCP over stdio", "version", version)
	if err := mcp.NewBlueprintServer(deps).Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
