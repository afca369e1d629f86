// Command blueprintc compiles node-graph definitions into C# source.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `usage: blueprintc <command> [flags] [args]

commands:
  compile <file>...   compile graphs; several files compile in parallel
  validate <file>     report diagnostics without compiling
  kinds               list registered node kinds
  diagram <file>      render a graph as mermaid, ascii or png
  watch <dir>         recompile *.json graphs in dir on a cron schedule
  history             list recent compile passes
  events <compile-id> show the recorded timeline of a compile pass
  prune               delete old compile passes
  serve               serve the MCP tools over stdio
  install             write ~/.blueprint/settings.json
  version             print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "-v", "--version":
		printVersion(stdout)
		return exitOK
	case "install":
		return runInstall(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	cfg := loadConfig()
	switch cmd {
	case "compile":
		return runCompile(ctx, cfg, rest, stdout, stderr)
	case "validate":
		return runValidate(ctx, cfg, rest, stdout, stderr)
	case "kinds":
		return runKinds(ctx, cfg, rest, stdout, stderr)
	case "diagram":
		return runDiagram(ctx, cfg, rest, stdout, stderr)
	case "watch":
		return runWatch(ctx, cfg, rest, stdout, stderr)
	case "history":
		return runHistory(ctx, cfg, rest, stdout, stderr)
	case "events":
		return runEvents(ctx, cfg, rest, stdout, stderr)
	case "prune":
		return runPrune(ctx, cfg, rest, stdout, stderr)
	case "serve":
		return runServe(ctx, cfg, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}
