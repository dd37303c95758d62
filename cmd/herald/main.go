// Command herald synchronizes local application-command definitions with a
// remote command registry. Definitions live as JSON records under commands/
// and context-menu/; herald diffs them against the registry per scope and
// issues the minimal create, update, and delete calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/herald/pkg/config"
	"github.com/odvcencio/herald/pkg/logging"
	"github.com/odvcencio/herald/pkg/registry"
	"github.com/odvcencio/herald/pkg/store"
	"github.com/odvcencio/herald/pkg/sync"
	"github.com/odvcencio/herald/pkg/telemetry"
	"github.com/odvcencio/herald/pkg/terminal"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Exit codes: 0 all items succeeded, 1 some items failed, 2 the run could
// not start at all.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// app bundles the wired-up pieces a subcommand needs.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	out     *terminal.Writer
	store   *store.Store
	engine  *sync.Engine
	metrics *telemetry.Registry
}

func main() {
	var (
		configPath string
		noColor    bool
	)
	flag.StringVar(&configPath, "config", "", "explicit config file path")
	flag.BoolVar(&noColor, "no-color", false, "disable styled output")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(exitConfig)
	}

	if args[0] == "version" {
		fmt.Printf("herald %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(exitOK)
	}

	out := terminal.New()
	if noColor {
		out = terminal.NewWithOutput(os.Stdout, false)
	}

	a, err := newApp(configPath, out)
	if err != nil {
		out.Error("%v", err)
		os.Exit(exitConfig)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code := a.dispatch(ctx, args[0], args[1:])
	cancel()
	a.close()
	os.Exit(code)
}

func newApp(configPath string, out *terminal.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.NewLogger(cfg.Logging.Dir)
	if err != nil {
		return nil, err
	}
	log.SetMinLevel(logging.Level(cfg.Logging.Level))

	client := registry.NewClientWithOptions(cfg.Registry.Token, cfg.Registry.ApplicationID, registry.ClientOptions{
		BaseURL:   cfg.Registry.BaseURL,
		Timeout:   time.Duration(cfg.Registry.TimeoutSeconds) * time.Second,
		RateLimit: rate.Limit(cfg.Registry.RequestsPerSecond),
		Burst:     cfg.Registry.Burst,
	})

	st := store.New(cfg.Definitions.Dir, log)
	metrics := telemetry.NewRegistry()

	engine := sync.NewEngine(client, st, log, metrics)
	engine.SetMaxRetries(cfg.Sync.MaxRetries)
	engine.SetFanout(cfg.Sync.Fanout)

	return &app{
		cfg:     cfg,
		log:     log,
		out:     out,
		store:   st,
		engine:  engine,
		metrics: metrics,
	}, nil
}

func (a *app) close() {
	if a.log == nil {
		return
	}
	a.log.Debug(logging.CategorySync, "metrics", "run counters", map[string]any{
		"counters": a.metrics.Snapshot(),
	})
	_ = a.log.Close()
	a.log = nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) int {
	switch cmd {
	case "list":
		return a.cmdList(ctx, args)
	case "deploy":
		return a.cmdDeploy(ctx, args)
	case "update":
		return a.cmdUpdate(ctx, args)
	case "delete":
		return a.cmdDelete(ctx, args)
	case "validate":
		return a.cmdValidate(args)
	case "watch":
		return a.cmdWatch(ctx, args)
	default:
		a.out.Error("unknown command: %s", cmd)
		printUsage()
		return exitConfig
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `herald - declarative application-command sync

Usage:
  herald [flags] <command> [args]

Commands:
  list              List global commands in the registry
  list -guild <id>  List one guild's commands
  list -all         Count commands across every guild plus global
  deploy [names]    Create or update the named definitions (all if none given)
  update [names]    Update only; refuse to create missing records
  delete [names]    Delete remote records and clear stored ids
  validate          Check local definition records without network calls
  watch             Redeploy definitions as their files change
  version           Print version information

Flags:
  -config <path>    Explicit config file (skips the user/project hierarchy)
  -no-color         Disable styled output
`)
}
