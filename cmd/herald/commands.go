package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"github.com/odvcencio/herald/pkg/definition"
	"github.com/odvcencio/herald/pkg/registry"
	"github.com/odvcencio/herald/pkg/sync"
	"github.com/odvcencio/herald/pkg/watch"
)

// loadSelection reads the local records named in names, or every record of
// both families when names is empty. Malformed records are reported and
// excluded; names that match no record are returned separately.
func (a *app) loadSelection(names []string) ([]*definition.Definition, []string, error) {
	var defs []*definition.Definition
	for _, family := range definition.Families {
		loaded, skipped, err := a.store.ReadAll(family)
		if err != nil {
			return nil, nil, err
		}
		for _, locator := range skipped {
			a.out.Warn("skipping malformed record %s", locator)
		}
		defs = append(defs, loaded...)
	}

	if len(names) == 0 {
		return defs, nil, nil
	}

	byName := make(map[string]*definition.Definition, len(defs))
	for _, def := range defs {
		if _, ok := byName[def.Name]; !ok {
			byName[def.Name] = def
		}
	}

	var selected []*definition.Definition
	var missing []string
	for _, name := range names {
		def, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		selected = append(selected, def)
	}
	return selected, missing, nil
}

// renderReport prints the per-item table and summary, and returns the exit
// code the batch earned.
func (a *app) renderReport(report *sync.Report) int {
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		detail := ""
		if item.Err != nil {
			detail = item.Err.Error()
		}
		rows = append(rows, []string{item.Name, item.Scope.String(), string(item.Action), detail})
	}
	a.out.Table([]string{"NAME", "SCOPE", "RESULT", "DETAIL"}, rows)

	summary := fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped",
		report.Op, report.Succeeded(), report.Failed(), report.Skipped())
	if report.HasFailures() {
		a.out.Error("%s", summary)
		return exitFailed
	}
	a.out.Success("%s", summary)
	return exitOK
}

func (a *app) runBatch(ctx context.Context, names []string, run func(context.Context, []*definition.Definition) *sync.Report) int {
	defs, missing, err := a.loadSelection(names)
	if err != nil {
		a.out.Error("%v", err)
		return exitConfig
	}
	for _, name := range missing {
		a.out.Error("no local record named %q", name)
	}
	if len(defs) == 0 {
		if len(missing) > 0 {
			return exitFailed
		}
		a.out.Warn("nothing to do: no definition records found under %s", a.store.Root())
		return exitOK
	}

	report := run(ctx, defs)
	code := a.renderReport(report)
	if len(missing) > 0 {
		return exitFailed
	}
	return code
}

func (a *app) cmdDeploy(ctx context.Context, args []string) int {
	return a.runBatch(ctx, args, a.engine.Deploy)
}

func (a *app) cmdUpdate(ctx context.Context, args []string) int {
	return a.runBatch(ctx, args, a.engine.Update)
}

func (a *app) cmdDelete(ctx context.Context, args []string) int {
	return a.runBatch(ctx, args, a.engine.Delete)
}

func (a *app) cmdList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	guildID := fs.String("guild", "", "list one guild's commands instead of global")
	all := fs.Bool("all", false, "count commands across every guild plus global")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if *all {
		return a.listAll(ctx)
	}

	scope := registry.GlobalScope
	if *guildID != "" {
		scope = registry.GuildScope(*guildID)
	}

	records, err := a.engine.List(ctx, scope)
	if err != nil {
		a.out.Error("listing %s: %v", scope.String(), err)
		return exitFailed
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.ID, rec.Name, rec.Type.String()})
	}
	a.out.Header("%s (%d commands)", scope.String(), len(records))
	a.out.Table([]string{"ID", "NAME", "KIND"}, rows)
	return exitOK
}

func (a *app) listAll(ctx context.Context) int {
	listing, err := a.engine.ListAll(ctx)
	if err != nil {
		a.out.Error("%v", err)
		return exitFailed
	}

	rows := [][]string{scopeCountRow(listing.Global)}
	for _, g := range listing.Guilds {
		rows = append(rows, scopeCountRow(g))
	}
	a.out.Table([]string{"SCOPE", "NAME", "COMMANDS", "STATUS"}, rows)

	if n := listing.FailedScopes(); n > 0 {
		a.out.Warn("%d commands across reachable scopes; %d scope(s) unreachable", listing.Total(), n)
		return exitFailed
	}
	a.out.Success("%d commands across all scopes", listing.Total())
	return exitOK
}

func scopeCountRow(sc sync.ScopeCount) []string {
	status := "ok"
	if sc.Err != nil {
		status = sc.Err.Error()
	}
	name := sc.GuildName
	if sc.Scope.IsGlobal() {
		name = "-"
	}
	return []string{sc.Scope.String(), name, fmt.Sprintf("%d", sc.Count), status}
}

// cmdValidate checks every local record without touching the network:
// per-kind shape rules, unknown permission names, and duplicate names
// within a family.
func (a *app) cmdValidate(args []string) int {
	defs, missing, err := a.loadSelection(args)
	if err != nil {
		a.out.Error("%v", err)
		return exitConfig
	}
	for _, name := range missing {
		a.out.Error("no local record named %q", name)
	}

	problems := len(missing)
	seen := make(map[definition.Family]map[string]string)
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			a.out.Error("%s: %v", def.Locator, err)
			problems++
			continue
		}
		if def.Permissions != nil && len(def.Permissions.Unknown) > 0 {
			a.out.Warn("%s: unknown permission names %v will be dropped", def.Locator, def.Permissions.Unknown)
		}

		family := def.Kind.Family()
		if seen[family] == nil {
			seen[family] = make(map[string]string)
		}
		if prior, dup := seen[family][def.Name]; dup {
			a.out.Error("%s: duplicate name %q (also in %s)", def.Locator, def.Name, prior)
			problems++
			continue
		}
		seen[family][def.Name] = def.Locator
	}

	if problems > 0 {
		a.out.Error("validate: %d problem(s) in %d record(s)", problems, len(defs))
		return exitFailed
	}
	a.out.Success("validate: %d record(s) ok", len(defs))
	return exitOK
}

// cmdWatch deploys everything once, then redeploys records as their files
// change. Bursts of edits are coalesced before redeploying.
func (a *app) cmdWatch(ctx context.Context, args []string) int {
	if len(args) > 0 {
		a.out.Error("watch takes no arguments")
		return exitConfig
	}

	if code := a.cmdDeploy(ctx, nil); code == exitConfig {
		return code
	}

	dirs := make([]string, 0, len(definition.Families))
	for _, family := range definition.Families {
		dirs = append(dirs, a.store.FamilyDir(family))
	}

	debounce := time.Duration(a.cfg.Watch.DebounceMS) * time.Millisecond
	w, err := watch.New(dirs, debounce, a.log)
	if err != nil {
		a.out.Error("starting watcher: %v", err)
		return exitConfig
	}
	defer w.Close()

	a.out.Header("watching %s for changes (ctrl-c to stop)", a.store.Root())

	err = w.Run(ctx, func(paths []string) {
		a.redeployChanged(ctx, paths)
	})
	if err != nil && ctx.Err() == nil {
		a.out.Error("watcher stopped: %v", err)
		return exitFailed
	}
	a.out.Dim("watch stopped")
	return exitOK
}

// redeployChanged deploys just the records behind the changed paths.
func (a *app) redeployChanged(ctx context.Context, paths []string) {
	var defs []*definition.Definition
	for _, path := range paths {
		locator, err := filepath.Rel(a.store.Root(), path)
		if err != nil {
			continue
		}
		def, err := a.store.Read(locator)
		if err != nil {
			a.out.Warn("skipping %s: %v", locator, err)
			continue
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return
	}

	a.out.Dim("change detected: %d record(s)", len(defs))
	report := a.engine.Deploy(ctx, defs)
	a.renderReport(report)
}
