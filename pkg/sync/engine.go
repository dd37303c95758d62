// Package sync is the reconciliation engine: it diffs local definition
// records against the remote registry's state per scope, issues the minimal
// create/update/delete calls, and writes registry-assigned ids back to the
// records they came from. One item's failure never halts the batch.
package sync

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/herald/pkg/definition"
	"github.com/odvcencio/herald/pkg/errors"
	"github.com/odvcencio/herald/pkg/logging"
	"github.com/odvcencio/herald/pkg/registry"
	"github.com/odvcencio/herald/pkg/telemetry"
)

const (
	defaultMaxRetries = 1
	defaultFanout     = 8
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// RegistryClient is the subset of the registry API the engine drives.
type RegistryClient interface {
	List(ctx context.Context, scope registry.Scope) ([]definition.RemoteRecord, error)
	Create(ctx context.Context, scope registry.Scope, payload *definition.Payload) (*definition.RemoteRecord, error)
	Update(ctx context.Context, scope registry.Scope, id string, payload *definition.Payload) (*definition.RemoteRecord, error)
	Delete(ctx context.Context, scope registry.Scope, id string) error
	ListGuilds(ctx context.Context) ([]registry.Guild, error)
}

// DefinitionStore is the write-back surface the engine needs from local
// storage.
type DefinitionStore interface {
	SetRegistryID(locator, id string) error
	ClearRegistryIDs(family definition.Family, ids map[string]struct{}) ([]string, error)
}

// Engine reconciles local definitions against the remote registry.
type Engine struct {
	client     RegistryClient
	store      DefinitionStore
	log        *logging.Logger
	metrics    *telemetry.Registry
	maxRetries int
	fanout     int
}

// NewEngine creates an engine. Logger and metrics may be nil.
func NewEngine(client RegistryClient, store DefinitionStore, log *logging.Logger, metrics *telemetry.Registry) *Engine {
	if log == nil {
		log = logging.NewDiscard()
	}
	if metrics == nil {
		metrics = telemetry.NewRegistry()
	}
	return &Engine{
		client:     client,
		store:      store,
		log:        log,
		metrics:    metrics,
		maxRetries: defaultMaxRetries,
		fanout:     defaultFanout,
	}
}

// SetMaxRetries updates how many times a retryable registry error is retried
// per call.
func (e *Engine) SetMaxRetries(n int) {
	if n >= 0 {
		e.maxRetries = n
	}
}

// SetFanout updates the bound on concurrent per-guild listings.
func (e *Engine) SetFanout(n int) {
	if n > 0 {
		e.fanout = n
	}
}

// scopeIndex maps command name to the first remote record with that name in
// list order. Built fresh per batch, never cached across runs.
type scopeIndex map[string]definition.RemoteRecord

// scopeState memoizes one scope's remote state for the duration of a batch.
// A failed fetch is memoized too so a bad scope is not re-fetched per item.
type scopeState struct {
	index scopeIndex
	err   error
}

// Deploy reconciles the selected definitions: creates what is missing
// remotely, updates what exists, and persists assigned ids.
func (e *Engine) Deploy(ctx context.Context, defs []*definition.Definition) *Report {
	return e.reconcile(ctx, "deploy", defs, true)
}

// Update reconciles like Deploy but refuses to create: an item whose name is
// absent in its target scope is recorded as a failure.
func (e *Engine) Update(ctx context.Context, defs []*definition.Definition) *Report {
	return e.reconcile(ctx, "update", defs, false)
}

func (e *Engine) reconcile(ctx context.Context, op string, defs []*definition.Definition, allowCreate bool) *Report {
	report := &Report{Op: op}
	scopes := make(map[registry.Scope]*scopeState)

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			e.log.Warn(logging.CategorySync, "invalid_definition", "excluding record from batch", map[string]any{
				"locator": def.Locator,
				"error":   err.Error(),
			})
			report.add(def.Name, registry.GlobalScope, ActionSkipped, err)
			e.metrics.Counter("items", telemetry.Labels{"outcome": string(ActionSkipped)}).Inc()
			continue
		}

		if def.Permissions != nil && len(def.Permissions.Unknown) > 0 {
			e.log.Warn(logging.CategoryCodec, "unknown_permissions", "dropping unknown permission names", map[string]any{
				"name":    def.Name,
				"unknown": def.Permissions.Unknown,
			})
		}

		targets := Targets(def)
		if len(targets) > 1 {
			// One local id field, N remote records: only the last assigned id
			// survives in the record.
			e.log.Warn(logging.CategorySync, "multi_guild_id", "definition targets multiple guilds; local id keeps the last assignment", map[string]any{
				"name":   def.Name,
				"guilds": def.GuildIDs,
			})
		}

		payload := def.Payload()
		for _, scope := range targets {
			result := e.reconcileOne(ctx, def, payload, scope, scopes, allowCreate)
			report.Items = append(report.Items, result)
			e.metrics.Counter("items", telemetry.Labels{"outcome": string(result.Action)}).Inc()
		}
	}

	e.log.Info(logging.CategorySync, op+"_done", "batch finished", map[string]any{
		"succeeded": report.Succeeded(),
		"failed":    report.Failed(),
		"skipped":   report.Skipped(),
	})
	return report
}

func (e *Engine) reconcileOne(ctx context.Context, def *definition.Definition, payload *definition.Payload, scope registry.Scope, scopes map[registry.Scope]*scopeState, allowCreate bool) ItemResult {
	index, err := e.loadScope(ctx, scope, scopes)
	if err != nil {
		return ItemResult{Name: def.Name, Scope: scope, Action: ActionFailed, Err: err}
	}

	found, ok := index[def.Name]
	if ok {
		if def.RegistryID != "" && def.RegistryID != found.ID {
			e.log.Warn(logging.CategorySync, "stale_registry_id", "stored id differs from remote match; updating the remote match", map[string]any{
				"name":      def.Name,
				"scope":     scope.String(),
				"stored":    def.RegistryID,
				"remote_id": found.ID,
			})
		}

		rec, err := e.callUpdate(ctx, scope, found.ID, payload)
		if err != nil {
			return ItemResult{Name: def.Name, Scope: scope, Action: ActionFailed, Err: err}
		}
		if def.RegistryID != rec.ID {
			if err := e.store.SetRegistryID(def.Locator, rec.ID); err != nil {
				return ItemResult{Name: def.Name, Scope: scope, Action: ActionFailed, Err: err}
			}
			def.RegistryID = rec.ID
		}
		return ItemResult{Name: def.Name, Scope: scope, Action: ActionUpdated}
	}

	if !allowCreate {
		err := errors.New(errors.ErrCodeNotDeployed, "no remote record to update").
			WithContext("name", def.Name).
			WithContext("scope", scope.String())
		return ItemResult{Name: def.Name, Scope: scope, Action: ActionFailed, Err: err}
	}

	if def.RegistryID != "" {
		// The stored id was deleted out-of-band; anything keyed on it (e.g.
		// permission overrides) is now orphaned.
		e.log.Warn(logging.CategorySync, "orphaned_registry_id", "stored id not found in scope; re-creating under a new id", map[string]any{
			"name":   def.Name,
			"scope":  scope.String(),
			"stored": def.RegistryID,
		})
	}

	rec, err := e.callCreate(ctx, scope, payload)
	if err != nil {
		return ItemResult{Name: def.Name, Scope: scope, Action: ActionFailed, Err: err}
	}
	if err := e.store.SetRegistryID(def.Locator, rec.ID); err != nil {
		e.log.Error(logging.CategoryStore, "write_back_failed", "remote record created but id write-back failed", map[string]any{
			"name":    def.Name,
			"locator": def.Locator,
			"id":      rec.ID,
		})
		return ItemResult{Name: def.Name, Scope: scope, Action: ActionFailed, Err: err}
	}
	def.RegistryID = rec.ID
	index[def.Name] = *rec
	return ItemResult{Name: def.Name, Scope: scope, Action: ActionCreated}
}

// loadScope fetches a scope's remote state once per batch and indexes it by
// name. On a duplicate name the first record in list order wins.
func (e *Engine) loadScope(ctx context.Context, scope registry.Scope, scopes map[registry.Scope]*scopeState) (scopeIndex, error) {
	if state, ok := scopes[scope]; ok {
		return state.index, state.err
	}

	records, err := e.listScope(ctx, scope)
	if err != nil {
		scopes[scope] = &scopeState{err: err}
		return nil, err
	}

	index := make(scopeIndex, len(records))
	for _, rec := range records {
		if prior, dup := index[rec.Name]; dup {
			e.log.Warn(logging.CategorySync, "duplicate_remote_name", "scope holds multiple records with one name; keeping the first", map[string]any{
				"name":    rec.Name,
				"scope":   scope.String(),
				"kept":    prior.ID,
				"ignored": rec.ID,
			})
			continue
		}
		index[rec.Name] = rec
	}
	scopes[scope] = &scopeState{index: index}
	return index, nil
}

// Delete removes the remote record of each selected item, then sweeps local
// records once per family, clearing every id that was deleted.
func (e *Engine) Delete(ctx context.Context, defs []*definition.Definition) *Report {
	report := &Report{Op: "delete"}
	deleted := make(map[definition.Family]map[string]struct{})

	for _, def := range defs {
		if def.RegistryID == "" {
			err := errors.New(errors.ErrCodeNotDeployed, "cannot delete undeployed item").
				WithContext("name", def.Name)
			report.add(def.Name, registry.GlobalScope, ActionFailed, err)
			e.metrics.Counter("items", telemetry.Labels{"outcome": string(ActionFailed)}).Inc()
			continue
		}

		removed := false
		for _, scope := range Targets(def) {
			err := e.callDelete(ctx, scope, def.RegistryID)
			if err != nil {
				report.add(def.Name, scope, ActionFailed, err)
				e.metrics.Counter("items", telemetry.Labels{"outcome": string(ActionFailed)}).Inc()
				continue
			}
			removed = true
			report.add(def.Name, scope, ActionDeleted, nil)
			e.metrics.Counter("items", telemetry.Labels{"outcome": string(ActionDeleted)}).Inc()
		}

		if removed {
			family := def.Kind.Family()
			if deleted[family] == nil {
				deleted[family] = make(map[string]struct{})
			}
			deleted[family][def.RegistryID] = struct{}{}
		}
	}

	for family, ids := range deleted {
		cleared, err := e.store.ClearRegistryIDs(family, ids)
		if err != nil {
			e.log.Error(logging.CategoryStore, "sweep_failed", "clearing deleted ids from local records failed", map[string]any{
				"family": string(family),
				"error":  err.Error(),
			})
			continue
		}
		e.log.Info(logging.CategoryStore, "sweep_done", "cleared deleted ids from local records", map[string]any{
			"family":  string(family),
			"cleared": cleared,
		})
	}

	return report
}

// List returns a scope's remote records, filtered by nothing; callers slice
// by kind family as needed.
func (e *Engine) List(ctx context.Context, scope registry.Scope) ([]definition.RemoteRecord, error) {
	return e.listScope(ctx, scope)
}

// ListAll fans out one listing per guild the bot participates in, bounded
// concurrently, plus the global scope. A single guild's failure degrades
// that guild to a zero-count entry rather than aborting the aggregate.
func (e *Engine) ListAll(ctx context.Context) (*Listing, error) {
	guilds, err := e.client.ListGuilds(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRegistryAPI, "listing guilds")
	}

	listing := &Listing{}

	if records, err := e.listScope(ctx, registry.GlobalScope); err != nil {
		listing.Global = ScopeCount{Scope: registry.GlobalScope, Err: err}
	} else {
		listing.Global = ScopeCount{Scope: registry.GlobalScope, Count: len(records)}
	}

	results := make([]ScopeCount, len(guilds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanout)
	for i, guild := range guilds {
		g.Go(func() error {
			scope := registry.GuildScope(guild.ID)
			records, err := e.listScope(gctx, scope)
			if err != nil {
				// Degrade, never propagate into the group.
				results[i] = ScopeCount{Scope: scope, GuildName: guild.Name, Err: err}
				return nil
			}
			results[i] = ScopeCount{Scope: scope, GuildName: guild.Name, Count: len(records)}
			return nil
		})
	}
	_ = g.Wait()

	listing.Guilds = results
	return listing, nil
}

// call helpers: count the call, apply the engine's retry policy for
// retryable registry errors.

func (e *Engine) callCreate(ctx context.Context, scope registry.Scope, payload *definition.Payload) (*definition.RemoteRecord, error) {
	e.metrics.Counter("registry_calls", telemetry.Labels{"op": "create", "scope": scopeLabel(scope)}).Inc()
	var rec *definition.RemoteRecord
	err := e.withRetry(ctx, func() error {
		var err error
		rec, err = e.client.Create(ctx, scope, payload)
		return err
	})
	return rec, err
}

func (e *Engine) callUpdate(ctx context.Context, scope registry.Scope, id string, payload *definition.Payload) (*definition.RemoteRecord, error) {
	e.metrics.Counter("registry_calls", telemetry.Labels{"op": "update", "scope": scopeLabel(scope)}).Inc()
	var rec *definition.RemoteRecord
	err := e.withRetry(ctx, func() error {
		var err error
		rec, err = e.client.Update(ctx, scope, id, payload)
		return err
	})
	return rec, err
}

func (e *Engine) callDelete(ctx context.Context, scope registry.Scope, id string) error {
	e.metrics.Counter("registry_calls", telemetry.Labels{"op": "delete", "scope": scopeLabel(scope)}).Inc()
	return e.withRetry(ctx, func() error {
		return e.client.Delete(ctx, scope, id)
	})
}

func (e *Engine) listScope(ctx context.Context, scope registry.Scope) ([]definition.RemoteRecord, error) {
	e.metrics.Counter("registry_calls", telemetry.Labels{"op": "list", "scope": scopeLabel(scope)}).Inc()
	var records []definition.RemoteRecord
	err := e.withRetry(ctx, func() error {
		var err error
		records, err = e.client.List(ctx, scope)
		return err
	})
	return records, err
}

func scopeLabel(scope registry.Scope) string {
	if scope.IsGlobal() {
		return "global"
	}
	return "guild"
}

// withRetry retries retryable registry errors, honoring the Retry-After the
// rate limiter handed back.
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(lastErr)
			e.log.Info(logging.CategoryRegistry, "retry", "retrying registry call", map[string]any{
				"attempt": attempt,
				"delay":   delay.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *registry.APIError
		if !stderrors.As(lastErr, &apiErr) || !apiErr.Retryable {
			return lastErr
		}
	}
	return lastErr
}

func retryDelay(err error) time.Duration {
	var apiErr *registry.APIError
	if stderrors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter > maxRetryDelay {
			return maxRetryDelay
		}
		return apiErr.RetryAfter
	}
	return defaultRetryDelay
}
