package sync

import (
	"github.com/odvcencio/herald/pkg/registry"
)

// Action is the outcome recorded for one item in one scope.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// ItemResult is the outcome of one definition in one target scope.
type ItemResult struct {
	Name   string
	Scope  registry.Scope
	Action Action
	Err    error
}

// Report aggregates per-item outcomes for one batch operation. It is a
// displayable structure only; correctness never depends on it.
type Report struct {
	Op    string
	Items []ItemResult
}

func (r *Report) add(name string, scope registry.Scope, action Action, err error) {
	r.Items = append(r.Items, ItemResult{Name: name, Scope: scope, Action: action, Err: err})
}

// Succeeded counts items that completed their operation.
func (r *Report) Succeeded() int {
	n := 0
	for _, item := range r.Items {
		switch item.Action {
		case ActionCreated, ActionUpdated, ActionDeleted:
			n++
		}
	}
	return n
}

// Failed counts items that were attempted but failed.
func (r *Report) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Action == ActionFailed {
			n++
		}
	}
	return n
}

// Skipped counts items excluded before any network call.
func (r *Report) Skipped() int {
	n := 0
	for _, item := range r.Items {
		if item.Action == ActionSkipped {
			n++
		}
	}
	return n
}

// HasFailures reports whether any item failed.
func (r *Report) HasFailures() bool {
	return r.Failed() > 0
}

// ScopeCount is one scope's entry in a cross-guild listing. A failed fetch
// degrades the scope to a zero count with the error attached.
type ScopeCount struct {
	Scope     registry.Scope
	GuildName string
	Count     int
	Err       error
}

// Listing is the aggregate of the cross-guild listing operation.
type Listing struct {
	Global ScopeCount
	Guilds []ScopeCount
}

// Total sums the counts across every scope that listed successfully.
func (l *Listing) Total() int {
	n := l.Global.Count
	for _, g := range l.Guilds {
		n += g.Count
	}
	return n
}

// FailedScopes counts scopes whose fetch degraded to an error entry.
func (l *Listing) FailedScopes() int {
	n := 0
	if l.Global.Err != nil {
		n++
	}
	for _, g := range l.Guilds {
		if g.Err != nil {
			n++
		}
	}
	return n
}
