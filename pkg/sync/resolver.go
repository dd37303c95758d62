package sync

import (
	"github.com/odvcencio/herald/pkg/definition"
	"github.com/odvcencio/herald/pkg/registry"
)

// Targets resolves a definition's deployment scopes. A non-empty guild list
// always wins: even a single guild id means the definition is deployed only
// to that guild, never globally, and each listed guild gets its own
// independent remote record.
func Targets(d *definition.Definition) []registry.Scope {
	if len(d.GuildIDs) == 0 {
		return []registry.Scope{registry.GlobalScope}
	}
	scopes := make([]registry.Scope, 0, len(d.GuildIDs))
	for _, id := range d.GuildIDs {
		scopes = append(scopes, registry.GuildScope(id))
	}
	return scopes
}
