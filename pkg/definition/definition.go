// Package definition holds the declarative interaction records herald syncs:
// parameterized slash commands and context-menu actions.
package definition

import (
	"encoding/json"
	"fmt"

	"github.com/odvcencio/herald/pkg/errors"
	"github.com/odvcencio/herald/pkg/permissions"
)

// Kind is the registry's numeric type tag for a definition.
type Kind int

const (
	KindSlashCommand       Kind = 1
	KindUserContextMenu    Kind = 2
	KindMessageContextMenu Kind = 3
)

// Family groups kinds by their on-disk folder. Both context-menu kinds share
// one folder.
type Family string

const (
	FamilyCommand     Family = "commands"
	FamilyContextMenu Family = "context-menu"
)

// Families lists every definition family, in folder order.
var Families = []Family{FamilyCommand, FamilyContextMenu}

// Dir returns the folder a family's records live under.
func (f Family) Dir() string {
	return string(f)
}

// Family returns the folder family a kind belongs to.
func (k Kind) Family() Family {
	if k == KindSlashCommand {
		return FamilyCommand
	}
	return FamilyContextMenu
}

// Valid reports whether the kind is one the registry accepts.
func (k Kind) Valid() bool {
	switch k {
	case KindSlashCommand, KindUserContextMenu, KindMessageContextMenu:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindSlashCommand:
		return "slash-command"
	case KindUserContextMenu:
		return "user-context-menu"
	case KindMessageContextMenu:
		return "message-context-menu"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// kindRules captures the per-kind field legality the registry enforces.
// Selected by lookup, never by type switching on call sites.
type kindRules struct {
	requiresDescription bool
	allowsOptions       bool
}

var rulesByKind = map[Kind]kindRules{
	KindSlashCommand:       {requiresDescription: true, allowsOptions: true},
	KindUserContextMenu:    {requiresDescription: false, allowsOptions: false},
	KindMessageContextMenu: {requiresDescription: false, allowsOptions: false},
}

// Choice is one fixed value a parameter may take.
type Choice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Option is one typed parameter descriptor of a slash command.
type Option struct {
	Type         int      `json:"type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Required     bool     `json:"required,omitempty"`
	Choices      []Choice `json:"choices,omitempty"`
	Options      []Option `json:"options,omitempty"`
	ChannelTypes []int    `json:"channel_types,omitempty"`
	MinValue     *float64 `json:"min_value,omitempty"`
	MaxValue     *float64 `json:"max_value,omitempty"`
	MinLength    *int     `json:"min_length,omitempty"`
	MaxLength    *int     `json:"max_length,omitempty"`
	Autocomplete bool     `json:"autocomplete,omitempty"`
}

// Permissions is the default_member_permissions field. Local records may
// spell it either as a raw bitfield (string or number) or as an array of
// permission names; it is canonicalized to the bitfield form on read, so the
// rest of the engine only ever sees bits.
type Permissions struct {
	Bits permissions.Bits
	// Unknown holds names that were not in the flag table. They are dropped
	// from the encoded value but kept here so the engine can warn.
	Unknown []string
}

// UnmarshalJSON accepts exactly one of the two wire spellings per record.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		p.Bits, p.Unknown = permissions.Encode(names)
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		bits, err := permissions.Parse(raw)
		if err != nil {
			return fmt.Errorf("default_member_permissions: %w", err)
		}
		p.Bits = bits
		return nil
	}

	var num uint64
	if err := json.Unmarshal(data, &num); err == nil {
		p.Bits = permissions.Bits(num)
		return nil
	}

	return fmt.Errorf("default_member_permissions: expected name array or bitfield, got %s", string(data))
}

// MarshalJSON always writes the canonical bitfield string.
func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Bits.String())
}

// Names decodes the canonical bits back into permission names.
func (p Permissions) Names() []string {
	return permissions.Decode(p.Bits)
}

// Definition is one locally authored interaction record.
//
// GuildIDs is a local-only routing field: empty means the definition is
// global, non-empty means it is deployed independently to each listed guild.
// It is stripped before anything is sent to the registry.
type Definition struct {
	Name             string       `json:"name"`
	Kind             Kind         `json:"type"`
	Description      string       `json:"description,omitempty"`
	Options          []Option     `json:"options,omitempty"`
	Permissions      *Permissions `json:"default_member_permissions,omitempty"`
	DMPermission     *bool        `json:"dm_permission,omitempty"`
	IntegrationTypes []int        `json:"integration_types,omitempty"`
	Contexts         []int        `json:"contexts,omitempty"`
	GuildIDs         []string     `json:"guildID,omitempty"`
	RegistryID       string       `json:"id,omitempty"`

	// Locator ties the in-memory definition back to the record it was read
	// from. Set by the store, never serialized, required for write-back.
	Locator string `json:"-"`
}

// Validate checks the record against the per-kind field rules the registry
// enforces, so illegal records are caught before any network call.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "definition has no name").
			WithContext("locator", d.Locator)
	}
	if !d.Kind.Valid() {
		return errors.New(errors.ErrCodeKindInvalid, "unknown definition kind").
			WithContext("name", d.Name).
			WithContext("type", int(d.Kind))
	}

	rules := rulesByKind[d.Kind]
	if rules.requiresDescription && d.Description == "" {
		return errors.New(errors.ErrCodeInvalidInput, "slash command requires a description").
			WithContext("name", d.Name)
	}
	if !rules.requiresDescription && d.Description != "" {
		return errors.New(errors.ErrCodeInvalidInput, "context-menu kinds must not carry a description").
			WithContext("name", d.Name)
	}
	if !rules.allowsOptions && len(d.Options) > 0 {
		return errors.New(errors.ErrCodeInvalidInput, "context-menu kinds must not carry options").
			WithContext("name", d.Name)
	}
	return nil
}

// Payload is the stripped definition shape sent to the registry on create
// and update. GuildIDs, RegistryID and Locator never appear here, and the
// permission field is the encoded bitfield string.
type Payload struct {
	Name             string   `json:"name"`
	Type             Kind     `json:"type"`
	Description      string   `json:"description,omitempty"`
	Options          []Option `json:"options,omitempty"`
	Permissions      *string  `json:"default_member_permissions,omitempty"`
	DMPermission     *bool    `json:"dm_permission,omitempty"`
	IntegrationTypes []int    `json:"integration_types,omitempty"`
	Contexts         []int    `json:"contexts,omitempty"`
}

// Payload builds the wire payload for this definition, applying the per-kind
// stripping rules: options are removed for context-menu kinds and an empty
// permission set is omitted entirely rather than sent as zero.
func (d *Definition) Payload() *Payload {
	p := &Payload{
		Name:             d.Name,
		Type:             d.Kind,
		Description:      d.Description,
		Options:          d.Options,
		DMPermission:     d.DMPermission,
		IntegrationTypes: d.IntegrationTypes,
		Contexts:         d.Contexts,
	}

	if rules, ok := rulesByKind[d.Kind]; ok && !rules.allowsOptions {
		p.Options = nil
		p.Description = ""
	}

	if d.Permissions != nil && d.Permissions.Bits != 0 {
		s := d.Permissions.Bits.String()
		p.Permissions = &s
	}

	return p
}

// RemoteRecord is the registry's stored representation of a deployed
// definition.
type RemoteRecord struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id,omitempty"`
	GuildID       string `json:"guild_id,omitempty"`
	Name          string `json:"name"`
	Type          Kind   `json:"type"`
	Description   string `json:"description,omitempty"`
	Permissions   string `json:"default_member_permissions,omitempty"`
	Version       string `json:"version,omitempty"`
}
