package definition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/herald/pkg/errors"
	"github.com/odvcencio/herald/pkg/permissions"
)

func TestKindFamily(t *testing.T) {
	assert.Equal(t, FamilyCommand, KindSlashCommand.Family())
	assert.Equal(t, FamilyContextMenu, KindUserContextMenu.Family())
	assert.Equal(t, FamilyContextMenu, KindMessageContextMenu.Family())
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindSlashCommand.Valid())
	assert.True(t, KindMessageContextMenu.Valid())
	assert.False(t, Kind(0).Valid())
	assert.False(t, Kind(9).Valid())
}

func TestPermissionsUnmarshalNameArray(t *testing.T) {
	var p Permissions
	require.NoError(t, json.Unmarshal([]byte(`["KickMembers","BanMembers","Teleport"]`), &p))
	assert.Equal(t, permissions.Bits(0b110), p.Bits)
	assert.Equal(t, []string{"Teleport"}, p.Unknown)
}

func TestPermissionsUnmarshalBitfieldString(t *testing.T) {
	var p Permissions
	require.NoError(t, json.Unmarshal([]byte(`"8"`), &p))
	assert.Equal(t, permissions.Bits(8), p.Bits)
	assert.Equal(t, []string{"Administrator"}, p.Names())
}

func TestPermissionsUnmarshalBitfieldNumber(t *testing.T) {
	var p Permissions
	require.NoError(t, json.Unmarshal([]byte(`32`), &p))
	assert.Equal(t, permissions.Bits(32), p.Bits)
}

func TestPermissionsUnmarshalRejectsGarbage(t *testing.T) {
	var p Permissions
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"nope":1}`), &p))
}

func TestPermissionsMarshalCanonical(t *testing.T) {
	var p Permissions
	require.NoError(t, json.Unmarshal([]byte(`["Administrator"]`), &p))
	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `"8"`, string(out))
}

func TestValidateSlashCommand(t *testing.T) {
	d := &Definition{Name: "ping", Kind: KindSlashCommand, Description: "pong"}
	assert.NoError(t, d.Validate())

	d.Description = ""
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestValidateContextMenuRejectsOptions(t *testing.T) {
	d := &Definition{
		Name:    "Report Message",
		Kind:    KindMessageContextMenu,
		Options: []Option{{Type: 3, Name: "reason", Description: "why"}},
	}
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestValidateContextMenuRejectsDescription(t *testing.T) {
	d := &Definition{Name: "Report User", Kind: KindUserContextMenu, Description: "nope"}
	assert.Error(t, d.Validate())

	d.Description = ""
	assert.NoError(t, d.Validate())
}

func TestValidateUnknownKind(t *testing.T) {
	d := &Definition{Name: "mystery", Kind: Kind(7)}
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeKindInvalid))
}

func TestValidateMissingName(t *testing.T) {
	d := &Definition{Kind: KindSlashCommand, Description: "x"}
	assert.Error(t, d.Validate())
}

func TestPayloadStripsLocalFields(t *testing.T) {
	d := &Definition{
		Name:        "ping",
		Kind:        KindSlashCommand,
		Description: "pong",
		GuildIDs:    []string{"123"},
		RegistryID:  "999",
		Locator:     "commands/ping.json",
	}
	p := d.Payload()

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "guildID")
	assert.NotContains(t, string(out), `"id"`)
	assert.Contains(t, string(out), `"name":"ping"`)
}

func TestPayloadStripsOptionsForContextMenus(t *testing.T) {
	d := &Definition{
		Name:    "Translate",
		Kind:    KindMessageContextMenu,
		Options: []Option{{Type: 3, Name: "lang", Description: "target"}},
	}
	p := d.Payload()
	assert.Nil(t, p.Options)
	assert.Empty(t, p.Description)
}

func TestPayloadPermissionEncoding(t *testing.T) {
	var perms Permissions
	require.NoError(t, json.Unmarshal([]byte(`["ManageGuild"]`), &perms))
	d := &Definition{Name: "admin", Kind: KindSlashCommand, Description: "x", Permissions: &perms}

	p := d.Payload()
	require.NotNil(t, p.Permissions)
	assert.Equal(t, "32", *p.Permissions)
}

func TestPayloadOmitsEmptyPermissions(t *testing.T) {
	// An empty set signals "no restriction" by omission, never by zero.
	d := &Definition{Name: "open", Kind: KindSlashCommand, Description: "x", Permissions: &Permissions{}}
	p := d.Payload()
	assert.Nil(t, p.Permissions)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "default_member_permissions")
}

func TestDefinitionRoundTripKeepsWireFields(t *testing.T) {
	raw := `{
		"name": "ban",
		"type": 1,
		"description": "ban a user",
		"options": [{"type": 6, "name": "target", "description": "who", "required": true}],
		"default_member_permissions": ["BanMembers"],
		"dm_permission": false,
		"integration_types": [0],
		"contexts": [0, 1],
		"guildID": ["42"],
		"id": "777"
	}`
	var d Definition
	require.NoError(t, json.Unmarshal([]byte(raw), &d))

	assert.Equal(t, "ban", d.Name)
	assert.Equal(t, KindSlashCommand, d.Kind)
	require.Len(t, d.Options, 1)
	assert.True(t, d.Options[0].Required)
	require.NotNil(t, d.Permissions)
	assert.Equal(t, permissions.Bits(1<<2), d.Permissions.Bits)
	require.NotNil(t, d.DMPermission)
	assert.False(t, *d.DMPermission)
	assert.Equal(t, []string{"42"}, d.GuildIDs)
	assert.Equal(t, "777", d.RegistryID)
}
