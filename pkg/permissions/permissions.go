// Package permissions converts between human-readable permission names and
// the registry's integer bitfield representation.
package permissions

import (
	"strconv"
)

// Bits is a permission bitfield. The registry serializes it as a decimal
// string because several flags exceed the safe integer range of JSON
// consumers.
type Bits uint64

type flag struct {
	name string
	bit  Bits
}

// table lists every known permission flag in wire bit order. Decode walks
// this slice so its output order is deterministic.
var table = []flag{
	{"CreateInstantInvite", 1 << 0},
	{"KickMembers", 1 << 1},
	{"BanMembers", 1 << 2},
	{"Administrator", 1 << 3},
	{"ManageChannels", 1 << 4},
	{"ManageGuild", 1 << 5},
	{"AddReactions", 1 << 6},
	{"ViewAuditLog", 1 << 7},
	{"PrioritySpeaker", 1 << 8},
	{"Stream", 1 << 9},
	{"ViewChannel", 1 << 10},
	{"SendMessages", 1 << 11},
	{"SendTTSMessages", 1 << 12},
	{"ManageMessages", 1 << 13},
	{"EmbedLinks", 1 << 14},
	{"AttachFiles", 1 << 15},
	{"ReadMessageHistory", 1 << 16},
	{"MentionEveryone", 1 << 17},
	{"UseExternalEmojis", 1 << 18},
	{"ViewGuildInsights", 1 << 19},
	{"Connect", 1 << 20},
	{"Speak", 1 << 21},
	{"MuteMembers", 1 << 22},
	{"DeafenMembers", 1 << 23},
	{"MoveMembers", 1 << 24},
	{"UseVAD", 1 << 25},
	{"ChangeNickname", 1 << 26},
	{"ManageNicknames", 1 << 27},
	{"ManageRoles", 1 << 28},
	{"ManageWebhooks", 1 << 29},
	{"ManageGuildExpressions", 1 << 30},
	{"UseApplicationCommands", 1 << 31},
	{"RequestToSpeak", 1 << 32},
	{"ManageEvents", 1 << 33},
	{"ManageThreads", 1 << 34},
	{"CreatePublicThreads", 1 << 35},
	{"CreatePrivateThreads", 1 << 36},
	{"UseExternalStickers", 1 << 37},
	{"SendMessagesInThreads", 1 << 38},
	{"UseEmbeddedActivities", 1 << 39},
	{"ModerateMembers", 1 << 40},
}

var byName = func() map[string]Bits {
	m := make(map[string]Bits, len(table))
	for _, f := range table {
		m[f.name] = f.bit
	}
	return m
}()

// Encode folds a set of permission names into a bitfield. Unknown names are
// never fatal; they are dropped and returned so the caller can log them.
// Zero bits means "no restriction" and must be omitted from payloads, not
// sent as 0.
func Encode(names []string) (Bits, []string) {
	var bits Bits
	var unknown []string
	for _, name := range names {
		bit, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		bits |= bit
	}
	return bits, unknown
}

// Decode expands a bitfield into the names of every known flag that is set.
// Bits without a table entry are ignored.
func Decode(bits Bits) []string {
	if bits == 0 {
		return nil
	}
	var names []string
	for _, f := range table {
		if bits&f.bit == f.bit {
			names = append(names, f.name)
		}
	}
	return names
}

// Known reports whether a permission name exists in the flag table.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}

// String renders the bitfield in registry wire form.
func (b Bits) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

// Parse converts a registry wire string back into a bitfield.
func Parse(s string) (Bits, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Bits(v), nil
}
