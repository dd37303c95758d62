package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownNames(t *testing.T) {
	bits, unknown := Encode([]string{"KickMembers", "BanMembers"})
	assert.Equal(t, Bits(0b110), bits)
	assert.Empty(t, unknown)
}

func TestEncodeDropsUnknownNames(t *testing.T) {
	bits, unknown := Encode([]string{"ManageGuild", "FlyToTheMoon", "SendMessages"})
	assert.Equal(t, Bits(1<<5|1<<11), bits)
	assert.Equal(t, []string{"FlyToTheMoon"}, unknown)
}

func TestEncodeEmpty(t *testing.T) {
	bits, unknown := Encode(nil)
	assert.Zero(t, bits)
	assert.Empty(t, unknown)
}

func TestDecode(t *testing.T) {
	names := Decode(1<<3 | 1<<40)
	assert.Equal(t, []string{"Administrator", "ModerateMembers"}, names)

	assert.Nil(t, Decode(0))
}

func TestDecodeIgnoresUnknownBits(t *testing.T) {
	// Bit 63 has no table entry.
	names := Decode(1<<63 | 1<<1)
	assert.Equal(t, []string{"KickMembers"}, names)
}

func TestRoundTrip(t *testing.T) {
	sets := [][]string{
		{"Administrator"},
		{"ManageChannels", "ManageGuild", "ManageRoles"},
		{"SendMessagesInThreads", "UseEmbeddedActivities", "CreateInstantInvite"},
	}
	for _, names := range sets {
		bits, unknown := Encode(names)
		require.Empty(t, unknown)
		decoded := Decode(bits)
		assert.ElementsMatch(t, names, decoded)

		// Repeated encode/decode is idempotent.
		again, _ := Encode(decoded)
		assert.Equal(t, bits, again)
	}
}

func TestStringAndParse(t *testing.T) {
	bits, _ := Encode([]string{"ModerateMembers"})
	s := bits.String()
	assert.Equal(t, "1099511627776", s)

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, bits, parsed)

	_, err = Parse("not-a-number")
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("ViewChannel"))
	assert.False(t, Known("viewchannel"))
}
