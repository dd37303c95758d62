package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithOutput(&buf, false)

	w.Success("deployed %d items", 3)
	w.Warn("one warning")
	w.Error("boom")
	w.Dim("details")

	out := buf.String()
	assert.Contains(t, out, "deployed 3 items")
	assert.Contains(t, out, "one warning")
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "\x1b[", "no ANSI sequences without color")
}

func TestTableAlignment(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithOutput(&buf, false)

	w.Table([]string{"NAME", "SCOPE", "RESULT"}, [][]string{
		{"ping", "global", "created"},
		{"moderation-tools", "guild:42", "updated"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	// Columns line up: SCOPE starts at the same offset in every line.
	offset := strings.Index(lines[0], "SCOPE")
	assert.Equal(t, offset, strings.Index(lines[1], "global"))
	assert.Equal(t, offset, strings.Index(lines[2], "guild:42"))
}

func TestPrintf(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithOutput(&buf, false)
	w.Printf("%s=%d\n", "count", 7)
	assert.Equal(t, "count=7\n", buf.String())
}
