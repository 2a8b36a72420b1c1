package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenTrackerTailStripsEscapes(t *testing.T) {
	tr := NewScreenTracker(80, 24)

	tr.Append([]byte("\x1b[1;32mgreen\x1b[0m text\r\nnext line"))

	tail := tr.Tail(100)
	assert.Contains(t, tail, "green text")
	assert.Contains(t, tail, "next line")
	assert.NotContains(t, tail, "\x1b")
	assert.NotContains(t, tail, "\r")
}

func TestScreenTrackerTailWindow(t *testing.T) {
	tr := NewScreenTracker(80, 24)
	tr.Append([]byte(strings.Repeat("x", 500)))

	assert.Len(t, tr.Tail(100), 100)
}

func TestScreenTrackerTopLines(t *testing.T) {
	tr := NewScreenTracker(40, 5)

	tr.Append([]byte("Bash(rm -rf build)\r\nsecond row\r\n"))

	lines := tr.TopLines(2)
	require.Len(t, lines, 2)
	assert.Equal(t, "Bash(rm -rf build)", lines[0])
	assert.Equal(t, "second row", lines[1])
}

func TestScreenTrackerTopLinesClampedToRows(t *testing.T) {
	tr := NewScreenTracker(40, 3)
	tr.Append([]byte("a\r\nb\r\nc"))

	assert.Len(t, tr.TopLines(10), 3)
}

func TestScreenTrackerHeaderSurvivesRepaint(t *testing.T) {
	tr := NewScreenTracker(40, 6)

	// Header painted at the top, then the dialog repainted lower via
	// cursor addressing. The raw tail no longer starts with the header
	// but the rendered screen still shows it.
	tr.Append([]byte("Write(/tmp/out.txt)\r\n"))
	tr.Append([]byte("\x1b[5;1HDo you want to proceed?"))

	lines := tr.TopLines(1)
	require.NotEmpty(t, lines)
	assert.Equal(t, "Write(/tmp/out.txt)", lines[0])
}

func TestScreenTrackerRaw(t *testing.T) {
	tr := NewScreenTracker(80, 24)
	raw := []byte("\x1b[31mred\x1b[0m")
	tr.Append(raw)

	assert.Equal(t, raw, tr.Raw())
}
