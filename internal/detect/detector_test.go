package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martymcenroe/unleashed/internal/model"
)

type fakeScreen struct {
	tail string
	top  []string
}

func (f *fakeScreen) Tail(n int) string {
	if len(f.tail) > n {
		return f.tail[len(f.tail)-n:]
	}
	return f.tail
}

func (f *fakeScreen) TopLines(n int) []string {
	if len(f.top) > n {
		return f.top[:n]
	}
	return f.top
}

func TestCleanPreservesWordBoundaries(t *testing.T) {
	// Cursor positioning codes separate words in a TUI repaint.
	raw := []byte("Tab\x1b[3;10Hto\x1b[3;14Hamend")
	assert.Equal(t, "Tab to amend", Clean(raw))
}

func TestCleanHandlesOSC(t *testing.T) {
	raw := []byte("\x1b]0;window title\x07Do you want to proceed?")
	clean := Clean(raw)
	assert.Contains(t, clean, "Do you want to proceed?")
	assert.NotContains(t, clean, "window title")
}

func TestDetectShellCommand(t *testing.T) {
	screen := &fakeScreen{tail: "● Bash(rm -rf build)\nDo you want to proceed?\n❯ 1. Yes"}
	d := NewDetector(screen)

	req := d.Detect([]byte("Do you want to proceed?"))
	require.NotNil(t, req)
	assert.Equal(t, model.ToolShellExec, req.Category)
	assert.Equal(t, "rm -rf build", req.Target)
	assert.Equal(t, model.CardinalityBinary, req.Cardinality)
	assert.False(t, req.DetectedAt.IsZero())
}

func TestDetectSplitAcrossChunks(t *testing.T) {
	screen := &fakeScreen{tail: "Bash(ls)"}
	d := NewDetector(screen)

	// First half of the signature alone does not match.
	assert.Nil(t, d.Detect([]byte("Do you want")))

	// The caller prepends the overlap window; the joined text matches.
	req := d.Detect([]byte("Do you want to proceed?"))
	assert.NotNil(t, req)
}

func TestDetectSignatureSplitByEscapes(t *testing.T) {
	screen := &fakeScreen{tail: "Bash(ls)"}
	d := NewDetector(screen)

	raw := []byte("Do you want\x1b[0m \x1b[1mto proceed?")
	assert.NotNil(t, d.Detect(raw))
}

func TestDetectTernary(t *testing.T) {
	screen := &fakeScreen{
		tail: "Bash(npm install)\nAllow this command to run?\n1. Yes\n2. Yes, and don't ask again\n3. No",
	}
	d := NewDetector(screen)

	req := d.Detect([]byte("Allow this command to run?"))
	require.NotNil(t, req)
	assert.Equal(t, model.CardinalityTernary, req.Cardinality)
}

func TestDetectCategories(t *testing.T) {
	cases := []struct {
		name string
		tail string
		want model.ToolCategory
	}{
		{"write", "Write(/tmp/a.txt)", model.ToolWrite},
		{"edit", "Edit(/src/main.go)", model.ToolEdit},
		{"notebook", "NotebookEdit(nb.ipynb)", model.ToolWrite},
		{"read", "Read(/etc/hosts)", model.ToolReadOnly},
		{"fetch", "WebFetch(https://example.com)", model.ToolReadOnly},
		{"unknown tool defaults to shell", "Skill(deploy)", model.ToolShellExec},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDetector(&fakeScreen{tail: tc.tail + "\nDo you want to proceed?"})
			req := d.Detect([]byte("Do you want to proceed?"))
			require.NotNil(t, req)
			assert.Equal(t, tc.want, req.Category)
		})
	}
}

func TestDetectNoHeaderIsUnclassified(t *testing.T) {
	d := NewDetector(&fakeScreen{tail: "some output without a header"})

	req := d.Detect([]byte("Do you want to proceed?"))
	require.NotNil(t, req)
	assert.Equal(t, model.ToolUnclassified, req.Category)
	assert.Empty(t, req.Target)
}

func TestDetectHeaderFromTopLines(t *testing.T) {
	// Header scrolled out of the raw tail but is still painted on the
	// rendered screen.
	d := NewDetector(&fakeScreen{
		tail: "long diff output...\nDo you want to proceed?",
		top:  []string{"", "● Bash(git push --force origin main)", ""},
	})

	req := d.Detect([]byte("Do you want to proceed?"))
	require.NotNil(t, req)
	assert.Equal(t, model.ToolShellExec, req.Category)
	assert.Equal(t, "git push --force origin main", req.Target)
}

func TestDetectUsesLatestHeader(t *testing.T) {
	d := NewDetector(&fakeScreen{
		tail: "Bash(ls)\ndone\nBash(rm -rf /)\nDo you want to proceed?",
	})

	req := d.Detect([]byte("Do you want to proceed?"))
	require.NotNil(t, req)
	assert.Equal(t, "rm -rf /", req.Target)
}

func TestDetectNoSignature(t *testing.T) {
	d := NewDetector(&fakeScreen{tail: "Bash(ls)"})
	assert.Nil(t, d.Detect([]byte("compiling project...")))
}

func TestDetectPauseCooldown(t *testing.T) {
	d := NewDetector(&fakeScreen{})
	d.SetPauseCooldown(50 * time.Millisecond)

	sig, ok := d.DetectPause([]byte("Should I proceed with the refactor?"))
	require.True(t, ok)
	assert.Equal(t, "Should I proceed", sig)

	// Repaint of the same question within the cooldown is suppressed.
	_, ok = d.DetectPause([]byte("Should I proceed with the refactor?"))
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = d.DetectPause([]byte("Should I continue?"))
	assert.True(t, ok)
}

func TestDetectPauseNotAPermissionDialog(t *testing.T) {
	d := NewDetector(&fakeScreen{})
	_, ok := d.DetectPause([]byte("building the project"))
	assert.False(t, ok)
}
