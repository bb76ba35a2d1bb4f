package state_test

import (
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyInstructionsAncestry(t *testing.T) {
	contents, err := fsentry.NewFileContents(fsentry.SHA256([32]byte{}), []byte("hi"), "")
	require.NoError(t, err)

	stream := []fsentry.FsInstruction{
		fsentry.CreateFile("/hello/file", contents),
		fsentry.SetMode("/hello/file", 0o600),
	}
	m, warnings := state.ApplyInstructions(stream, false)
	assert.Empty(t, warnings)

	keys := m.SortedKeys()
	assert.Equal(t, []string{"/", "/hello", "/hello/file"}, keys)

	// Invariant: every ancestor of every key is itself a key.
	for _, k := range keys {
		assert.True(t, m.HasAllAncestors(k), "missing ancestor for %s", k)
	}
}

func TestDiffFromEmptyMatchesS4(t *testing.T) {
	contents, err := fsentry.NewFileContents(fsentry.SHA256([32]byte{}), []byte("hi"), "")
	require.NoError(t, err)

	stream := []fsentry.FsInstruction{
		fsentry.CreateFile("/hello/file", contents),
		fsentry.SetMode("/hello/file", 0o600),
	}
	goal, _ := state.ApplyInstructions(stream, false)

	instrs := state.Diff(state.GoalApply, state.NewFsEntries(), goal, nil)
	state.SortByApplyOrder(instrs)

	var kinds []string
	for _, i := range instrs {
		kinds = append(kinds, i.Op.Kind.String()+" "+i.Path)
	}
	assert.Equal(t, []string{
		"create-directory /",
		"create-directory /hello",
		"create-file /hello/file",
		"set-mode /hello/file",
	}, kinds)
}

func TestDiffIdempotence(t *testing.T) {
	contents, err := fsentry.NewFileContents(fsentry.SHA256([32]byte{1}), []byte("a"), "")
	require.NoError(t, err)
	stream := []fsentry.FsInstruction{
		fsentry.CreateDirectory("/etc"),
		fsentry.CreateFile("/etc/foo.conf", contents),
		fsentry.SetOwner("/etc/foo.conf", "alice"),
	}
	x, _ := state.ApplyInstructions(stream, false)

	instrs := state.Diff(state.GoalApply, x, x, nil)
	assert.Empty(t, instrs, "diffing a map against itself must be empty")
}

func TestApplyDiffRoundTrip(t *testing.T) {
	contentsA, err := fsentry.NewFileContents(fsentry.SHA256([32]byte{1}), []byte("a"), "")
	require.NoError(t, err)
	contentsB, err := fsentry.NewFileContents(fsentry.SHA256([32]byte{2}), []byte("bb"), "")
	require.NoError(t, err)

	a, _ := state.ApplyInstructions([]fsentry.FsInstruction{
		fsentry.CreateFile("/etc/foo.conf", contentsA),
	}, false)
	b, _ := state.ApplyInstructions([]fsentry.FsInstruction{
		fsentry.CreateFile("/etc/foo.conf", contentsB),
		fsentry.SetMode("/etc/foo.conf", 0o600),
	}, false)

	instrs := state.Diff(state.GoalApply, a, b, nil)
	result, _ := state.ApplyInstructions(append(replayInstructions(a), instrs...), false)

	for _, k := range b.SortedKeys() {
		want := b.Get(k)
		got := result.Get(k)
		require.NotNil(t, got, "missing key %s after replay", k)
		assert.True(t, want.Equal(got), "key %s: want %+v got %+v", k, want, got)
	}
}

// replayInstructions reconstructs a creation stream equivalent to m, purely
// to seed ApplyInstructions with "a"'s state before layering the diff on
// top (ApplyInstructions works on instruction streams, not maps directly).
func replayInstructions(m *state.FsEntries) []fsentry.FsInstruction {
	var out []fsentry.FsInstruction
	for _, k := range m.SortedKeys() {
		n := m.Get(k)
		switch n.Kind {
		case state.NodeFile:
			out = append(out, fsentry.CreateFile(k, n.Contents))
		case state.NodeDirectory:
			out = append(out, fsentry.CreateDirectory(k))
		}
	}
	return out
}

func TestDiffSaveGoalEmitsRemoveForStaleKey(t *testing.T) {
	before, _ := state.ApplyInstructions([]fsentry.FsInstruction{
		fsentry.CreateDirectory("/etc/stale"),
	}, false)
	// before also holds the materialised ancestors "/" and "/etc"; after
	// keeps them so that /etc/stale is the only before-only key.
	after, _ := state.ApplyInstructions([]fsentry.FsInstruction{
		fsentry.CreateDirectory("/etc"),
	}, false)

	instrs := state.Diff(state.GoalSave, before, after, nil)
	require.Len(t, instrs, 1)
	assert.Equal(t, fsentry.OpRemove, instrs[0].Op.Kind)
	assert.Equal(t, "/etc/stale", instrs[0].Path)
}
