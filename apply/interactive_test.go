package apply

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractiveYesDelegatesBatch(t *testing.T) {
	rec := &recordingApplicator{}
	out := &bytes.Buffer{}
	ia := &Interactive{Next: rec, In: strings.NewReader("y\n"), Out: out}

	batch := []fsentry.FsInstruction{fsentry.CreateDirectory("/etc/a")}
	require.NoError(t, ia.Apply(context.Background(), batch))
	require.Len(t, rec.batches, 1)
	assert.Equal(t, batch, rec.batches[0])
}

func TestInteractiveNoSkipsBatch(t *testing.T) {
	rec := &recordingApplicator{}
	ia := &Interactive{Next: rec, In: strings.NewReader("n\n"), Out: &bytes.Buffer{}}

	require.NoError(t, ia.Apply(context.Background(), []fsentry.FsInstruction{fsentry.CreateDirectory("/etc/a")}))
	assert.Empty(t, rec.batches)
}

func TestInteractiveShowsDiffThenDecides(t *testing.T) {
	rec := &recordingApplicator{}
	out := &bytes.Buffer{}
	ia := &Interactive{Next: rec, In: strings.NewReader("d\ny\n"), Out: out}

	batch := []fsentry.FsInstruction{fsentry.CreateDirectory("/etc/a")}
	require.NoError(t, ia.Apply(context.Background(), batch))
	require.Len(t, rec.batches, 1)
	assert.Contains(t, out.String(), "/etc/a")
}

func TestInteractivePerFileApplyAllShortCircuits(t *testing.T) {
	rec := &recordingApplicator{}
	ia := &Interactive{Next: rec, In: strings.NewReader("i\na\n"), Out: &bytes.Buffer{}}

	batch := []fsentry.FsInstruction{
		fsentry.CreateFile("/etc/a", fsentry.FileContents{}),
		fsentry.CreateFile("/etc/b", fsentry.FileContents{}),
	}
	require.NoError(t, ia.Apply(context.Background(), batch))
	// First instruction answered 'a' (apply this and all remaining);
	// the second must be applied without a further prompt.
	require.Len(t, rec.batches, 2)
	assert.Equal(t, "/etc/a", rec.batches[0][0].Path)
	assert.Equal(t, "/etc/b", rec.batches[1][0].Path)
}

func TestInteractivePerFileSkipOne(t *testing.T) {
	rec := &recordingApplicator{}
	ia := &Interactive{Next: rec, In: strings.NewReader("i\ns\ny\n"), Out: &bytes.Buffer{}}

	batch := []fsentry.FsInstruction{
		fsentry.CreateFile("/etc/a", fsentry.FileContents{}),
		fsentry.CreateFile("/etc/b", fsentry.FileContents{}),
	}
	require.NoError(t, ia.Apply(context.Background(), batch))
	require.Len(t, rec.batches, 1)
	assert.Equal(t, "/etc/b", rec.batches[0][0].Path)
}
