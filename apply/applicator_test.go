package apply

import (
	"context"
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingApplicator struct {
	batches [][]fsentry.FsInstruction
}

func (r *recordingApplicator) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	r.batches = append(r.batches, batch)
	return nil
}

func TestApplyFilesGroupsByOpKind(t *testing.T) {
	instrs := []fsentry.FsInstruction{
		fsentry.SetMode("/etc/b", 0o644),
		fsentry.CreateDirectory("/etc"),
		fsentry.CreateFile("/etc/a", fsentry.FileContents{}),
		fsentry.SetMode("/etc/a", 0o600),
		fsentry.CreateDirectory("/etc/sub"),
	}

	rec := &recordingApplicator{}
	require.NoError(t, ApplyFiles(context.Background(), rec, instrs))

	require.Len(t, rec.batches, 3)
	assert.Equal(t, fsentry.OpCreateDirectory, rec.batches[0][0].Op.Kind)
	assert.Len(t, rec.batches[0], 2)
	assert.Equal(t, fsentry.OpCreateFile, rec.batches[1][0].Op.Kind)
	assert.Equal(t, fsentry.OpSetMode, rec.batches[2][0].Op.Kind)
	assert.Len(t, rec.batches[2], 2)
}

func TestApplyFilesEmpty(t *testing.T) {
	rec := &recordingApplicator{}
	require.NoError(t, ApplyFiles(context.Background(), rec, nil))
	assert.Empty(t, rec.batches)
}

func TestApplyFilesStopsOnError(t *testing.T) {
	boom := assert.AnError
	failing := applicatorFunc(func(ctx context.Context, batch []fsentry.FsInstruction) error {
		return boom
	})
	err := ApplyFiles(context.Background(), failing, []fsentry.FsInstruction{fsentry.CreateDirectory("/etc")})
	assert.ErrorIs(t, err, boom)
}

type applicatorFunc func(ctx context.Context, batch []fsentry.FsInstruction) error

func (f applicatorFunc) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	return f(ctx, batch)
}
