package apply

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLogsWithoutMutating(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := &Noop{Log: zap.New(core)}

	err := n.Apply(context.Background(), []fsentry.FsInstruction{
		fsentry.CreateDirectory("/etc/example"),
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "would apply", entries[0].Message)
}
