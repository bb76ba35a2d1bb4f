package apply

import (
	"context"

	"go.uber.org/zap"

	"github.com/etnz/syskoll/fsentry"
)

// Noop is the dry-run applicator: it performs no filesystem mutation and
// logs what each instruction would have done, at info level so --dry-run
// output is visible without raising the logger's verbosity.
type Noop struct {
	Log *zap.Logger
}

// NewNoop builds a Noop applicator.
func NewNoop(log *zap.Logger) *Noop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Noop{Log: log}
}

func (a *Noop) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	for _, instr := range batch {
		a.Log.Info("would apply",
			zap.String("op", instr.Op.Kind.String()),
			zap.String("path", instr.Path),
			zap.String("comment", instr.Comment),
		)
	}
	return nil
}

var _ Applicator = (*Noop)(nil)
