package apply

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/etnz/syskoll/fsentry"
)

// Interactive wraps another [Applicator] behind a y/n/d/i confirmation
// prompt per batch, and a y/s/a/d prompt per instruction once the user
// drops into per-file mode. Reading is done a keystroke at a time when In
// is a terminal (via [term.MakeRaw]), falling back to line-buffered input
// otherwise, which is also what makes this type unit-testable with a
// plain [strings.Reader].
type Interactive struct {
	Next Applicator
	In   io.Reader
	Out  io.Writer
	// ShowDiff renders a human-readable diff for one instruction; if nil,
	// a one-line instruction summary is shown instead.
	ShowDiff func(fsentry.FsInstruction) (string, error)
	Log      *zap.Logger

	lineReader *bufio.Reader
}

// NewInteractive builds an Interactive applicator wrapping next, reading
// prompts from stdin and writing them to stdout.
func NewInteractive(next Applicator, log *zap.Logger) *Interactive {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interactive{Next: next, In: os.Stdin, Out: os.Stdout, Log: log}
}

func (a *Interactive) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	for {
		fmt.Fprintf(a.Out, "%d instruction(s): %s [y/n/d/i]? ", len(batch), batch[0].Op.Kind)
		key, err := a.readKey()
		if err != nil {
			return err
		}
		switch key {
		case 'y':
			return a.Next.Apply(ctx, batch)
		case 'n':
			return nil
		case 'd':
			a.showBatchDiff(batch)
		case 'i':
			return a.applyPerFile(ctx, batch)
		}
	}
}

func (a *Interactive) applyPerFile(ctx context.Context, batch []fsentry.FsInstruction) error {
	applyRest := false
	for _, instr := range batch {
		if applyRest {
			if err := a.Next.Apply(ctx, []fsentry.FsInstruction{instr}); err != nil {
				return err
			}
			continue
		}
		for {
			fmt.Fprintf(a.Out, "%s %s [y/s/a/d]? ", instr.Op.Kind, instr.Path)
			key, err := a.readKey()
			if err != nil {
				return err
			}
			switch key {
			case 'y':
				if err := a.Next.Apply(ctx, []fsentry.FsInstruction{instr}); err != nil {
					return err
				}
			case 's':
			case 'a':
				applyRest = true
				if err := a.Next.Apply(ctx, []fsentry.FsInstruction{instr}); err != nil {
					return err
				}
			case 'd':
				a.showOneDiff(instr)
				continue
			}
			break
		}
	}
	return nil
}

func (a *Interactive) showBatchDiff(batch []fsentry.FsInstruction) {
	for _, instr := range batch {
		a.showOneDiff(instr)
	}
}

func (a *Interactive) showOneDiff(instr fsentry.FsInstruction) {
	if a.ShowDiff != nil {
		text, err := a.ShowDiff(instr)
		if err != nil {
			fmt.Fprintf(a.Out, "%s: diff unavailable: %v\n", instr.Path, err)
			return
		}
		fmt.Fprint(a.Out, text)
		return
	}
	fmt.Fprintf(a.Out, "%s %s\n", instr.Op.Kind, instr.Path)
}

// readKey reads a single response character. A terminal input is switched
// to raw mode for the duration of the read, so the user doesn't have to
// press Enter; anything else falls back to line-buffered reading.
func (a *Interactive) readKey() (byte, error) {
	if f, ok := a.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, state)
			buf := make([]byte, 1)
			if _, err := a.In.Read(buf); err != nil {
				return 0, err
			}
			fmt.Fprintln(a.Out)
			return lower(buf[0]), nil
		}
	}

	if a.lineReader == nil {
		a.lineReader = bufio.NewReader(a.In)
	}
	line, err := a.lineReader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
	return lower(line[0]), nil
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

var _ Applicator = (*Interactive)(nil)
