package lineedit

import "strings"

// Program is an ordered list of selector/action instructions applied to
// each line of input in turn, streaming-transducer style (sed's model).
type Program struct {
	Instructions []Instruction
	// DefaultPrint controls whether the (possibly modified) pattern space
	// is appended to the output once the instruction list finishes running
	// for an ordinary line. Delete and Stop always suppress it regardless.
	DefaultPrint bool
}

type haltKind uint8

const (
	haltNone haltKind = iota
	haltStop
	haltStopAndPrint
)

// interp holds the shared cursor over raw input lines and the output
// buffer, so that NextLine can pull lines out of band from the main loop
// and InsertAfter can queue text to follow whatever pattern space is
// eventually emitted.
type interp struct {
	lines        []string
	idx          int
	out          *strings.Builder
	pendingAfter []string
}

func (in *interp) nextRawLine() (string, bool) {
	if in.idx >= len(in.lines) {
		return "", false
	}
	l := in.lines[in.idx]
	in.idx++
	return l, true
}

// emit writes ps followed by any queued InsertAfter text.
func (in *interp) emit(ps string) {
	in.out.WriteString(ps)
	in.out.WriteByte('\n')
	for _, a := range in.pendingAfter {
		in.out.WriteString(a)
		in.out.WriteByte('\n')
	}
	in.pendingAfter = in.pendingAfter[:0]
}

// Apply runs the program over input and returns the transformed text.
//
// The empty string maps to itself. Any other input whose last byte isn't
// '\n' gets one appended before processing, so a program that never
// touches a trailing partial line still produces newline-terminated
// output; applying the program a second time to that output is then a
// no-op beyond what the instructions themselves do.
func (p *Program) Apply(input string) string {
	if input == "" {
		return ""
	}
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	rawLines := strings.Split(input, "\n")
	rawLines = rawLines[:len(rawLines)-1]

	var out strings.Builder
	in := &interp{lines: rawLines, out: &out}

	lineNumber := 0
	halted := false

loop:
	for {
		line, ok := in.nextRawLine()
		if !ok {
			break
		}
		// in.idx also counts lines a NextLine action consumed.
		lineNumber = in.idx

		ps, suppress, halt := p.run(in, p.Instructions, 0, lineNumber, line)

		switch halt {
		case haltStop:
			halted = true
			break loop
		case haltStopAndPrint:
			halted = true
			if !suppress {
				in.emit(ps)
			}
			for {
				rest, ok := in.nextRawLine()
				if !ok {
					break
				}
				out.WriteString(rest)
				out.WriteByte('\n')
			}
			break loop
		}

		if !suppress && p.DefaultPrint {
			in.emit(ps)
		}
	}

	if !halted {
		p.run(in, p.Instructions, 0, EOFLine, "")
	}

	return out.String()
}

// run executes instrs[from:] against the given pattern space, returning the
// pattern space the caller should (maybe) default-print, whether printing
// it should be suppressed, and any halt signal to propagate upward.
func (p *Program) run(in *interp, instrs []Instruction, from int, lineNumber int, ps string) (resultPS string, suppress bool, halt haltKind) {
	for i := from; i < len(instrs); i++ {
		instr := instrs[i]
		if instr.Selector.matches(lineNumber, ps) == instr.Inverted {
			continue
		}

		switch instr.Action.Kind {
		case ActPrint:
			in.emit(ps)

		case ActDelete:
			return "", true, haltNone

		case ActNextLine:
			in.emit(ps)
			next, ok := in.nextRawLine()
			if !ok {
				return "", true, haltNone
			}
			lineNumber++
			ps = next

		case ActStop:
			return ps, true, haltStop

		case ActStopAndPrint:
			return ps, false, haltStopAndPrint

		case ActInsertBefore:
			in.out.WriteString(instr.Action.Text)
			in.out.WriteByte('\n')

		case ActInsertAfter:
			in.pendingAfter = append(in.pendingAfter, instr.Action.Text)

		case ActReplace:
			ps = instr.Action.Text

		case ActRegexReplace:
			ps = applyRegexReplace(instr.Action, ps)

		case ActFunction:
			if instr.Action.Func != nil {
				ps = instr.Action.Func(ps)
			}

		case ActSubprogram:
			if instr.Action.Subprogram != nil {
				sub := instr.Action.Subprogram
				subPS, _, subHalt := sub.run(in, sub.Instructions, 0, lineNumber, ps)
				ps = subPS
				if subHalt != haltNone {
					return ps, false, subHalt
				}
			}
		}
	}
	return ps, false, haltNone
}

func applyRegexReplace(a Action, ps string) string {
	if a.Regex == nil {
		return ps
	}
	if a.All {
		return a.Regex.ReplaceAllString(ps, a.Replacement)
	}
	replaced := false
	return a.Regex.ReplaceAllStringFunc(ps, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return a.Regex.ReplaceAllString(m, a.Replacement)
	})
}
