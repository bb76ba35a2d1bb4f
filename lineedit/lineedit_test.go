package lineedit_test

import (
	"regexp"
	"testing"

	"github.com/etnz/syskoll/lineedit"
	"github.com/stretchr/testify/assert"
)

func TestRegexReplaceAllOnEveryLine(t *testing.T) {
	re := regexp.MustCompile(`f(a|o)o`)
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.All(), lineedit.RegexReplace(re, "b${1}r", true)),
		},
	}

	got := p.Apply("foo\nfao foo fee\n")
	assert.Equal(t, "bor\nbar bor fee\n", got)
}

func TestApplyEmptyInputIsEmpty(t *testing.T) {
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.All(), lineedit.Replace("should never run")),
		},
	}
	assert.Equal(t, "", p.Apply(""))
}

func TestApplyWithNoInstructionsIsIdentityOnNewlineTerminatedInput(t *testing.T) {
	p := &lineedit.Program{DefaultPrint: true}
	in := "alpha\nbeta\ngamma\n"
	assert.Equal(t, in, p.Apply(in))
}

func TestApplyAppendsMissingTrailingNewline(t *testing.T) {
	p := &lineedit.Program{DefaultPrint: true}
	assert.Equal(t, "alpha\nbeta\n", p.Apply("alpha\nbeta"))
}

func TestDeleteSuppressesOutputForMatchedLine(t *testing.T) {
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.Line(2), lineedit.Delete()),
		},
	}
	got := p.Apply("one\ntwo\nthree\n")
	assert.Equal(t, "one\nthree\n", got)
}

func TestInsertBeforeAndAfter(t *testing.T) {
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.Line(1), lineedit.InsertBefore("# header")),
			lineedit.On(lineedit.Line(1), lineedit.InsertAfter("# trailer")),
		},
	}
	got := p.Apply("body\n")
	assert.Equal(t, "# header\nbody\n# trailer\n", got)
}

func TestStopAndPrintFlushesRemainingInputVerbatim(t *testing.T) {
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.Line(2), lineedit.StopAndPrint()),
			lineedit.On(lineedit.All(), lineedit.Replace("MODIFIED")),
		},
	}
	got := p.Apply("one\ntwo\nthree\nfour\n")
	// Line 1 runs the Replace instruction; line 2 hits StopAndPrint before
	// the Replace (selectors run in order) so it prints untouched, and the
	// rest of the input is copied through raw.
	assert.Equal(t, "MODIFIED\ntwo\nthree\nfour\n", got)
}

func TestEOFSelectorFiresOnceAfterInput(t *testing.T) {
	var sawEOF int
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.EOF(), lineedit.Function(func(s string) string {
				sawEOF++
				return s
			})),
		},
	}
	p.Apply("a\nb\n")
	assert.Equal(t, 1, sawEOF)
}

func TestNextLineEmitsCurrentThenAdvances(t *testing.T) {
	p := &lineedit.Program{
		DefaultPrint: true,
		Instructions: []lineedit.Instruction{
			lineedit.On(lineedit.Line(1), lineedit.NextLine()),
			lineedit.On(lineedit.All(), lineedit.Replace("X")),
		},
	}
	// Line 1 ("a") is emitted verbatim by NextLine, then the cursor moves to
	// line 2 ("b") which continues through the remaining instructions (the
	// Replace), and default-print fires once more for it.
	got := p.Apply("a\nb\nc\n")
	assert.Equal(t, "a\nX\nX\n", got)
}
