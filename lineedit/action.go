package lineedit

import "regexp"

// ActionKind discriminates [Action].
type ActionKind uint8

const (
	ActPrint ActionKind = iota
	ActDelete
	ActNextLine
	ActStop
	ActStopAndPrint
	ActInsertBefore
	ActInsertAfter
	ActReplace
	ActRegexReplace
	ActFunction
	ActSubprogram
)

// Action is the operation an [Instruction] runs once its selector fires.
type Action struct {
	Kind ActionKind

	Text string // InsertBefore, InsertAfter, Replace

	Regex       *regexp.Regexp // RegexReplace
	Replacement string         // RegexReplace; supports "$1"/"${name}" expansion
	All         bool           // RegexReplace: replace every match, not just the first

	Func func(string) string // Function

	Subprogram *Program // Subprogram; shares pattern space with the parent
}

func Print() Action      { return Action{Kind: ActPrint} }
func Delete() Action     { return Action{Kind: ActDelete} }
func NextLine() Action   { return Action{Kind: ActNextLine} }
func Stop() Action       { return Action{Kind: ActStop} }
func StopAndPrint() Action { return Action{Kind: ActStopAndPrint} }

func InsertBefore(text string) Action { return Action{Kind: ActInsertBefore, Text: text} }
func InsertAfter(text string) Action  { return Action{Kind: ActInsertAfter, Text: text} }
func Replace(text string) Action      { return Action{Kind: ActReplace, Text: text} }

// RegexReplace builds a capture-group-aware replace action. replacement
// uses Go's regexp expansion syntax ("$1", "${name}"), which is also sed's
// capture-group syntax once '\1' is spelled "$1".
func RegexReplace(re *regexp.Regexp, replacement string, all bool) Action {
	return Action{Kind: ActRegexReplace, Regex: re, Replacement: replacement, All: all}
}

func Function(fn func(string) string) Action { return Action{Kind: ActFunction, Func: fn} }

func Subprogram(p *Program) Action { return Action{Kind: ActSubprogram, Subprogram: p} }

// Instruction pairs a selector with the action to run when it fires.
// Inverted negates the selector's result (sed's "!").
type Instruction struct {
	Selector Selector
	Inverted bool
	Action   Action
}

// On builds an Instruction with Inverted=false.
func On(sel Selector, act Action) Instruction {
	return Instruction{Selector: sel, Action: act}
}

// Unless builds an Instruction with Inverted=true.
func Unless(sel Selector, act Action) Instruction {
	return Instruction{Selector: sel, Inverted: true, Action: act}
}
