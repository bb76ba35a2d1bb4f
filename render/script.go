// Package render emits the state engine's diff output as generated script
// source and renders per-file diffs through an external diff+pager,
// producing structured text from a small set of emitter methods without
// pulling in a templating engine for output this mechanical.
package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/etnz/syskoll/apply"
	"github.com/etnz/syskoll/fsentry"
)

// CmdsPrefix is the default receiver name generated calls are written
// against; a script may rebind it by assignment, which is why every
// emitter method takes the prefix as a parameter instead of hardcoding it.
const CmdsPrefix = "cmds"

// ScriptWriter emits `cmds.*` method-call lines to an underlying writer,
// one call per filesystem or package instruction.
type ScriptWriter struct {
	w      io.Writer
	prefix string
	err    error
}

// NewScriptWriter builds a ScriptWriter. An empty prefix defaults to
// [CmdsPrefix].
func NewScriptWriter(w io.Writer, prefix string) *ScriptWriter {
	if prefix == "" {
		prefix = CmdsPrefix
	}
	return &ScriptWriter{w: w, prefix: prefix}
}

// Err returns the first write error encountered, if any.
func (s *ScriptWriter) Err() error { return s.err }

func (s *ScriptWriter) emit(comment string, format string, args ...any) {
	if s.err != nil {
		return
	}
	line := fmt.Sprintf("%s.%s?;", s.prefix, fmt.Sprintf(format, args...))
	if comment != "" {
		line += " // " + comment
	}
	_, s.err = fmt.Fprintln(s.w, line)
}

func (s *ScriptWriter) Copy(path, comment string) { s.emit(comment, "copy(%s)", quote(path)) }
func (s *ScriptWriter) Rm(path, comment string)   { s.emit(comment, "rm(%s)", quote(path)) }
func (s *ScriptWriter) Ln(path, target, comment string) {
	s.emit(comment, "ln(%s, %s)", quote(path), quote(target))
}
func (s *ScriptWriter) Mkdir(path, comment string)  { s.emit(comment, "mkdir(%s)", quote(path)) }
func (s *ScriptWriter) Mkfifo(path, comment string) { s.emit(comment, "mkfifo(%s)", quote(path)) }
func (s *ScriptWriter) Mknod(path, devKind string, major, minor uint32, comment string) {
	s.emit(comment, "mknod(%s, %s, %d, %d)", quote(path), quote(devKind), major, minor)
}
func (s *ScriptWriter) Chmod(path string, mode fsentry.Mode, comment string) {
	s.emit(comment, "chmod(%s, %s)", quote(path), octal(mode))
}
func (s *ScriptWriter) Chown(path, owner, comment string) {
	s.emit(comment, "chown(%s, %s)", quote(path), quote(owner))
}
func (s *ScriptWriter) Chgrp(path, group, comment string) {
	s.emit(comment, "chgrp(%s, %s)", quote(path), quote(group))
}
func (s *ScriptWriter) AddPkg(backend, ident, comment string) {
	s.emit(comment, "add_pkg(%s, %s)", quote(backend), quote(ident))
}
func (s *ScriptWriter) RemovePkg(backend, ident, comment string) {
	s.emit(comment, "remove_pkg(%s, %s)", quote(backend), quote(ident))
}
func (s *ScriptWriter) Comment(text string) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintln(s.w, "// "+text)
}

func quote(s string) string { return strconv.Quote(s) }

func octal(m fsentry.Mode) string { return fmt.Sprintf("0o%o", uint32(m.Masked())) }

// WriteFsInstruction appends one fs instruction as a `cmds.*` call. Restore
// instructions (apply-only; [state.Diff] never emits them for GoalSave)
// are rendered as a comment rather than dropped silently.
func (s *ScriptWriter) WriteFsInstruction(instr fsentry.FsInstruction) {
	switch instr.Op.Kind {
	case fsentry.OpRemove:
		s.Rm(instr.Path, instr.Comment)
	case fsentry.OpCreateDirectory:
		s.Mkdir(instr.Path, instr.Comment)
	case fsentry.OpCreateFile:
		s.Copy(instr.Path, instr.Comment)
	case fsentry.OpCreateSymlink:
		s.Ln(instr.Path, instr.Op.Target, instr.Comment)
	case fsentry.OpCreateFifo:
		s.Mkfifo(instr.Path, instr.Comment)
	case fsentry.OpCreateBlockDevice:
		s.Mknod(instr.Path, "b", instr.Op.Major, instr.Op.Minor, instr.Comment)
	case fsentry.OpCreateCharDevice:
		s.Mknod(instr.Path, "c", instr.Op.Major, instr.Op.Minor, instr.Comment)
	case fsentry.OpSetMode:
		s.Chmod(instr.Path, instr.Op.Mode, instr.Comment)
	case fsentry.OpSetOwner:
		s.Chown(instr.Path, instr.Op.Name, instr.Comment)
	case fsentry.OpSetGroup:
		s.Chgrp(instr.Path, instr.Op.Name, instr.Comment)
	case fsentry.OpComment:
		s.Comment(instr.Comment)
	case fsentry.OpRestore:
		s.Comment(fmt.Sprintf("restore %s (apply-only, not representable in a save script)", instr.Path))
	}
}

// WriteUnsortedAdditions emits the `unsorted_additions(props, cmds)`
// function body: filesystem instructions the live system has that the
// script doesn't, plus packages to add.
func WriteUnsortedAdditions(w io.Writer, fsInstrs []fsentry.FsInstruction, pkgInstrs []apply.PackageInstruction) error {
	fmt.Fprintln(w, "fn unsorted_additions(props, cmds) {")
	sw := NewScriptWriter(w, "")
	for _, instr := range fsInstrs {
		sw.WriteFsInstruction(instr)
	}
	for _, p := range pkgInstrs {
		if p.Install {
			sw.AddPkg(p.Backend.String(), p.Identifier, "")
		}
	}
	fmt.Fprintln(w, "}")
	return sw.Err()
}

// WriteUnsortedRemovals emits the `unsorted_removals(props, cmds)`
// function body: the inverse of additions.
func WriteUnsortedRemovals(w io.Writer, fsInstrs []fsentry.FsInstruction, pkgInstrs []apply.PackageInstruction) error {
	fmt.Fprintln(w, "fn unsorted_removals(props, cmds) {")
	sw := NewScriptWriter(w, "")
	for _, instr := range fsInstrs {
		sw.WriteFsInstruction(instr)
	}
	for _, p := range pkgInstrs {
		if !p.Install {
			sw.RemovePkg(p.Backend.String(), p.Identifier, "")
		}
	}
	fmt.Fprintln(w, "}")
	return sw.Err()
}
