package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/etnz/syskoll/apply"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/lineedit"
	"github.com/etnz/syskoll/pkgmodel"
)

// FsActions is the driver-facing equivalent of the save-file's `cmds`
// object: a script or host calls these during the Main phase to declare
// the filesystem state it wants, and [Orchestrator.Main] folds the
// accumulated calls into the "after" map that gets diffed against the
// live system.
type FsActions struct {
	instrs []fsentry.FsInstruction
}

func (a *FsActions) Copy(path string, contents fsentry.FileContents) {
	a.instrs = append(a.instrs, fsentry.CreateFile(path, contents))
}
func (a *FsActions) Rm(path string) { a.instrs = append(a.instrs, fsentry.Remove(path)) }
func (a *FsActions) Ln(path, target string) {
	a.instrs = append(a.instrs, fsentry.CreateSymlink(path, target))
}
func (a *FsActions) Mkdir(path string) {
	a.instrs = append(a.instrs, fsentry.CreateDirectory(path))
}
func (a *FsActions) Mkfifo(path string) { a.instrs = append(a.instrs, fsentry.CreateFifo(path)) }
func (a *FsActions) Mknod(path string, kind fsentry.DeviceKind, major, minor uint32) {
	if kind == fsentry.DeviceChar {
		a.instrs = append(a.instrs, fsentry.CreateCharDevice(path, major, minor))
		return
	}
	a.instrs = append(a.instrs, fsentry.CreateBlockDevice(path, major, minor))
}
func (a *FsActions) Chmod(path string, mode fsentry.Mode) {
	a.instrs = append(a.instrs, fsentry.SetMode(path, mode))
}
func (a *FsActions) Chown(path, owner string) {
	a.instrs = append(a.instrs, fsentry.SetOwner(path, owner))
}
func (a *FsActions) Chgrp(path, group string) {
	a.instrs = append(a.instrs, fsentry.SetGroup(path, group))
}
func (a *FsActions) Restore(path string) { a.instrs = append(a.instrs, fsentry.Restore(path)) }

// EditLines patches path with a sed-like line-edit program instead of
// providing a full replacement body: the program runs over the file's
// current contents and the result is recorded as an ordinary CreateFile,
// so a script can tweak one line of a package-shipped config without
// carrying a full copy of the file.
func (a *FsActions) EditLines(path string, program *lineedit.Program) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("orchestrator: EditLines %s: %w", path, err)
	}
	edited := program.Apply(string(data))

	_, sha, _, err := fsentry.HashReader(strings.NewReader(edited))
	if err != nil {
		return fmt.Errorf("orchestrator: EditLines %s: %w", path, err)
	}
	contents, err := fsentry.NewFileContents(fsentry.SHA256(sha), []byte(edited), path)
	if err != nil {
		return fmt.Errorf("orchestrator: EditLines %s: %w", path, err)
	}
	a.instrs = append(a.instrs, fsentry.CreateFile(path, contents))
	return nil
}

func (a *FsActions) Comment(path, text string) {
	a.instrs = append(a.instrs, fsentry.Comment(path, text))
}

// Instructions returns every call recorded so far, in call order.
func (a *FsActions) Instructions() []fsentry.FsInstruction { return a.instrs }

// PackageActions is the driver-facing equivalent of `cmds.add_pkg` /
// `cmds.remove_pkg`.
type PackageActions struct {
	instrs []apply.PackageInstruction
}

func (p *PackageActions) AddPkg(b pkgmodel.Backend, identifier string) {
	p.instrs = append(p.instrs, apply.PackageInstruction{Backend: b, Identifier: identifier, Install: true})
}

func (p *PackageActions) RemovePkg(b pkgmodel.Backend, identifier string) {
	p.instrs = append(p.instrs, apply.PackageInstruction{Backend: b, Identifier: identifier, Install: false})
}

// Instructions returns every call recorded so far, in call order.
func (p *PackageActions) Instructions() []apply.PackageInstruction { return p.instrs }
