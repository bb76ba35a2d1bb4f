package fsentry

import (
	"fmt"

	"github.com/etnz/syskoll/pkgmodel"
)

// InlineContentThreshold is the size above which [FileContents] must use
// FromFile instead of Literal, bounding how much package-file content the
// state engine ever holds in memory at once.
const InlineContentThreshold = 1 << 20 // 1 MiB

// ContentsKind discriminates [FileContents].
type ContentsKind uint8

const (
	ContentsLiteral ContentsKind = iota
	ContentsFromFile
)

// FileContents is the payload of a CreateFile instruction: either the bytes
// themselves, or a reference to where they can be read from on disk.
//
// Invariant: the checksum is always SHA-256, regardless of what algorithm
// the owning backend natively computed; see [Rehash]. This lets diff/apply
// compare contents across backends without caring which one produced them.
type FileContents struct {
	Kind     ContentsKind
	Checksum Checksum // always AlgoSHA256
	Bytes    []byte   // set iff Kind == ContentsLiteral
	Path     string   // set iff Kind == ContentsFromFile
	Size     int64
}

// NewFileContents builds a FileContents, choosing Literal or FromFile based
// on len(data) against [InlineContentThreshold]. path is the location data
// was read from (or should be read from again), used only in the FromFile
// case; it may be empty if data fits inline.
func NewFileContents(sha256 Checksum, data []byte, path string) (FileContents, error) {
	if sha256.Algo != AlgoSHA256 {
		return FileContents{}, fmt.Errorf("fsentry: FileContents requires a SHA-256 checksum, got %s", sha256.Algo)
	}
	if int64(len(data)) > InlineContentThreshold {
		if path == "" {
			return FileContents{}, fmt.Errorf("fsentry: content over %d bytes requires a backing path", InlineContentThreshold)
		}
		return FileContents{Kind: ContentsFromFile, Checksum: sha256, Path: path, Size: int64(len(data))}, nil
	}
	return FileContents{Kind: ContentsLiteral, Checksum: sha256, Bytes: data, Size: int64(len(data))}, nil
}

// FromFileRef builds a FileContents that references path without holding
// bytes in memory at all, for callers streaming directly from a known
// on-disk location larger than the threshold.
func FromFileRef(sha256 Checksum, path string, size int64) (FileContents, error) {
	if sha256.Algo != AlgoSHA256 {
		return FileContents{}, fmt.Errorf("fsentry: FileContents requires a SHA-256 checksum, got %s", sha256.Algo)
	}
	return FileContents{Kind: ContentsFromFile, Checksum: sha256, Path: path, Size: size}, nil
}

// Equal compares two FileContents by checksum and size only, never by
// reading bytes off disk; this is what the diff and state-engine
// idempotence invariants rely on.
func (c FileContents) Equal(other FileContents) bool {
	return c.Size == other.Size && c.Checksum.Equal(other.Checksum)
}

// OpKind discriminates [FsOp].
type OpKind uint8

const (
	OpRemove OpKind = iota
	OpCreateDirectory
	OpCreateFile
	OpCreateSymlink
	OpCreateFifo
	OpCreateBlockDevice
	OpCreateCharDevice
	OpSetMode
	OpSetOwner
	OpSetGroup
	OpRestore
	OpComment
)

func (k OpKind) String() string {
	switch k {
	case OpRemove:
		return "remove"
	case OpCreateDirectory:
		return "create-directory"
	case OpCreateFile:
		return "create-file"
	case OpCreateSymlink:
		return "create-symlink"
	case OpCreateFifo:
		return "create-fifo"
	case OpCreateBlockDevice:
		return "create-block-device"
	case OpCreateCharDevice:
		return "create-char-device"
	case OpSetMode:
		return "set-mode"
	case OpSetOwner:
		return "set-owner"
	case OpSetGroup:
		return "set-group"
	case OpRestore:
		return "restore"
	case OpComment:
		return "comment"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// FsOp is the imperative payload of an [FsInstruction]. Only the fields
// relevant to Kind are meaningful, mirroring [Properties]'s variant-struct
// shape for the same reason: the payloads overlap (major/minor for both
// device kinds, a single string for owner/group/symlink-target).
type FsOp struct {
	Kind OpKind

	Contents FileContents // OpCreateFile
	Target   string       // OpCreateSymlink
	Major    uint32       // OpCreateBlockDevice, OpCreateCharDevice
	Minor    uint32       // OpCreateBlockDevice, OpCreateCharDevice
	Mode     Mode         // OpSetMode
	Name     string       // OpSetOwner, OpSetGroup
}

// FsInstruction is a single ordered imperative record consumed by the state
// engine and the applicator.
type FsInstruction struct {
	Path    string
	Op      FsOp
	Comment string
	Package pkgmodel.PackageRef // zero if not attributed to a package
}

func Remove(path string) FsInstruction { return FsInstruction{Path: path, Op: FsOp{Kind: OpRemove}} }

func CreateDirectory(path string) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpCreateDirectory}}
}

func CreateFile(path string, contents FileContents) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpCreateFile, Contents: contents}}
}

func CreateSymlink(path, target string) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpCreateSymlink, Target: target}}
}

func CreateFifo(path string) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpCreateFifo}}
}

func CreateBlockDevice(path string, major, minor uint32) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpCreateBlockDevice, Major: major, Minor: minor}}
}

func CreateCharDevice(path string, major, minor uint32) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpCreateCharDevice, Major: major, Minor: minor}}
}

func SetMode(path string, mode Mode) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpSetMode, Mode: mode}}
}

func SetOwner(path, name string) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpSetOwner, Name: name}}
}

func SetGroup(path, name string) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpSetGroup, Name: name}}
}

func Restore(path string) FsInstruction { return FsInstruction{Path: path, Op: FsOp{Kind: OpRestore}} }

func Comment(path, text string) FsInstruction {
	return FsInstruction{Path: path, Op: FsOp{Kind: OpComment}, Comment: text}
}

// WithComment returns a copy of the instruction with Comment set.
func (i FsInstruction) WithComment(text string) FsInstruction {
	i.Comment = text
	return i
}

// WithPackage returns a copy of the instruction attributed to pkg.
func (i FsInstruction) WithPackage(pkg pkgmodel.PackageRef) FsInstruction {
	i.Package = pkg
	return i
}
