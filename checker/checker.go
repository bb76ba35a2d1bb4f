// Package checker compares a stream of expected [fsentry.FileEntry] values
// against the live filesystem, in parallel, optionally also walking the
// tree to discover files no package or script claims.
package checker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/etnz/syskoll/fsentry"
)

// Options configures a check pass.
type Options struct {
	// TrustMtime skips content hashing for a regular file whose mtime
	// matches the expected value exactly.
	TrustMtime bool

	// Canonicalize requests the parent-directory canonicalisation pass
	// described in the design notes; only meaningful when the owning
	// backend reports [backend.Files.MayNeedCanonicalization].
	Canonicalize bool

	// IgnoreGlobs additionally excludes matching paths (and anything
	// below a matching directory) from both the Unexpected and Missing
	// reports during CheckAll. Built-in excludes are always applied on
	// top of these.
	IgnoreGlobs []string

	// Concurrency bounds how many goroutines check entries or walk
	// directories at once. Zero means use a sensible default.
	Concurrency int
}

// defaultIgnores are always excluded from CheckAll regardless of Options,
// matching the design's built-in exclusion list: these trees are either
// virtual, ephemeral, or not package-managed content by convention.
var defaultIgnores = []string{
	"/dev", "/proc", "/sys", "/run", "/tmp", "/var/tmp",
	"/home", "/root", "/media", "/mnt", "lost+found",
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return 8
}

// CheckEntry compares a single expected entry against the live filesystem
// and returns the issue found, or nil if everything matches.
func CheckEntry(e *fsentry.FileEntry, opts Options) (*Issue, error) {
	fi, err := os.Lstat(e.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if e.Properties.Kind == fsentry.KindRemoved || e.Flags.Has(fsentry.FlagOKIfMissing) {
				return nil, nil
			}
			return &Issue{Path: e.Path, Kind: IssueMissing}, nil
		}
		if os.IsPermission(err) {
			return &Issue{Path: e.Path, Kind: IssuePermissionDenied, Detail: err.Error()}, nil
		}
		return &Issue{Path: e.Path, Kind: IssueMetadataError, Detail: err.Error()}, nil
	}

	if e.Properties.Kind == fsentry.KindRemoved {
		return &Issue{Path: e.Path, Kind: IssueExists}, nil
	}

	return checkAgainstStat(e, fi, opts)
}

func checkAgainstStat(e *fsentry.FileEntry, fi fs.FileInfo, opts Options) (*Issue, error) {
	props := e.Properties

	if !kindMatchesMode(props.Kind, fi.Mode()) {
		return &Issue{
			Path: e.Path, Kind: IssueTypeIncorrect,
			Want: typeName(props.Kind), Got: fi.Mode().Type().String(),
		}, nil
	}

	switch props.Kind {
	case fsentry.KindUnknown, fsentry.KindSpecial:
		// Existence already verified by Lstat; both kinds match any file
		// type in kindMatchesMode, so a regular file satisfies Unknown too.
		// Nothing further to assert.
		return nil, nil
	case fsentry.KindSymlink:
		return checkSymlink(e, fi, props)
	case fsentry.KindDeviceNode:
		return checkDevice(e, fi, props)
	}

	if issue := checkPermissions(e.Path, fi, props); issue != nil {
		return issue, nil
	}

	if props.Kind == fsentry.KindRegularFileBasic || props.Kind == fsentry.KindRegularFileSystemd || props.Kind == fsentry.KindRegularFile {
		return checkRegularContent(e, fi, props, opts)
	}
	return nil, nil
}

func kindMatchesMode(k fsentry.Kind, mode fs.FileMode) bool {
	switch k {
	case fsentry.KindRegularFileBasic, fsentry.KindRegularFileSystemd, fsentry.KindRegularFile:
		return mode.IsRegular()
	case fsentry.KindSymlink:
		return mode&fs.ModeSymlink != 0
	case fsentry.KindDirectory, fsentry.KindPermissions:
		// Permissions entries don't assert a type; treat as matching.
		if k == fsentry.KindPermissions {
			return true
		}
		return mode.IsDir()
	case fsentry.KindFifo:
		return mode&fs.ModeNamedPipe != 0
	case fsentry.KindDeviceNode:
		return mode&fs.ModeDevice != 0
	case fsentry.KindSpecial, fsentry.KindUnknown:
		return true
	default:
		return true
	}
}

func typeName(k fsentry.Kind) string {
	switch k {
	case fsentry.KindRegularFileBasic, fsentry.KindRegularFileSystemd, fsentry.KindRegularFile:
		return "regular-file"
	case fsentry.KindSymlink:
		return "symlink"
	case fsentry.KindDirectory:
		return "directory"
	case fsentry.KindFifo:
		return "fifo"
	case fsentry.KindDeviceNode:
		return "device-node"
	default:
		return k.String()
	}
}

func checkSymlink(e *fsentry.FileEntry, fi fs.FileInfo, props fsentry.Properties) (*Issue, error) {
	target, err := os.Readlink(e.Path)
	if err != nil {
		return &Issue{Path: e.Path, Kind: IssueMetadataError, Detail: err.Error()}, nil
	}
	if target != props.SymlinkTarget {
		return &Issue{Path: e.Path, Kind: IssueSymlinkTarget, Want: props.SymlinkTarget, Got: target}, nil
	}
	return checkOwnerOnly(e.Path, fi, props)
}

func checkDevice(e *fsentry.FileEntry, fi fs.FileInfo, props fsentry.Properties) (*Issue, error) {
	stat, ok := fi.Sys().(*statT)
	if !ok {
		return &Issue{Path: e.Path, Kind: IssueMetadataError, Detail: "unsupported platform for device comparison"}, nil
	}
	major := unix.Major(uint64(stat.Rdev))
	minor := unix.Minor(uint64(stat.Rdev))
	wantDev := fsentry.DeviceBlock
	if fi.Mode()&fs.ModeCharDevice != 0 {
		wantDev = fsentry.DeviceChar
	}
	if major != props.Major || minor != props.Minor || wantDev != props.Device {
		return &Issue{
			Path: e.Path, Kind: IssueWrongDeviceNodeID,
			Want: fmt.Sprintf("%d:%d", props.Major, props.Minor),
			Got:  fmt.Sprintf("%d:%d", major, minor),
		}, nil
	}
	if issue := checkPermissions(e.Path, fi, props); issue != nil {
		return issue, nil
	}
	return nil, nil
}

// checkPermissions compares owner, group, and mode (masked to permission
// bits) when the expected Properties specifies them.
func checkPermissions(path string, fi fs.FileInfo, props fsentry.Properties) *Issue {
	stat, ok := fi.Sys().(*statT)
	if !ok {
		return nil
	}
	if props.Owner.Known {
		wantUID, err := resolveUID(props.Owner)
		if err == nil && int(stat.Uid) != wantUID {
			return &Issue{Path: path, Kind: IssueWrongOwner, Want: ownerLabel(props.Owner), Got: strconv.Itoa(int(stat.Uid))}
		}
	}
	if props.Group.Known {
		wantGID, err := resolveGID(props.Group)
		if err == nil && int(stat.Gid) != wantGID {
			return &Issue{Path: path, Kind: IssueWrongGroup, Want: ownerLabel(props.Group), Got: strconv.Itoa(int(stat.Gid))}
		}
	}
	if props.Mode != 0 {
		gotMode := fsentry.Mode(stat.Mode)
		if gotMode.Masked() != props.Mode.Masked() {
			return &Issue{Path: path, Kind: IssueWrongMode, Want: fmt.Sprintf("%#o", props.Mode.Masked()), Got: fmt.Sprintf("%#o", gotMode.Masked())}
		}
	}
	return nil
}

func checkOwnerOnly(path string, fi fs.FileInfo, props fsentry.Properties) (*Issue, error) {
	if issue := checkPermissions(path, fi, props); issue != nil {
		return issue, nil
	}
	return nil, nil
}

func checkRegularContent(e *fsentry.FileEntry, fi fs.FileInfo, props fsentry.Properties, opts Options) (*Issue, error) {
	if opts.TrustMtime && props.ModTimeUnixNano != 0 && fi.ModTime().UnixNano() == props.ModTimeUnixNano {
		return nil, nil
	}
	if props.Size != nil && fi.Size() != *props.Size {
		return &Issue{Path: e.Path, Kind: IssueSizeIncorrect, Want: strconv.FormatInt(*props.Size, 10), Got: strconv.FormatInt(fi.Size(), 10)}, nil
	}
	if props.Checksum.Algo != fsentry.AlgoNone {
		f, err := os.Open(e.Path)
		if err != nil {
			if os.IsPermission(err) {
				return &Issue{Path: e.Path, Kind: IssuePermissionDenied, Detail: err.Error()}, nil
			}
			return &Issue{Path: e.Path, Kind: IssueFsCheckError, Detail: err.Error()}, nil
		}
		defer f.Close()

		md5Sum, sha256Sum, _, err := fsentry.HashReader(f)
		if err != nil {
			return &Issue{Path: e.Path, Kind: IssueFsCheckError, Detail: err.Error()}, nil
		}
		var got fsentry.Checksum
		switch props.Checksum.Algo {
		case fsentry.AlgoMD5:
			got = fsentry.MD5(md5Sum)
		default:
			got = fsentry.SHA256(sha256Sum)
		}
		if !got.Equal(props.Checksum) {
			return &Issue{Path: e.Path, Kind: IssueChecksumIncorrect, Want: props.Checksum.String(), Got: got.String()}, nil
		}
	}
	return checkPermissions(e.Path, fi, props), nil
}

func ownerLabel(o fsentry.OwnerRef) string {
	if o.Name != "" {
		return o.Name
	}
	return strconv.Itoa(o.UID)
}

func resolveUID(o fsentry.OwnerRef) (int, error) {
	if o.Name == "" {
		return o.UID, nil
	}
	u, err := user.Lookup(o.Name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Uid)
}

func resolveGID(o fsentry.OwnerRef) (int, error) {
	if o.Name == "" {
		return o.UID, nil
	}
	g, err := user.LookupGroup(o.Name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}

// Report is the outcome of [CheckAll]: every issue found, in no particular
// order. Entries that were checked clean are not recorded.
type Report struct {
	Issues []Issue
}

// CheckAll checks every entry in entries against the live filesystem and,
// in the same pass, walks root looking for files that no entry claims.
// Entries and the walk both run on a bounded worker pool.
//
// entries' Seen flags are reset on entry and used to detect walked paths
// that match a known entry; after the walk, any entry still unseen and not
// covered by an ignore glob is reported Missing.
func CheckAll(ctx context.Context, root string, entries []*fsentry.FileEntry, opts Options) (*Report, error) {
	if opts.Canonicalize {
		// Only the parent is resolved: the entry itself may be a symlink.
		for _, e := range entries {
			if parent, err := filepath.EvalSymlinks(filepath.Dir(e.Path)); err == nil {
				e.Path = filepath.Join(parent, filepath.Base(e.Path))
			}
		}
	}
	index := newPathIndex(entries)
	for _, e := range entries {
		e.ResetSeen()
	}

	ignore := compileIgnores(opts.IgnoreGlobs)

	var mu sync.Mutex
	var issues []Issue
	record := func(i *Issue) {
		if i == nil {
			return
		}
		mu.Lock()
		issues = append(issues, *i)
		mu.Unlock()
	}

	var errMu sync.Mutex
	var checkErrs *multierror.Error
	recordErr := func(path string, err error) {
		errMu.Lock()
		checkErrs = multierror.Append(checkErrs, fmt.Errorf("%s: %w", path, err))
		errMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if gctx.Err() != nil {
			return gctx.Err()
		}
		if err != nil {
			if os.IsPermission(err) {
				record(&Issue{Path: path, Kind: IssuePermissionDenied, Detail: err.Error()})
				return nil
			}
			return err
		}
		if ignore.matches(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		matched := index.lookup(path)
		g.Go(func() error {
			if matched != nil {
				matched.MarkSeen()
				issue, err := CheckEntry(matched, opts)
				if err != nil {
					recordErr(matched.Path, err)
					return nil
				}
				record(issue)
				return nil
			}
			record(&Issue{Path: path, Kind: IssueUnexpected})
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, fmt.Errorf("checker: walking %s: %w", root, walkErr)
	}
	if err := checkErrs.ErrorOrNil(); err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Seen() {
			continue
		}
		if ignore.matches(e.Path) {
			continue
		}
		if e.Properties.Kind == fsentry.KindRemoved || e.Flags.Has(fsentry.FlagOKIfMissing) {
			continue
		}
		issues = append(issues, Issue{Path: e.Path, Kind: IssueMissing})
	}

	return &Report{Issues: issues}, nil
}

// pathIndex is the sharded concurrent path->entry map used during the walk.
// Sharding by a cheap hash of the path keeps lock contention low without
// requiring a lock-free map implementation.
type pathIndex struct {
	shards [32]struct {
		mu sync.RWMutex
		m  map[string]*fsentry.FileEntry
	}
}

func newPathIndex(entries []*fsentry.FileEntry) *pathIndex {
	idx := &pathIndex{}
	for i := range idx.shards {
		idx.shards[i].m = make(map[string]*fsentry.FileEntry)
	}
	for _, e := range entries {
		s := idx.shardFor(e.Path)
		s.mu.Lock()
		s.m[e.Path] = e
		s.mu.Unlock()
	}
	return idx
}

func (idx *pathIndex) shardFor(path string) *struct {
	mu sync.RWMutex
	m  map[string]*fsentry.FileEntry
} {
	var h uint32 = 2166136261
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	return &idx.shards[h%uint32(len(idx.shards))]
}

func (idx *pathIndex) lookup(path string) *fsentry.FileEntry {
	s := idx.shardFor(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[path]
}

// ignoreSet evaluates a path and every ancestor directory against a glob
// list, matching the spec's requirement that ignoring a directory silently
// covers everything below it.
type ignoreSet struct {
	globs []string
}

func compileIgnores(extra []string) ignoreSet {
	all := make([]string, 0, len(defaultIgnores)+len(extra))
	all = append(all, defaultIgnores...)
	all = append(all, extra...)
	return ignoreSet{globs: all}
}

func (s ignoreSet) matches(path string) bool {
	for _, g := range s.globs {
		for p := path; p != "/" && p != "."; p = filepath.Dir(p) {
			if ok, _ := filepath.Match(g, p); ok {
				return true
			}
			if ok, _ := filepath.Match(g, filepath.Base(p)); ok {
				return true
			}
			if strings.HasPrefix(p, g+"/") || p == g {
				return true
			}
		}
	}
	return false
}
