package orchestrator

import (
	"context"
	"io/fs"
	"os"
	"os/user"
	"strconv"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/etnz/syskoll/state"
)

// liveResolver answers [state.PathResolver] for paths the script no longer
// asserts anything about during an apply, per design note §4.8: it backs
// onto a live Lstat plus the file backend's OwningPackages, resolved in one
// batch ahead of the diff rather than per-path during it.
type liveResolver struct {
	owners map[string]pkgmodel.PackageRef
}

// newLiveResolver resolves the owning package for every path in paths up
// front, so [liveResolver.Resolve] itself never blocks on the backend.
func newLiveResolver(ctx context.Context, files backend.Files, paths []string, in *intern.Interner) (*liveResolver, error) {
	r := &liveResolver{owners: make(map[string]pkgmodel.PackageRef)}
	if files == nil || len(paths) == 0 {
		return r, nil
	}
	owners, err := files.OwningPackages(ctx, paths, in)
	if err != nil {
		return nil, err
	}
	r.owners = owners
	return r, nil
}

func (r *liveResolver) Resolve(path string) (state.Resolution, bool) {
	fi, err := os.Lstat(path)
	if err != nil {
		return state.Resolution{}, false
	}

	res := state.Resolution{Mode: fsentry.Mode(fi.Mode().Perm())}
	switch {
	case fi.Mode()&fs.ModeSymlink != 0:
		res.Kind = state.ResolutionSymlink
		target, err := os.Readlink(path)
		if err != nil {
			return state.Resolution{}, false
		}
		res.Target = target
	case fi.Mode().IsDir():
		res.Kind = state.ResolutionDirectory
	case fi.Mode().IsRegular():
		if pkg, ok := r.owners[path]; ok && !pkg.IsZero() {
			res.Kind = state.ResolutionRegularFileTrackedByPackage
			res.Package = pkg
		} else {
			res.Kind = state.ResolutionUnknown
		}
	default:
		res.Kind = state.ResolutionUnknown
	}

	if owner, group, ok := lookupOwnerGroup(fi); ok {
		res.Owner = owner
		res.Group = group
	}
	return res, true
}

func lookupOwnerGroup(fi fs.FileInfo) (owner, group string, ok bool) {
	stat, isStatT := fi.Sys().(*statT)
	if !isStatT {
		return "", "", false
	}
	return resolveUserName(stat.Uid), resolveGroupName(stat.Gid), true
}

func resolveUserName(uid uint32) string {
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		return u.Username
	}
	return ""
}

func resolveGroupName(gid uint32) string {
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		return g.Name
	}
	return ""
}
