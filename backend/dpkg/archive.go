package dpkg

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/etnz/syskoll/backend/archiveutil"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// filesFromDebReader opens r as an `ar` archive, locates the data.tar.*
// member and streams it into [fsentry.FileEntry] values via
// [archiveutil.WalkTar].
func filesFromDebReader(r io.Reader, pkg pkgmodel.PackageRef) ([]*fsentry.FileEntry, error) {
	arR := ar.NewReader(r)
	for {
		hdr, err := arR.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("dpkg: no data.tar member found in archive")
		}
		if err != nil {
			return nil, fmt.Errorf("dpkg: reading ar header: %w", err)
		}
		name := strings.TrimSpace(hdr.Name)
		if !strings.HasPrefix(name, "data.tar") {
			continue
		}

		dr, err := decompressFor(name, arR)
		if err != nil {
			return nil, fmt.Errorf("dpkg: opening %s: %w", name, err)
		}
		tr := tar.NewReader(dr)
		return archiveutil.WalkTar(tr, pkg, pkgmodel.BackendDpkg, nil)
	}
}

// decompressFor wraps r with the decompressor matching data.tar's suffix.
// All four compression schemes dpkg has shipped over the years are
// supported; gz and bz2 use the standard library's decoder-only packages,
// xz and zstd use the same ecosystem libraries pacman's backend reaches
// for.
func decompressFor(member string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(member, ".gz"):
		return gzip.NewReader(r)
	case strings.HasSuffix(member, ".xz"):
		return xz.NewReader(r)
	case strings.HasSuffix(member, ".bz2"):
		return bzip2.NewReader(r), nil
	case strings.HasSuffix(member, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		// data.tar with no suffix: uncompressed.
		return r, nil
	}
}
