package fsentry

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ChecksumAlgo identifies which digest a [Checksum] carries.
type ChecksumAlgo uint8

const (
	AlgoNone ChecksumAlgo = iota
	AlgoMD5
	AlgoSHA256
)

func (a ChecksumAlgo) String() string {
	switch a {
	case AlgoMD5:
		return "md5"
	case AlgoSHA256:
		return "sha256"
	default:
		return "none"
	}
}

// Checksum is a typed sum: exactly one of the two digest fields is
// populated, selected by Algo. Keeping both the algorithm and matching
// byte-width avoids a sum-type allocation while still being impossible to
// misuse with the wrong hasher.
type Checksum struct {
	Algo   ChecksumAlgo
	md5    [md5.Size]byte
	sha256 [sha256.Size]byte
}

// MD5 builds a Checksum from a raw MD5 digest.
func MD5(sum [md5.Size]byte) Checksum { return Checksum{Algo: AlgoMD5, md5: sum} }

// SHA256 builds a Checksum from a raw SHA-256 digest.
func SHA256(sum [sha256.Size]byte) Checksum { return Checksum{Algo: AlgoSHA256, sha256: sum} }

// Bytes returns the raw digest bytes for whichever algorithm is set.
func (c Checksum) Bytes() []byte {
	switch c.Algo {
	case AlgoMD5:
		return c.md5[:]
	case AlgoSHA256:
		return c.sha256[:]
	default:
		return nil
	}
}

// String renders "algo:hex", the display form used throughout reports and
// generated scripts.
func (c Checksum) String() string {
	if c.Algo == AlgoNone {
		return "none:"
	}
	return fmt.Sprintf("%s:%s", c.Algo, hex.EncodeToString(c.Bytes()))
}

// Equal compares two checksums for equality. Checksums of different
// algorithms are never equal even if one happens to be a prefix of the
// other's hex form; callers that need to compare across algorithms must
// rehash to a common one first (see [HashReader]).
func (c Checksum) Equal(other Checksum) bool {
	if c.Algo != other.Algo {
		return false
	}
	switch c.Algo {
	case AlgoMD5:
		return c.md5 == other.md5
	case AlgoSHA256:
		return c.sha256 == other.sha256
	default:
		return true
	}
}

// ParseMD5Hex parses a 32-hex-digit MD5 digest, as found in dpkg's
// md5sums control files.
func ParseMD5Hex(hexStr string) (Checksum, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Checksum{}, fmt.Errorf("invalid md5 hex %q: %w", hexStr, err)
	}
	if len(b) != md5.Size {
		return Checksum{}, fmt.Errorf("invalid md5 length %q: want %d bytes, got %d", hexStr, md5.Size, len(b))
	}
	var sum [md5.Size]byte
	copy(sum[:], b)
	return MD5(sum), nil
}

// HashReader streams r through both MD5 and SHA-256 simultaneously and
// returns both digests plus the total byte count. Callers that only need
// one algorithm still get both for the cost of one read pass, which is
// useful because [fsentry.FileContents] mandates SHA-256 regardless of
// what the owning backend natively records.
func HashReader(r io.Reader) (md5Sum [md5.Size]byte, sha256Sum [sha256.Size]byte, size int64, err error) {
	hm := md5.New()
	hs := sha256.New()
	n, err := io.Copy(io.MultiWriter(hm, hs), r)
	if err != nil {
		return md5Sum, sha256Sum, 0, err
	}
	copy(md5Sum[:], hm.Sum(nil))
	copy(sha256Sum[:], hs.Sum(nil))
	return md5Sum, sha256Sum, n, nil
}

// Rehash converts a checksum of any supported algorithm into a SHA-256
// checksum by hashing the provided content. If c is already SHA-256, its
// bytes are reused without touching content.
func Rehash(c Checksum, content io.Reader) (Checksum, error) {
	if c.Algo == AlgoSHA256 {
		return c, nil
	}
	_, sha, _, err := HashReader(content)
	if err != nil {
		return Checksum{}, err
	}
	return SHA256(sha), nil
}
