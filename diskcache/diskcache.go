// Package diskcache provides two write-through, TTL-bounded on-disk
// caches: one for pristine package-archive file bytes, one for a package
// archive's full file-entry listing. Both
// live under a caller-chosen root directory (conventionally the user cache
// directory) and key entries by backend name, a cache-version the owning
// backend controls, and package/path identity, so a schema change in a
// backend's output invalidates exactly its own prior entries.
package diskcache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"
)

// entryMeta is the YAML sidecar written next to every cached value. It
// carries only what's needed to decide whether an entry is still live;
// the key itself is reconstructible from the caller's lookup, so it isn't
// duplicated here.
type entryMeta struct {
	StoredAtUnix int64 `yaml:"stored_at_unix"`
}

// expired reports whether an entry stored at meta.StoredAtUnix has outlived
// ttl as of now.
func (m entryMeta) expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(time.Unix(m.StoredAtUnix, 0)) > ttl
}

// hashKey condenses an ordered list of key components into a filesystem-safe
// filename: long package identifiers and arbitrary filesystem paths both
// appear as cache keys, neither of which is safe to use as a path
// component directly.
func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// readMeta loads and parses the sidecar metadata file for a cache entry. A
// missing sidecar is reported as os.ErrNotExist so callers can treat it the
// same as a missing value file.
func readMeta(path string) (entryMeta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return entryMeta{}, err
	}
	var m entryMeta
	if err := yaml.Unmarshal(b, &m); err != nil {
		return entryMeta{}, err
	}
	return m, nil
}

// writeAtomic writes data to path by first writing to a uniquely-named
// temp file in the same directory, then renaming it into place, so a
// reader never observes a partially-written cache entry and concurrent
// writers never collide on the temp name.
func writeAtomic(dir, finalName string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, finalName+".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, finalName))
}

// yamlMarshalMeta serialises an entryMeta sidecar.
func yamlMarshalMeta(m entryMeta) ([]byte, error) {
	return yaml.Marshal(m)
}

// itoa renders a cache-version for inclusion in a hashed key.
func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
