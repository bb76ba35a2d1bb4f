// Package intern provides process-wide string interning for package names
// and architectures. Interned strings are reduced to 32-bit handles that are
// cheap to compare, hash, and sort; the backing string is only needed when
// rendering output.
package intern

import "sync"

// ID is an opaque handle to an interned string. The zero value is never
// produced by [Interner.Intern]; use it as a sentinel for "no value".
type ID uint32

// Interner deduplicates strings into stable [ID] handles.
//
// Every method takes the one mutex: lookups (String, Len) for the read, and
// insertion (Intern, by string) for the full read-modify-write.
type Interner struct {
	mu      sync.Mutex
	strings []string
	index   map[string]ID
}

// New returns an empty Interner. Construct one explicitly in tests; a
// long-running host process may instead keep a single package-level
// instance alive for its whole lifetime via [Global].
func New() *Interner {
	return &Interner{index: make(map[string]ID)}
}

// Intern returns the handle for s, allocating a new one if s has not been
// seen before. Safe for concurrent use.
func (in *Interner) Intern(s string) ID {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[s]; ok {
		return id
	}
	in.strings = append(in.strings, s)
	id := ID(len(in.strings)) // 1-based so the zero ID stays invalid.
	in.index[s] = id
	return id
}

// String resolves id back to its backing string; the zero ID resolves to
// "". Panics if id is beyond the last handle this Interner produced, which
// indicates a programming error (handles must never cross Interner
// instances); a foreign handle that happens to be in range is not detected.
func (in *Interner) String(id ID) string {
	if id == 0 {
		return ""
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if int(id) > len(in.strings) {
		panic("intern: handle from a different Interner")
	}
	return in.strings[id-1]
}

// Len reports how many distinct strings have been interned.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.strings)
}

var (
	globalOnce sync.Once
	global     *Interner
)

// Global returns a lazily-constructed, process-wide Interner. It exists for
// callers that genuinely want single-process, ambient interning (the CLI
// entry points); anything testable should take an *Interner explicitly
// instead of reaching for this.
func Global() *Interner {
	globalOnce.Do(func() { global = New() })
	return global
}
