package orchestrator

import (
	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/pkgmodel"
)

// Confirmation selects how much the applicator asks before mutating the
// live system.
type Confirmation uint8

const (
	// ConfirmationNormal prompts per-batch (the Interactive applicator's
	// y/n/d/i loop).
	ConfirmationNormal Confirmation = iota
	// ConfirmationParanoid is parsed and reported as "paranoid"; the
	// konfigkoll apply command gives it the same per-batch Interactive
	// prompts as ConfirmationNormal, and per-file prompting is only
	// entered by answering 'i'.
	ConfirmationParanoid
	// ConfirmationDryRun never touches the filesystem or package
	// manager: filesystem instructions are only logged and the package
	// transaction is skipped.
	ConfirmationDryRun
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmationParanoid:
		return "paranoid"
	case ConfirmationDryRun:
		return "dry-run"
	default:
		return "normal"
	}
}

// ParseConfirmation parses the CLI flag value, defaulting to
// ConfirmationNormal for an empty string.
func ParseConfirmation(s string) (Confirmation, error) {
	switch s {
	case "", "normal":
		return ConfirmationNormal, nil
	case "paranoid":
		return ConfirmationParanoid, nil
	case "dry-run":
		return ConfirmationDryRun, nil
	default:
		return ConfirmationNormal, backend.ConfigurationError("unknown confirmation mode " + s)
	}
}

// defaultEarlyGlobs are applied before the package transaction, so that a
// package install reading /etc/passwd or /etc/group during postinst sees
// the script's intended state already.
var defaultEarlyGlobs = []string{"/etc/passwd", "/etc/group", "/etc/shadow", "/etc/gshadow"}

// defaultSensitiveGlobs are never written to disk by the save path, only
// logged: their live content must never end up verbatim in a script file
// or a files/ payload under the configuration directory.
var defaultSensitiveGlobs = []string{"/etc/shadow*", "/etc/gshadow*"}

// Settings is the driver-facing configuration surface a script (or a host
// embedding this module directly) populates during the SystemDiscovery
// phase: which backends are active and how the applicator should behave.
type Settings struct {
	ConfigPath string

	FileBackend     backend.Files
	PackageBackends map[pkgmodel.Backend]backend.Packages

	TrustMtime   bool
	Canonicalize bool
	Confirmation Confirmation

	IgnoreGlobs     []string
	EarlyGlobs      []string
	SensitiveGlobs  []string
	ForceDryRunFlag bool // --debug-force-dry-run
}

// NewSettings returns a Settings with the spec's default early/sensitive
// globs and an empty backend registry.
func NewSettings(configPath string) *Settings {
	return &Settings{
		ConfigPath:      configPath,
		PackageBackends: make(map[pkgmodel.Backend]backend.Packages),
		EarlyGlobs:      append([]string(nil), defaultEarlyGlobs...),
		SensitiveGlobs:  append([]string(nil), defaultSensitiveGlobs...),
	}
}

// SetFileBackend registers the single backend responsible for filesystem
// expectations. A second call is a [backend.ConfigurationError]: exactly
// one file backend may be active at a time.
func (s *Settings) SetFileBackend(f backend.Files) error {
	if s.FileBackend != nil {
		return backend.ConfigurationError("a file backend is already registered")
	}
	s.FileBackend = f
	return nil
}

// RegisterPackageBackend adds a package backend, keyed by its own Kind.
func (s *Settings) RegisterPackageBackend(p backend.Packages) {
	s.PackageBackends[p.Kind()] = p
}

// EffectiveConfirmation applies --debug-force-dry-run on top of whatever
// the script or CLI flag requested.
func (s *Settings) EffectiveConfirmation() Confirmation {
	if s.ForceDryRunFlag {
		return ConfirmationDryRun
	}
	return s.Confirmation
}
