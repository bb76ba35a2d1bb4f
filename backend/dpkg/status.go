// Package dpkg implements the [backend.Files] and [backend.Packages]
// capabilities for Debian's dpkg/apt package manager.
package dpkg

import (
	"bufio"
	"io"
	"strings"
)

// statusEntry is one RFC-822-ish stanza from /var/lib/dpkg/status.
type statusEntry struct {
	Package      string
	Architecture string
	Version      string
	Description  string
	Status       string // "install ok installed", "deinstall ok config-files", ...
	Depends      string
	Provides     string
	Conffiles    []conffile
}

type conffile struct {
	Path     string
	MD5Hex   string
	obsolete bool // "newconffile"/"remove-on-upgrade" marker, only logged at debug level
}

// parseStatus parses the whole /var/lib/dpkg/status file, one stanza per
// blank-line-terminated block, RFC-822 "Key: value" fields with
// space-indented continuation lines.
func parseStatus(r io.Reader) ([]statusEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var entries []statusEntry
	var cur statusEntry
	var curKey string
	inConffiles := false
	hasEntry := false

	flush := func() {
		if hasEntry {
			entries = append(entries, cur)
		}
		cur = statusEntry{}
		hasEntry = false
		inConffiles = false
		curKey = ""
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if inConffiles {
				cur.Conffiles = append(cur.Conffiles, parseConffileLine(line))
			}
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val := strings.TrimSpace(line[idx+1:])
		curKey = key
		hasEntry = true
		inConffiles = key == "Conffiles"

		switch key {
		case "Package":
			cur.Package = val
		case "Architecture":
			cur.Architecture = val
		case "Version":
			cur.Version = val
		case "Description":
			cur.Description = val
		case "Status":
			cur.Status = val
		case "Depends":
			cur.Depends = val
		case "Provides":
			cur.Provides = val
		}
		_ = curKey
	}
	flush()
	return entries, sc.Err()
}

// parseConffileLine parses "  /etc/foo.conf <32-hex> [newconffile]". The
// trailing marker only sets obsolete; applyConffiles skips such entries and
// logs them at debug level.
func parseConffileLine(line string) conffile {
	fields := strings.Fields(line)
	cf := conffile{}
	if len(fields) > 0 {
		cf.Path = fields[0]
	}
	if len(fields) > 1 {
		cf.MD5Hex = fields[1]
	}
	if len(fields) > 2 {
		cf.obsolete = true
	}
	return cf
}

// extendedStateEntry is one stanza of /var/lib/apt/extended_states.
type extendedStateEntry struct {
	Package      string
	Architecture string
	AutoInstalled bool
}

func parseExtendedStates(r io.Reader) ([]extendedStateEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var out []extendedStateEntry
	var cur extendedStateEntry
	hasEntry := false

	flush := func() {
		if hasEntry {
			out = append(out, cur)
		}
		cur = extendedStateEntry{}
		hasEntry = false
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val := strings.TrimSpace(line[idx+1:])
		hasEntry = true
		switch key {
		case "Package":
			cur.Package = val
		case "Architecture":
			cur.Architecture = val
		case "Auto-Installed":
			cur.AutoInstalled = val == "1"
		}
	}
	flush()
	return out, sc.Err()
}

// splitDepends splits a dpkg Depends field into alternative groups ("a | b"
// within one requirement) separated by commas, stripping version
// constraints ("foo (>= 1.0)" -> "foo") and ":arch" qualifiers.
func splitDepends(field string) [][]string {
	if field == "" {
		return nil
	}
	var out [][]string
	for _, group := range strings.Split(field, ",") {
		var alts []string
		for _, alt := range strings.Split(group, "|") {
			alts = append(alts, stripDependDecoration(alt))
		}
		out = append(out, alts)
	}
	return out
}

func stripDependDecoration(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}
