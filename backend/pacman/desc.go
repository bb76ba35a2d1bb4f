// Package pacman implements the [backend.Files] and [backend.Packages]
// capabilities for Arch Linux's pacman.
package pacman

import (
	"bufio"
	"io"
	"strings"
)

// descEntry is the parsed form of a pacman `desc` file: lightweight
// key/value blocks introduced by a "%NAME%" header line and terminated by
// a blank line, values possibly spanning multiple lines.
type descEntry struct {
	Name        string
	Version     string
	Arch        string
	Description string
	Depends     []string
	Provides    []string
	Reason      string // "0" = explicit, "1" = dependency
}

// parseDesc parses one package's desc file.
func parseDesc(r io.Reader) (descEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var e descEntry
	var curField string
	var curValues []string

	flush := func() {
		if curField == "" {
			return
		}
		switch curField {
		case "NAME":
			e.Name = firstOrEmpty(curValues)
		case "VERSION":
			e.Version = firstOrEmpty(curValues)
		case "ARCH":
			e.Arch = firstOrEmpty(curValues)
		case "DESC":
			e.Description = firstOrEmpty(curValues)
		case "DEPENDS":
			e.Depends = append(e.Depends, curValues...)
		case "PROVIDES":
			e.Provides = append(e.Provides, curValues...)
		case "REASON":
			e.Reason = firstOrEmpty(curValues)
		}
		curField = ""
		curValues = nil
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			flush()
			curField = strings.Trim(line, "%")
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		curValues = append(curValues, line)
	}
	flush()
	return e, sc.Err()
}

func firstOrEmpty(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// stripDependVersion drops a pacman dependency's version constraint
// ("somelib=1.2.3" -> "somelib", also handling ">=", "<=").
func stripDependVersion(s string) string {
	for _, sep := range []string{">=", "<=", "==", "=", ">", "<"} {
		if i := strings.Index(s, sep); i >= 0 {
			return s[:i]
		}
	}
	return s
}

// parseFilesBackup parses a pacman `files` file's %BACKUP% section,
// returning the backup (conffile) paths.
func parseFilesBackup(r io.Reader) ([]string, error) {
	sections, err := parseFilesSections(r)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range sections["BACKUP"] {
		// "path hash" — only the path matters here.
		fields := strings.Fields(line)
		if len(fields) > 0 {
			out = append(out, "/"+strings.TrimPrefix(fields[0], "/"))
		}
	}
	return out, nil
}

// parseFilesList parses a pacman `files` file's %FILES% section, the full
// path inventory used for ownership queries.
func parseFilesList(r io.Reader) ([]string, error) {
	sections, err := parseFilesSections(r)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range sections["FILES"] {
		out = append(out, "/"+strings.TrimPrefix(line, "/"))
	}
	return out, nil
}

// parseFilesSections splits a pacman `files` file into its "%HEADER%"
// sections, mapping each header to its raw, non-blank body lines.
func parseFilesSections(r io.Reader) (map[string][]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	sections := make(map[string][]string)
	cur := ""
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			cur = strings.Trim(line, "%")
			continue
		}
		if cur == "" || strings.TrimSpace(line) == "" {
			continue
		}
		sections[cur] = append(sections[cur], line)
	}
	return sections, sc.Err()
}
