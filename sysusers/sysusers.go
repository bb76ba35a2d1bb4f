// Package sysusers parses systemd-sysusers.d directive files: lines that
// declare a user, a group, a group membership, or a UID/GID allocation
// range.
package sysusers

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DirectiveKind discriminates which of the four sysusers.d line shapes a
// [Directive] carries.
type DirectiveKind uint8

const (
	KindUser DirectiveKind = iota
	KindGroup
	KindAddToGroup
	KindRange
)

// IDKind distinguishes the five shapes a user/group ID field can take:
// absent, a bare uid, "uid:gid", "uid:groupname", or a path whose owner's
// uid is reused.
type IDKind uint8

const (
	IDNone IDKind = iota
	IDUid
	IDUidGid
	IDUidGroupName
	IDFromPath
)

// ID is a parsed "id" field from a 'u' or 'g' line.
type ID struct {
	Kind      IDKind
	Uid       uint32
	Gid       uint32
	GroupName string
	Path      string
}

// Directive is one parsed, non-comment, non-blank sysusers.d line.
type Directive struct {
	Kind DirectiveKind

	// KindUser / KindGroup
	Name  string
	ID    ID
	Gecos string // KindUser only
	Home  string // KindUser only
	Shell string // KindUser only

	// KindAddToGroup
	User  string
	Group string

	// KindRange
	RangeLo uint32
	RangeHi uint32
}

// ParseFile parses a whole sysusers.d file, skipping comments and blank
// lines.
func ParseFile(r io.Reader) ([]Directive, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var out []Directive
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("sysusers: %w", err)
		}
		out = append(out, d)
	}
	return out, sc.Err()
}

func parseLine(line string) (Directive, error) {
	fields, err := tokenizeFields(line)
	if err != nil {
		return Directive{}, err
	}
	if len(fields) == 0 {
		return Directive{}, fmt.Errorf("empty directive")
	}

	switch fields[0] {
	case "u":
		return parseUser(fields)
	case "g":
		return parseGroup(fields)
	case "m":
		return parseAddToGroup(fields)
	case "r":
		return parseRange(fields)
	default:
		return Directive{}, fmt.Errorf("unknown directive type %q", fields[0])
	}
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return "-"
}

func parseUser(fields []string) (Directive, error) {
	if len(fields) < 2 {
		return Directive{}, fmt.Errorf("'u' directive: missing name")
	}
	id, err := parseID(field(fields, 2))
	if err != nil {
		return Directive{}, err
	}
	return Directive{
		Kind:  KindUser,
		Name:  fields[1],
		ID:    id,
		Gecos: optional(field(fields, 3)),
		Home:  optional(field(fields, 4)),
		Shell: optional(field(fields, 5)),
	}, nil
}

func parseGroup(fields []string) (Directive, error) {
	if len(fields) < 2 {
		return Directive{}, fmt.Errorf("'g' directive: missing name")
	}
	id, err := parseGroupID(field(fields, 2))
	if err != nil {
		return Directive{}, err
	}
	return Directive{Kind: KindGroup, Name: fields[1], ID: id}, nil
}

func parseAddToGroup(fields []string) (Directive, error) {
	if len(fields) < 3 {
		return Directive{}, fmt.Errorf("'m' directive: expected user and group")
	}
	return Directive{Kind: KindAddToGroup, User: fields[1], Group: fields[2]}, nil
}

func parseRange(fields []string) (Directive, error) {
	if len(fields) < 3 {
		return Directive{}, fmt.Errorf("'r' directive: expected a range")
	}
	lo, hi, ok := strings.Cut(fields[2], "-")
	if !ok {
		return Directive{}, fmt.Errorf("'r' directive: malformed range %q", fields[2])
	}
	loN, err := strconv.ParseUint(lo, 10, 32)
	if err != nil {
		return Directive{}, err
	}
	hiN, err := strconv.ParseUint(hi, 10, 32)
	if err != nil {
		return Directive{}, err
	}
	return Directive{Kind: KindRange, RangeLo: uint32(loN), RangeHi: uint32(hiN)}, nil
}

func optional(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// parseID parses a 'u' line's id field: "-", a bare uid, "uid:gid",
// "uid:groupname", or a path.
func parseID(s string) (ID, error) {
	if s == "-" {
		return ID{Kind: IDNone}, nil
	}
	if uid, gidPart, ok := strings.Cut(s, ":"); ok {
		uidN, err := strconv.ParseUint(uid, 10, 32)
		if err != nil {
			return ID{}, fmt.Errorf("invalid uid %q: %w", uid, err)
		}
		if gidN, err := strconv.ParseUint(gidPart, 10, 32); err == nil {
			return ID{Kind: IDUidGid, Uid: uint32(uidN), Gid: uint32(gidN)}, nil
		}
		return ID{Kind: IDUidGroupName, Uid: uint32(uidN), GroupName: gidPart}, nil
	}
	if uidN, err := strconv.ParseUint(s, 10, 32); err == nil {
		return ID{Kind: IDUid, Uid: uint32(uidN)}, nil
	}
	return ID{Kind: IDFromPath, Path: s}, nil
}

// parseGroupID parses a 'g' line's id field: "-", a bare gid, or a path.
func parseGroupID(s string) (ID, error) {
	if s == "-" {
		return ID{Kind: IDNone}, nil
	}
	if gidN, err := strconv.ParseUint(s, 10, 32); err == nil {
		return ID{Kind: IDUid, Uid: uint32(gidN)}, nil
	}
	return ID{Kind: IDFromPath, Path: s}, nil
}

// tokenizeFields splits a sysusers.d line into whitespace-delimited
// fields, honouring double- and single-quoted strings with backslash
// escapes, matching the quoting sysusers.d shares with tmpfiles.d.
func tokenizeFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	haveField := false
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				continue
			}
			if c == '\\' && i+1 < len(line) {
				cur.WriteByte(line[i+1])
				i++
				continue
			}
			cur.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			haveField = true
		case c == ' ' || c == '\t':
			if haveField {
				fields = append(fields, cur.String())
				cur.Reset()
				haveField = false
			}
		default:
			cur.WriteByte(c)
			haveField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if haveField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
