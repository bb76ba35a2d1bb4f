package fsentry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseMode parses a mode in either BSD mtree's symbolic form
// ("u=rwx,g=rw,o=r") or plain octal ("644"), as found in pacman's mtree
// records and systemd-tmpfiles mode fields respectively.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("fsentry: empty mode")
	}
	if strings.ContainsAny(s, "=") {
		return parseSymbolicMode(s)
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("fsentry: invalid octal mode %q: %w", s, err)
	}
	return Mode(n), nil
}

// parseSymbolicMode parses "u=rwx,g=rw,o=r" style mode clauses. Each clause
// is a class (u/g/o) followed by '=' and any subset of "rwx"; a clause with
// no letters after '=' contributes no bits (e.g. "o=").
func parseSymbolicMode(s string) (Mode, error) {
	var mode Mode
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		eq := strings.IndexByte(clause, '=')
		if eq < 0 {
			return 0, fmt.Errorf("fsentry: invalid mode clause %q", clause)
		}
		class := clause[:eq]
		bits := clause[eq+1:]

		var shift uint
		switch class {
		case "u":
			shift = 6
		case "g":
			shift = 3
		case "o":
			shift = 0
		default:
			return 0, fmt.Errorf("fsentry: unknown mode class %q", class)
		}

		var v Mode
		for _, c := range bits {
			switch c {
			case 'r':
				v |= 4
			case 'w':
				v |= 2
			case 'x':
				v |= 1
			default:
				return 0, fmt.Errorf("fsentry: unknown mode bit %q in %q", c, clause)
			}
		}
		mode |= v << shift
	}
	return mode, nil
}
