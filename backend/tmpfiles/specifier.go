//go:build linux

package tmpfiles

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Resolver expands systemd-style "%x" specifiers in a tmpfiles.d path or
// argument field. Kept as an interface (rather than a free function
// reading the live system directly) so tests can substitute fixed values
// without touching /etc or /proc.
type Resolver interface {
	Resolve(input string) string
}

// SystemResolver reads the conventional host sources
// (/etc/os-release, uname, /etc/machine-id, boot_id, $TMPDIR) once at
// construction time and answers specifier lookups from that snapshot.
type SystemResolver struct {
	values map[byte]string
}

// NewSystemResolver builds a resolver from the live system. Missing sources
// degrade to an empty string for the specifiers they would have populated,
// tolerating a non-systemd host.
func NewSystemResolver() *SystemResolver {
	osRelease := parseOSRelease("/etc/os-release")

	var uts unix.Utsname
	_ = unix.Uname(&uts)

	machineID := strings.TrimSpace(readFileOrEmpty("/etc/machine-id"))
	bootID := strings.TrimSpace(readFileOrEmpty("/proc/sys/kernel/random/boot_id"))

	tmpDir := firstEnv("TMPDIR", "TMP", "TEMP")
	if tmpDir == "" {
		tmpDir = "/tmp"
	}

	hostName := utsnameToString(uts.Nodename)
	kernelRelease := utsnameToString(uts.Release)
	arch := utsnameToString(uts.Machine)

	values := map[byte]string{
		'a': arch,
		'A': osRelease["IMAGE_VERSION"],
		'b': bootID,
		'B': osRelease["BUILD_ID"],
		'H': hostName,
		'l': firstDotComponent(hostName),
		'm': machineID,
		'M': osRelease["IMAGE_ID"],
		'o': osRelease["ID"],
		'T': tmpDir,
		'v': kernelRelease,
		'V': tmpDirOr(tmpDir, "/var/tmp"),
		'w': osRelease["VERSION_ID"],
		'W': osRelease["VARIANT_ID"],
		't': "/run",
		'S': "/var/lib",
		'L': "/var/log",
		'C': "/var/cache",
		'g': "root",
		'G': "0",
		'h': "/root",
		'u': "root",
		'U': "0",
	}
	return &SystemResolver{values: values}
}

// Resolve expands every "%x" token it recognises; unrecognised specifiers
// and a trailing lone "%" are left verbatim.
func (r *SystemResolver) Resolve(input string) string {
	if !strings.Contains(input, "%") {
		return input
	}
	var b strings.Builder
	for i := 0; i < len(input); i++ {
		if input[i] != '%' || i+1 >= len(input) {
			b.WriteByte(input[i])
			continue
		}
		c := input[i+1]
		if c == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		if v, ok := r.values[c]; ok {
			b.WriteString(v)
			i++
			continue
		}
		b.WriteByte(input[i])
	}
	return b.String()
}

func tmpDirOr(tmp, fallback string) string {
	if tmp != "/tmp" {
		return tmp
	}
	return fallback
}

func firstDotComponent(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func readFileOrEmpty(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func utsnameToString(field [65]byte) string {
	n := 0
	for n < len(field) && field[n] != 0 {
		n++
	}
	return string(field[:n])
}

// parseOSRelease parses /etc/os-release's "KEY=value" lines, tolerating
// double-quoted values, and returns an empty map if the file is absent.
func parseOSRelease(path string) map[string]string {
	out := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := line[:eq]
		val := strings.Trim(line[eq+1:], `"`)
		out[key] = val
	}
	return out
}
