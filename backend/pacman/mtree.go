package pacman

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// MtreeRecord is one parsed BSD mtree entry: a path plus whichever
// keyword=value pairs applied to it (after folding in the active `/set`
// defaults). Kept independent of the pacman-specific consumer below, so
// the tokenizer has no pacman knowledge baked in.
type MtreeRecord struct {
	Path   string
	Type   string // "file", "dir", "link", "fifo", "char", "block"
	Mode   string
	UID    string
	GID    string
	Size   *int64
	Time   string
	SHA256 string
	MD5    string
	Link   string // symlink target, type=link
}

// ParseMtree parses a decompressed BSD mtree stream: `/set` default blocks,
// relative path entries, `..` to pop back up a directory level, and
// `\NNN` octal escapes in path names. A name containing "/" (pacman's
// "./usr/bin/foo" form) is a full path from the root and does not change
// the current directory.
func ParseMtree(r io.Reader) ([]MtreeRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	defaults := make(map[string]string)
	var stack []string
	var out []MtreeRecord

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "/set":
			for _, kv := range fields[1:] {
				k, v, ok := splitKV(kv)
				if ok {
					defaults[k] = v
				}
			}
			continue
		case "/unset":
			for _, k := range fields[1:] {
				delete(defaults, k)
			}
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		name := unescapeMtree(fields[0])
		kv := make(map[string]string, len(defaults)+len(fields)-1)
		for k, v := range defaults {
			kv[k] = v
		}
		for _, tok := range fields[1:] {
			k, v, ok := splitKV(tok)
			if ok {
				kv[k] = v
			}
		}

		full := strings.Contains(name, "/")
		path := "/" + strings.Join(stack, "/")
		if full {
			path = "/" + strings.TrimPrefix(name, "./")
		} else if name != "." {
			if len(stack) > 0 {
				path = path + "/" + name
			} else {
				path = "/" + name
			}
		}
		path = strings.ReplaceAll(path, "//", "/")

		rec := MtreeRecord{
			Path:   path,
			Type:   kv["type"],
			Mode:   kv["mode"],
			UID:    kv["uid"],
			GID:    kv["gid"],
			Time:   kv["time"],
			SHA256: kv["sha256digest"],
			MD5:    kv["md5digest"],
			Link:   unescapeMtree(kv["link"]),
		}
		if sz, ok := kv["size"]; ok {
			if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
				rec.Size = &n
			}
		}
		if name != "." {
			out = append(out, rec)
		}

		if rec.Type == "dir" && name != "." && !full {
			stack = append(stack, name)
		}
	}
	return out, sc.Err()
}

func splitKV(s string) (key, value string, ok bool) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// unescapeMtree decodes "\NNN" octal byte escapes used for spaces and other
// special characters in mtree path/link fields.
func unescapeMtree(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
