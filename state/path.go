package state

import "path/filepath"

// ancestors returns every ancestor directory of path, from its immediate
// parent up to and including "/" (leaf-to-root order). HasAllAncestors only
// needs set membership; materializeAncestors goes through
// ancestorsRootFirst for root-first order.
func ancestors(path string) []string {
	var out []string
	for p := filepath.Dir(path); ; p = filepath.Dir(p) {
		out = append(out, p)
		if p == "/" {
			break
		}
	}
	return out
}

// ancestorsRootFirst is like ancestors but ordered from "/" down to the
// immediate parent, the order materialization must insert in so that a
// later diff pass naturally emits parent directories before children.
func ancestorsRootFirst(path string) []string {
	a := ancestors(path)
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
	return a
}
