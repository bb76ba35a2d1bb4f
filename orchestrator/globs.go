package orchestrator

import "path/filepath"

// matchGlob wraps filepath.Match, treating a malformed pattern as "no
// match" rather than surfacing a syntax error to every caller.
func matchGlob(pattern, path string) (bool, error) {
	ok, err := filepath.Match(pattern, path)
	if err != nil {
		return false, nil
	}
	return ok, nil
}
