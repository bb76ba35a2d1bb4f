package render

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// DiffCommand is the external diff invoked to compare expected against
// live file content; overridable for testing or to switch to e.g. delta.
var DiffCommand = []string{"diff", "-u"}

// PagerCommand is the external pager invoked on rendered diff output.
// Empty means "print directly to stdout, no pager".
var PagerCommand = []string{}

// FileDiff shells out to [DiffCommand] over two temp files holding want and
// got, labelling the hunks with path. diff's exit status 1 ("differences
// found") is not an error; only exit status >1 or a spawn failure is.
func FileDiff(path string, want, got []byte) (string, error) {
	wantFile, err := os.CreateTemp("", "syskoll-diff-want-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(wantFile.Name())
	defer wantFile.Close()
	if _, err := wantFile.Write(want); err != nil {
		return "", err
	}

	gotFile, err := os.CreateTemp("", "syskoll-diff-got-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(gotFile.Name())
	defer gotFile.Close()
	if _, err := gotFile.Write(got); err != nil {
		return "", err
	}

	args := append(append([]string{}, DiffCommand[1:]...),
		"--label", path+" (expected)", wantFile.Name(),
		"--label", path+" (actual)", gotFile.Name())
	cmd := exec.Command(DiffCommand[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() == 1 {
			return out.String(), nil
		}
		return out.String(), fmt.Errorf("diff %s: %w: %s", path, err, out.String())
	}
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", path, err)
	}
	return out.String(), nil
}

// Page writes text to [PagerCommand]'s stdin, falling back to a plain
// write to out when no pager is configured (e.g. non-interactive runs).
func Page(out io.Writer, text string) error {
	if len(PagerCommand) == 0 {
		_, err := io.WriteString(out, text)
		return err
	}
	cmd := exec.Command(PagerCommand[0], PagerCommand[1:]...)
	cmd.Stdin = bytes.NewBufferString(text)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
