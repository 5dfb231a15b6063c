// Package pathguard confines client supplied paths to a single served root directory.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a path resolves outside the served root.
var ErrPathEscape = errors.New("path escapes served root")

// Canonical returns the absolute, symlink-resolved form of dir. dir must exist and be a directory.
func Canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %q is not a directory", resolved)
	}
	return resolved, nil
}

// Resolve joins rel onto root and returns the canonical absolute path, or ErrPathEscape
// when the result leaves root. root must already be canonical (see Canonical).
//
// The target does not need to exist: symlinks are evaluated on the deepest existing
// ancestor and the remaining components are appended unchanged.
func Resolve(root, rel string) (string, error) {
	joined := filepath.Join(root, filepath.FromSlash(rel))
	resolved, err := evalExisting(joined)
	if err != nil {
		return "", err
	}
	if !Within(root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return resolved, nil
}

// ResolveNoFollow is Resolve without evaluating the final path component, so a symlink
// named by rel is returned as itself rather than as its target. Containment is checked
// on the resolved parent.
func ResolveNoFollow(root, rel string) (string, error) {
	joined := filepath.Join(root, filepath.FromSlash(rel))
	if joined == root {
		return root, nil
	}
	parent, err := evalExisting(filepath.Dir(joined))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(parent, filepath.Base(joined))
	if !Within(root, parent) || !Within(root, resolved) || resolved == root {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return resolved, nil
}

// Within reports whether p is root or lies beneath it. The comparison is per path
// component, so /srv/app-secret is not within /srv/app.
func Within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// Relative returns p relative to root using forward slashes. The root itself maps to "".
func Relative(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func evalExisting(p string) (string, error) {
	var suffix []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, suffix...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("resolve %q: %w", p, err)
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
	}
}
