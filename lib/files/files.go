// Package files implements create/read/update/delete of files and directories
// confined to a single served root.
package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/onkernel/workspace-companion/lib/pathguard"
	"github.com/onkernel/workspace-companion/lib/sniff"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRootMutation   = errors.New("operation not permitted on the served root")
	ErrInvalidContent = errors.New("content is not valid base64")
	ErrTooLarge       = errors.New("file exceeds read limit")
)

type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Entry describes one child of a listed directory.
type Entry struct {
	Name         string    `json:"name"`
	Kind         Kind      `json:"type"`
	Size         *int64    `json:"size,omitempty"`
	ModifiedAt   time.Time `json:"modified"`
	Path         string    `json:"path"`
	AbsolutePath string    `json:"-"`
}

// Content is the result of Read. Exactly one of Entries (directories) or
// Data (files) is meaningful, selected by Kind.
type Content struct {
	Kind       Kind
	Path       string
	Entries    []Entry
	Data       string
	Binary     bool
	Size       int64
	ModifiedAt time.Time
}

// Store performs file operations under a canonical root.
type Store struct {
	root         string
	maxReadBytes int64
}

// New canonicalizes root once; every operation resolves against that value.
// maxReadBytes <= 0 disables the read limit.
func New(root string, maxReadBytes int64) (*Store, error) {
	canonical, err := pathguard.Canonical(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: canonical, maxReadBytes: maxReadBytes}, nil
}

func (s *Store) Root() string { return s.root }

// Resolve maps a client path to an absolute path inside the root.
func (s *Store) Resolve(rel string) (string, error) {
	return pathguard.Resolve(s.root, rel)
}

// List returns the immediate children of the directory at rel, directories first and
// then files, each group sorted by name. Children that cannot be stat'ed are skipped.
func (s *Store) List(rel string) ([]Entry, error) {
	dir, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return s.list(dir)
}

func (s *Store) list(dir string) ([]Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, mapErr(err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		abs := filepath.Join(dir, d.Name())
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		entries = append(entries, s.entry(abs, info))
	}
	SortEntries(entries)
	return entries, nil
}

func (s *Store) entry(abs string, info fs.FileInfo) Entry {
	e := Entry{
		Name:         info.Name(),
		Kind:         KindFile,
		ModifiedAt:   info.ModTime(),
		Path:         pathguard.Relative(s.root, abs),
		AbsolutePath: abs,
	}
	if info.IsDir() {
		e.Kind = KindDirectory
	} else {
		e.Size = lo.ToPtr(info.Size())
	}
	return e
}

// SortEntries orders directories before files, then by byte-wise name.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == KindDirectory
		}
		return entries[i].Name < entries[j].Name
	})
}

// Read returns a directory listing or file content. Text files come back as a string,
// binary files (see sniff.Classify) base64-encoded.
func (s *Store) Read(rel string) (*Content, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, mapErr(err)
	}
	c := &Content{Path: pathguard.Relative(s.root, abs), ModifiedAt: info.ModTime()}
	if info.IsDir() {
		entries, err := s.list(abs)
		if err != nil {
			return nil, err
		}
		c.Kind = KindDirectory
		c.Entries = entries
		return c, nil
	}

	if s.maxReadBytes > 0 && info.Size() > s.maxReadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	class := sniff.Classify(abs)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, mapErr(err)
	}
	c.Kind = KindFile
	c.Size = int64(len(data))
	c.Binary = class == sniff.Binary
	if c.Binary {
		c.Data = base64.StdEncoding.EncodeToString(data)
	} else {
		c.Data = string(data)
	}
	return c, nil
}

// Create makes a directory (with parents) or writes a file, creating parent
// directories as needed. Existing targets are overwritten.
func (s *Store) Create(rel string, kind Kind, content string, binary bool) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if kind == KindDirectory {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return mapErr(err)
		}
		return nil
	}
	if abs == s.root {
		return ErrRootMutation
	}
	data, err := decode(content, binary)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return mapErr(err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return mapErr(err)
	}
	return nil
}

// Update overwrites the file at rel. Parent directories are not created.
func (s *Store) Update(rel string, content string, binary bool) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if abs == s.root {
		return ErrRootMutation
	}
	data, err := decode(content, binary)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Delete removes a file, or a directory recursively. A symlink is removed as a single
// entry; its target is left alone.
func (s *Store) Delete(rel string) error {
	abs, err := pathguard.ResolveNoFollow(s.root, rel)
	if err != nil {
		return err
	}
	if abs == s.root {
		return ErrRootMutation
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return mapErr(err)
	}
	if info.IsDir() {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func decode(content string, binary bool) ([]byte, error) {
	if !binary {
		return []byte(content), nil
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return data, nil
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
