// Package fs provides ports.FileSystem implementations: the local disk with
// advisory write locks, and an in-memory map for tests and embedding.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long WriteFile waits for another writer.
const DefaultLockTimeout = 5 * time.Second

// OS reads and writes the local file system. Relative paths are joined to Root
// when it is set.
type OS struct {
	Root        string
	LockTimeout time.Duration

	// Confined rejects absolute paths and paths that leave Root.
	Confined bool
}

// NewOS creates an OS file system rooted at root ("" for the working directory).
func NewOS(root string) *OS {
	return &OS{Root: root, LockTimeout: DefaultLockTimeout}
}

// NewConfined creates an OS file system that only reaches files below root.
// Used for paths that come from untrusted callers.
func NewConfined(root string) *OS {
	return &OS{Root: root, LockTimeout: DefaultLockTimeout, Confined: true}
}

func (o *OS) resolve(path string) (string, error) {
	if o.Confined {
		if !filepath.IsLocal(path) {
			return "", failure.InvalidFormat(path, "relative path inside the files root")
		}
		return filepath.Join(o.Root, path), nil
	}
	if o.Root == "" || filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join(o.Root, path), nil
}

// ReadTextFile returns the file content. A missing file is NotFound.
func (o *OS) ReadTextFile(path string) (string, error) {
	target, err := o.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", failure.NotFound("file", path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes content under an exclusive lock on "<path>.lock", creating
// parent directories. The content is written to a temp file and renamed into
// place. The lock file is left behind.
func (o *OS) WriteFile(path string, content []byte) error {
	target, err := o.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	lock := flock.New(target + ".lock")
	timeout := o.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring lock on %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timeout waiting for lock on %s", path)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing regular file.
func (o *OS) Exists(path string) bool {
	target, err := o.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && info.Mode().IsRegular()
}

var _ ports.FileSystem = (*OS)(nil)

// Memory is a map-backed file system. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates a memory file system holding files.
func NewMemory(files map[string]string) *Memory {
	m := &Memory{files: make(map[string][]byte, len(files))}
	for p, c := range files {
		m.files[filepath.Clean(p)] = []byte(c)
	}
	return m
}

func (m *Memory) ReadTextFile(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return "", failure.NotFound("file", path)
	}
	return string(data), nil
}

func (m *Memory) WriteFile(path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = append([]byte(nil), content...)
	return nil
}

func (m *Memory) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// Paths lists stored paths in sorted order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var _ ports.FileSystem = (*Memory)(nil)
