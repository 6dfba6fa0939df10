package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Fixed relative paths under the sandbox root.
const (
	lockFileName     = "wormsim.lock"
	journalFileName  = "journal.jsonl"
	stopFileName     = "STOP"
	manifestFileName = "manifest.json"
	tmpDirName       = "tmp"
	logFileName      = "wormsim.log"
	transmissionsLog = "transmissions.jsonl"
)

// SafePath is a path proven to resolve inside the sandbox root. The zero
// value is not safe; obtain one through Sandbox.Resolve.
type SafePath struct {
	abs string
	rel string
}

// Abs returns the absolute, cleaned form of the path.
func (p SafePath) Abs() string { return p.abs }

// Rel returns the path relative to the sandbox root. Journal entries store
// this form so a relocated sandbox still replays.
func (p SafePath) Rel() string { return p.rel }

// Sandbox is the directory boundary all engine operations are confined to.
type Sandbox struct {
	root string
}

// NewSandbox canonicalizes root and returns the sandbox boundary. The
// directory does not have to exist yet; if it does, symlinks in the root
// itself are resolved so containment checks compare canonical forms.
func NewSandbox(root string) (Sandbox, error) {
	if root == "" {
		return Sandbox{}, errors.New("sandbox root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Sandbox{}, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return Sandbox{root: filepath.Clean(abs)}, nil
}

func (s Sandbox) Root() string { return s.root }

func (s Sandbox) LockPath() string      { return filepath.Join(s.root, lockFileName) }
func (s Sandbox) JournalPath() string   { return filepath.Join(s.root, journalFileName) }
func (s Sandbox) StopPath() string      { return filepath.Join(s.root, stopFileName) }
func (s Sandbox) ManifestPath() string  { return filepath.Join(s.root, manifestFileName) }
func (s Sandbox) TmpDir() string        { return filepath.Join(s.root, tmpDirName) }
func (s Sandbox) LogPath() string       { return filepath.Join(s.root, logFileName) }
func (s Sandbox) TransmitPath() string  { return filepath.Join(s.root, transmissionsLog) }

// Exists reports whether the sandbox root directory is present.
func (s Sandbox) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// Resolve canonicalizes candidate and verifies it is a descendant of the
// sandbox root. Relative candidates are interpreted against the root.
// Symlink escapes are rejected: the deepest existing ancestor of the
// candidate is resolved before the containment check, so a link pointing
// outside the sandbox cannot smuggle a write out. Pure check, no side effects.
func (s Sandbox) Resolve(candidate string) (SafePath, error) {
	if candidate == "" {
		return SafePath{}, fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	p := candidate
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)

	if !s.contains(p) {
		return SafePath{}, fmt.Errorf("%w: %s escapes sandbox %s", ErrUnsafePath, candidate, s.root)
	}

	resolved, err := resolveExisting(p)
	if err != nil {
		return SafePath{}, fmt.Errorf("%w: %s: %v", ErrUnsafePath, candidate, err)
	}
	if !s.contains(resolved) {
		return SafePath{}, fmt.Errorf("%w: %s resolves outside sandbox via symlink", ErrUnsafePath, candidate)
	}

	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return SafePath{}, fmt.Errorf("%w: %s: %v", ErrUnsafePath, candidate, err)
	}
	return SafePath{abs: p, rel: rel}, nil
}

func (s Sandbox) contains(abs string) bool {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting resolves symlinks in the deepest existing ancestor of p and
// rejoins the non-existing remainder, so containment can be checked for paths
// that are about to be created.
func resolveExisting(p string) (string, error) {
	remainder := ""
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Join(cur, remainder), nil
		}
		remainder = filepath.Join(filepath.Base(cur), remainder)
		cur = parent
	}
}
