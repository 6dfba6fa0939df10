package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestSandbox(t *testing.T) Sandbox {
	t.Helper()
	root := filepath.Join(t.TempDir(), "sandbox_w")
	if err := os.MkdirAll(root, 0o700); err != nil {
		t.Fatal(err)
	}
	sb, err := NewSandbox(root)
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	return sb
}

func TestResolve_AcceptsDescendants(t *testing.T) {
	sb := newTestSandbox(t)

	for _, candidate := range []string{
		"replicas/replica-001.txt",
		"tmp/x.tmp-1",
		filepath.Join(sb.Root(), "replicas", "replica-002.txt"),
	} {
		p, err := sb.Resolve(candidate)
		if err != nil {
			t.Fatalf("resolve %q: %v", candidate, err)
		}
		if !filepath.IsAbs(p.Abs()) {
			t.Fatalf("expected absolute path, got %q", p.Abs())
		}
		if filepath.IsAbs(p.Rel()) {
			t.Fatalf("expected relative form, got %q", p.Rel())
		}
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	sb := newTestSandbox(t)

	for _, candidate := range []string{
		"../../etc/passwd",
		"..",
		"replicas/../../outside.txt",
		"/etc/passwd",
		"",
	} {
		if _, err := sb.Resolve(candidate); !isErr(err, ErrUnsafePath) {
			t.Fatalf("resolve %q: expected ErrUnsafePath, got %v", candidate, err)
		}
	}
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	sb := newTestSandbox(t)

	outside := t.TempDir()
	link := filepath.Join(sb.Root(), "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := sb.Resolve("link/escape.txt"); !isErr(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath through symlink, got %v", err)
	}
	if _, err := sb.Resolve("link"); !isErr(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath for symlink itself, got %v", err)
	}
}

func TestResolve_AllowsNotYetExistingPaths(t *testing.T) {
	sb := newTestSandbox(t)

	p, err := sb.Resolve("replicas/not-created-yet/replica-001.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := p.Rel(); got != filepath.Join("replicas", "not-created-yet", "replica-001.txt") {
		t.Fatalf("unexpected rel path %q", got)
	}
}
