package lock_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgforge/soar/internal/lock"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "soarlock")
	if err != nil {
		panic(err)
	}
	os.Setenv("XDG_RUNTIME_DIR", dir)
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestAcquireRelease(t *testing.T) {
	l, err := lock.Acquire("curl")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
	// Re-acquirable after release.
	l, err = lock.Acquire("curl")
	if err != nil {
		t.Fatal(err)
	}
	l.Unlock()
}

func TestTryAcquireBusy(t *testing.T) {
	l, err := lock.Acquire("busy-pkg")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Unlock()
	// flock is per-fd, so a second handle in the same process still
	// conflicts.
	if _, err := lock.TryAcquire("busy-pkg"); err != lock.ErrBusy {
		t.Fatalf("TryAcquire = %v, want ErrBusy", err)
	}
}

func TestSanitizedNames(t *testing.T) {
	l, err := lock.Acquire("repo/pkg id:weird")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Unlock()
	dir := filepath.Join(os.Getenv("XDG_RUNTIME_DIR"), "soar", "locks")
	if _, err := os.Stat(filepath.Join(dir, "repo_pkg_id_weird.lock")); err != nil {
		t.Fatalf("sanitized lock file missing: %v", err)
	}
}

func TestUnlockNil(t *testing.T) {
	var l *lock.Lock
	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
}
