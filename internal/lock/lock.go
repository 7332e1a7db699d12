// Package lock provides per-resource exclusive advisory file locks under
// $XDG_RUNTIME_DIR/soar/locks (falling back to /tmp).
package lock

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/config"
)

// ErrBusy is returned by TryAcquire when another process holds the lock.
var ErrBusy = xerrors.New("resource is locked by another process")

// Lock is a held advisory lock. Release it with Unlock.
type Lock struct {
	f *os.File
}

func lockDir() string {
	return filepath.Join(config.RuntimeDir(), "soar", "locks")
}

// sanitize maps a resource name onto [A-Za-z0-9._-].
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}

func open(name string) (*os.File, error) {
	dir := lockDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, sanitize(name)+".lock"), os.O_CREATE|os.O_RDWR, 0644)
}

// Acquire blocks until the named resource lock is held.
func Acquire(name string) (*Lock, error) {
	f, err := open(name)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, xerrors.Errorf("locking %s: %w", name, err)
	}
	return &Lock{f: f}, nil
}

// TryAcquire returns ErrBusy instead of blocking.
func TryAcquire(name string) (*Lock, error) {
	f, err := open(name)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrBusy
		}
		return nil, xerrors.Errorf("locking %s: %w", name, err)
	}
	return &Lock{f: f}, nil
}

// Unlock releases the lock. Safe to call on a nil receiver.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
