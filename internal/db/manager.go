package db

import (
	"os"
	"sync"
)

// Manager aggregates one catalog handle per enabled repository,
// in registration order. It is the fan-out point for the metadata plane;
// callers never address repos by index.
type Manager struct {
	mu    sync.Mutex
	order []string
	repos map[string]*Metadata
}

// RepoRef names one repository catalog on disk.
type RepoRef struct {
	Name string
	Path string
}

// NewManager opens each repository catalog that exists on disk. A missing
// catalog (never synced) is skipped, not an error.
func NewManager(repos []RepoRef) (*Manager, error) {
	m := &Manager{repos: make(map[string]*Metadata)}
	for _, r := range repos {
		if _, err := os.Stat(r.Path); err != nil {
			continue
		}
		md, err := OpenMetadata(r.Name, r.Path)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.order = append(m.order, r.Name)
		m.repos[r.Name] = md
	}
	return m, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, md := range m.repos {
		if err := md.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.repos = make(map[string]*Metadata)
	m.order = nil
	return first
}

// RepoNames returns the registration order.
func (m *Manager) RepoNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// QueryRepo runs f against one repository's catalog.
func (m *Manager) QueryRepo(name string, f RemoteFilter) ([]*RemotePackage, error) {
	m.mu.Lock()
	md, ok := m.repos[name]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return md.FindFiltered(f)
}

// QueryAllFlat concatenates per-repo results in registration order.
func (m *Manager) QueryAllFlat(f RemoteFilter) ([]*RemotePackage, error) {
	var out []*RemotePackage
	for _, name := range m.RepoNames() {
		pkgs, err := m.QueryRepo(name, f)
		if err != nil {
			return nil, err
		}
		out = append(out, pkgs...)
	}
	return out, nil
}

// FindFirst returns the first match in registration order, or nil.
func (m *Manager) FindFirst(f RemoteFilter) (*RemotePackage, error) {
	for _, name := range m.RepoNames() {
		f := f
		f.Limit = 1
		pkgs, err := m.QueryRepo(name, f)
		if err != nil {
			return nil, err
		}
		if len(pkgs) > 0 {
			return pkgs[0], nil
		}
	}
	return nil, nil
}

// Repo exposes one catalog handle (for maintainers, counts).
func (m *Manager) Repo(name string) *Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repos[name]
}
