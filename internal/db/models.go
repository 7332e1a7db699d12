package db

import (
	"encoding/json"

	soar "github.com/pkgforge/soar"
)

// InstalledPackage is one core-plane row.
type InstalledPackage struct {
	ID            int64
	RepoName      string
	PkgID         string
	PkgName       string
	PkgType       string
	Version       string
	Size          int64
	Checksum      string
	InstalledPath string
	InstalledDate string
	Profile       string
	Pinned        bool
	IsInstalled   bool
	WithPkgID     bool
	Detached      bool
	Unlinked      bool
	Provides      []soar.Provide
	InstallPatterns []string
}

// Ref implements soar.Package.
func (p *InstalledPackage) Ref() soar.PackageRef {
	return soar.PackageRef{Name: p.PkgName, ID: p.PkgID, Version: p.Version, Repo: p.RepoName}
}

// RemotePackage is one metadata-plane row.
type RemotePackage struct {
	RepoName    string
	PkgID       string
	PkgName     string
	Pkg         string
	PkgType     string
	AppID       string
	Description string
	Version     string
	DownloadURL string
	Size        int64
	Bsum        string
	GhcrPkg     string
	GhcrSize    int64
	GhcrBlob    string
	GhcrURL     string
	Icon        string
	Desktop     string
	Appstream   string
	Homepages   []string
	Notes       []string
	SourceURLs  []string
	Tags        []string
	Categories  []string
	Licenses    []string
	Provides    []soar.Provide
	Snapshots   []string
	Replaces    []string
	BuildID     string
	BuildDate   string
	BuildAction string
	BuildScript string
	BuildLog    string
	SoarSyms           bool
	Deprecated         bool
	DesktopIntegration bool
	Portable           bool
	RecurseProvides    bool
}

// Ref implements soar.Package.
func (p *RemotePackage) Ref() soar.PackageRef {
	return soar.PackageRef{Name: p.PkgName, ID: p.PkgID, Version: p.Version, Repo: p.RepoName}
}

// PortablePackage holds the optional portable-directory overrides for one
// installed package.
type PortablePackage struct {
	PackageID      int64
	PortablePath   string
	PortableHome   string
	PortableConfig string
	PortableShare  string
	PortableCache  string
}

// Nest is one user-added repository.
type Nest struct {
	ID   int64
	Name string // without the nest- prefix; the database row carries it
	URL  string
}

func marshalJSON(v interface{}) interface{} {
	switch x := v.(type) {
	case []string:
		if len(x) == 0 {
			return nil
		}
	case []soar.Provide:
		if len(x) == 0 {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

func unmarshalStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func unmarshalProvides(raw []byte) []soar.Provide {
	if len(raw) == 0 {
		return nil
	}
	var out []soar.Provide
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	// Older catalogs carry provides as plain strings.
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil
	}
	out = make([]soar.Provide, 0, len(strs))
	for _, s := range strs {
		out = append(out, soar.ParseProvide(s))
	}
	return out
}
