package download

import (
	"path"
	"regexp"
	"strings"
)

// AssetFilter narrows release assets by a combination of regex, glob,
// include and exclude keywords.
type AssetFilter struct {
	Regex         string
	Glob          string
	Include       []string
	Exclude       []string
	CaseSensitive bool
}

// Matches reports whether the asset name survives every configured
// criterion.
func (f *AssetFilter) Matches(assetName string) (bool, error) {
	name := assetName
	if !f.CaseSensitive {
		name = strings.ToLower(name)
	}
	if f.Regex != "" {
		pat := f.Regex
		if !f.CaseSensitive {
			pat = "(?i)" + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return false, err
		}
		if !re.MatchString(assetName) {
			return false, nil
		}
	}
	if f.Glob != "" {
		glob := f.Glob
		if !f.CaseSensitive {
			glob = strings.ToLower(glob)
		}
		ok, err := path.Match(glob, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	for _, kw := range f.Include {
		if !f.CaseSensitive {
			kw = strings.ToLower(kw)
		}
		if !strings.Contains(name, kw) {
			return false, nil
		}
	}
	for _, kw := range f.Exclude {
		if !f.CaseSensitive {
			kw = strings.ToLower(kw)
		}
		if strings.Contains(name, kw) {
			return false, nil
		}
	}
	return true, nil
}
