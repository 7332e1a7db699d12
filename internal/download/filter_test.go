package download

import "testing"

func TestAssetFilter(t *testing.T) {
	for _, tt := range []struct {
		name   string
		filter AssetFilter
		asset  string
		want   bool
	}{
		{"empty matches all", AssetFilter{}, "soar-x86_64-linux", true},
		{"regex", AssetFilter{Regex: `x86_64.*linux`}, "soar-x86_64-linux", true},
		{"regex miss", AssetFilter{Regex: `aarch64`}, "soar-x86_64-linux", false},
		{"glob", AssetFilter{Glob: "*.tar.gz"}, "soar.tar.gz", true},
		{"glob miss", AssetFilter{Glob: "*.zip"}, "soar.tar.gz", false},
		{"include", AssetFilter{Include: []string{"x86_64", "linux"}}, "soar-x86_64-linux", true},
		{"include miss", AssetFilter{Include: []string{"musl"}}, "soar-x86_64-linux", false},
		{"exclude", AssetFilter{Exclude: []string{"sum"}}, "soar.sha256sum", false},
		{"case-insensitive default", AssetFilter{Include: []string{"LINUX"}}, "soar-x86_64-linux", true},
		{"case-sensitive", AssetFilter{Include: []string{"LINUX"}, CaseSensitive: true}, "soar-x86_64-linux", false},
		{"combined", AssetFilter{Regex: `soar`, Glob: "*linux*", Exclude: []string{"tar"}}, "soar-x86_64-linux", true},
	} {
		got, err := tt.filter.Matches(tt.asset)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Matches(%q) = %v, want %v", tt.name, tt.asset, got, tt.want)
		}
	}
}

func TestAssetFilterBadRegex(t *testing.T) {
	f := AssetFilter{Regex: "("}
	if _, err := f.Matches("x"); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
