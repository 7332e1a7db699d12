package soar_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	soar "github.com/pkgforge/soar"
)

func TestParseProvide(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want soar.Provide
	}{
		{"rg", soar.Provide{Name: "rg"}},
		{"@rg", soar.Provide{Name: "rg", SymlinkToBin: true}},
		{"rg==ripgrep", soar.Provide{Name: "rg", Target: "ripgrep", Strategy: soar.KeepBoth}},
		{"rg=>ripgrep", soar.Provide{Name: "rg", Target: "ripgrep", Strategy: soar.KeepTargetOnly}},
		{"rg:ripgrep", soar.Provide{Name: "rg", Target: "ripgrep", Strategy: soar.Alias}},
		{"@rg=>ripgrep", soar.Provide{Name: "rg", Target: "ripgrep", Strategy: soar.KeepTargetOnly, SymlinkToBin: true}},
	} {
		got := soar.ParseProvide(tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseProvide(%q): diff (-want +got):\n%s", tt.in, diff)
		}
		if got.String() != tt.in {
			t.Errorf("ParseProvide(%q).String() = %q", tt.in, got.String())
		}
	}
}

func TestProvideLinkName(t *testing.T) {
	if got := soar.ParseProvide("rg==ripgrep").LinkName(); got != "ripgrep" {
		t.Errorf("LinkName = %q, want ripgrep", got)
	}
	if got := soar.ParseProvide("rg").LinkName(); got != "" {
		t.Errorf("LinkName = %q, want empty", got)
	}
}
