package fsutil

import (
	"path"
	"strings"
)

// SigVariants widens each pattern so that `p` also covers `p.sig`,
// preserving a leading `!` negation.
func SigVariants(patterns []string) []string {
	out := make([]string, 0, len(patterns)*2)
	for _, p := range patterns {
		neg := ""
		if strings.HasPrefix(p, "!") {
			neg, p = "!", p[1:]
		}
		out = append(out, neg+p, neg+p+".sig")
	}
	return out
}

// MatchesPatterns applies an ordered allow/deny glob list to name.
// Patterns prefixed with `!` deny; a name is kept when it matches at least
// one allow pattern (or no allow patterns exist) and matches no deny
// pattern.
func MatchesPatterns(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	hasAllow := false
	allowed := false
	for _, p := range patterns {
		if deny, ok := strings.CutPrefix(p, "!"); ok {
			if ok, _ := path.Match(deny, name); ok {
				return false
			}
			continue
		}
		hasAllow = true
		if ok, _ := path.Match(p, name); ok {
			allowed = true
		}
	}
	return !hasAllow || allowed
}
