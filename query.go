package soar

import (
	"regexp"
	"strings"
)

// queryRe matches `name#pkg_id@version:repo` where every component is
// optional syntactically; semantic checks happen in ParseQuery.
var queryRe = regexp.MustCompile(`^([^/#@:]+)?(?:#([^@:]+))?(?:@([^:]+))?(?::([^:]+))?$`)

// Query is a parsed package query string.
type Query struct {
	Name     string
	PkgID    string
	Version  string
	RepoName string
}

// ParseQuery parses a query of the form `name#pkg_id@version:repo`. The
// input is trimmed and lowercased first. At least one of name or pkg_id is
// required, and `#all` needs an accompanying name.
func ParseQuery(s string) (*Query, error) {
	q := strings.ToLower(strings.TrimSpace(s))
	if q == "" {
		return nil, &InvalidQueryError{Query: s, Reason: "query can't be empty"}
	}
	m := queryRe.FindStringSubmatch(q)
	if m == nil {
		return nil, &InvalidQueryError{Query: s, Reason: "unrecognized format"}
	}
	pq := &Query{
		Name:     m[1],
		PkgID:    m[2],
		Version:  m[3],
		RepoName: m[4],
	}
	if pq.Name == "" && pq.PkgID == "" {
		return nil, &InvalidQueryError{Query: s, Reason: "either name or pkg_id is required"}
	}
	if pq.PkgID == "all" && pq.Name == "" {
		return nil, &InvalidQueryError{Query: s, Reason: "pkg_id \"all\" requires a package name"}
	}
	return pq, nil
}

// String renders the query back into canonical `name#pkg_id@version:repo`
// form, omitting empty components. Parsing the result yields an equal Query.
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.Name)
	if q.PkgID != "" {
		sb.WriteByte('#')
		sb.WriteString(q.PkgID)
	}
	if q.Version != "" {
		sb.WriteByte('@')
		sb.WriteString(q.Version)
	}
	if q.RepoName != "" {
		sb.WriteByte(':')
		sb.WriteString(q.RepoName)
	}
	return sb.String()
}

// WantsAllVariants reports whether the query asks for every installed
// variant of a name (`name#all`).
func (q *Query) WantsAllVariants() bool {
	return q.PkgID == "all" && q.Name != ""
}
