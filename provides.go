package soar

import "strings"

// ProvideStrategy describes how a provide entry maps onto bin symlinks.
type ProvideStrategy string

const (
	// KeepTargetOnly (`name=>target`): bin/target links to name.
	KeepTargetOnly ProvideStrategy = "KeepTargetOnly"
	// KeepBoth (`name==target`): bin/target links to name, as for
	// KeepTargetOnly; name gets a bin entry of its own only when it is the
	// package's primary binary.
	KeepBoth ProvideStrategy = "KeepBoth"
	// Alias (`name:target`): bin/target links to name, as an alias.
	Alias ProvideStrategy = "Alias"
)

// Operator returns the spelling used in provide strings.
func (s ProvideStrategy) Operator() string {
	switch s {
	case KeepTargetOnly:
		return "=>"
	case KeepBoth:
		return "=="
	case Alias:
		return ":"
	}
	return ""
}

// Provide is a secondary name a package offers on PATH.
type Provide struct {
	Name         string          `json:"name"`
	Target       string          `json:"target,omitempty"`
	Strategy     ProvideStrategy `json:"strategy,omitempty"`
	SymlinkToBin bool            `json:"symlink_to_bin"`
}

// ParseProvide parses a provide string. A leading `@` requests a bin
// symlink; the remainder is `name`, `name==target`, `name=>target` or
// `name:target`.
func ParseProvide(s string) Provide {
	p := Provide{}
	if strings.HasPrefix(s, "@") {
		p.SymlinkToBin = true
		s = s[1:]
	}
	if name, target, ok := strings.Cut(s, "=="); ok {
		p.Name, p.Target, p.Strategy = name, target, KeepBoth
	} else if name, target, ok := strings.Cut(s, "=>"); ok {
		p.Name, p.Target, p.Strategy = name, target, KeepTargetOnly
	} else if name, target, ok := strings.Cut(s, ":"); ok {
		p.Name, p.Target, p.Strategy = name, target, Alias
	} else {
		p.Name = s
	}
	return p
}

// LinkName returns the name the provide exposes in the bin directory, or ""
// when the entry creates no link of its own.
func (p Provide) LinkName() string {
	switch p.Strategy {
	case KeepTargetOnly, KeepBoth, Alias:
		return p.Target
	}
	return ""
}

func (p Provide) String() string {
	var sb strings.Builder
	if p.SymlinkToBin {
		sb.WriteByte('@')
	}
	sb.WriteString(p.Name)
	if op := p.Strategy.Operator(); op != "" && p.Target != "" {
		sb.WriteString(op)
		sb.WriteString(p.Target)
	}
	return sb.String()
}
