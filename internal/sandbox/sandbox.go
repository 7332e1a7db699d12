// Package sandbox wraps shell invocations with Landlock filesystem and
// network restrictions (kernel 5.13+ for filesystem rules, 6.7+ for TCP
// rules).
package sandbox

import (
	"fmt"
	"log"
	"os/exec"

	"github.com/landlock-lsm/go-landlock/landlock"
	llsys "github.com/landlock-lsm/go-landlock/landlock/syscall"
)

// UnsupportedError reports a kernel without the required Landlock ABI.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string {
	return "sandbox unavailable: " + e.Reason
}

// RulesetError reports a failure building or enforcing the ruleset.
type RulesetError struct {
	Err error
}

func (e *RulesetError) Error() string { return "sandbox ruleset: " + e.Err.Error() }
func (e *RulesetError) Unwrap() error { return e.Err }

// Network policies.
const (
	NetworkAllowAll = "allow_all"
	NetworkNone     = "none"
)

// Config is the allowlist for one sandboxed invocation.
type Config struct {
	Require bool
	FsRead  []string
	FsWrite []string
	Network string
}

// Apply restricts the current process. It must be called in the child
// after fork (Go: from the command's pre-exec hook is impossible, so soar
// re-execs itself with the restrictions applied before running the
// payload command).
func Apply(cfg *Config) error {
	var rules []landlock.Rule
	for _, p := range cfg.FsRead {
		rules = append(rules, landlock.RODirs(p))
	}
	for _, p := range cfg.FsWrite {
		rules = append(rules, landlock.RWDirs(p))
	}
	ll := landlock.V4.BestEffort()
	if cfg.Require {
		ll = landlock.V4
	}
	if err := ll.RestrictPaths(rules...); err != nil {
		if cfg.Require {
			return &RulesetError{Err: err}
		}
		log.Printf("landlock filesystem rules not enforced: %v", err)
	}
	if cfg.Network == NetworkNone {
		nl := landlock.V4.BestEffort()
		if cfg.Require {
			nl = landlock.V4
		}
		if err := nl.RestrictNet(); err != nil {
			if cfg.Require {
				return &RulesetError{Err: err}
			}
			log.Printf("landlock network rules not enforced: %v", err)
		}
	}
	return nil
}

// Command builds the sandboxed re-exec invocation: selfExe is the soar
// binary, which re-enters via the hidden `sandbox-exec` verb, applies the
// ruleset and execs the shell command.
func Command(selfExe string, cfg *Config, shellCmd string) *exec.Cmd {
	args := []string{"sandbox-exec"}
	for _, p := range cfg.FsRead {
		args = append(args, "-ro", p)
	}
	for _, p := range cfg.FsWrite {
		args = append(args, "-rw", p)
	}
	if cfg.Network != "" {
		args = append(args, "-net", cfg.Network)
	}
	if cfg.Require {
		args = append(args, "-require")
	}
	args = append(args, "--", shellCmd)
	return exec.Command(selfExe, args...)
}

// Supported probes the kernel's Landlock ABI version without restricting
// the current process.
func Supported() error {
	v, err := llsys.LandlockGetABIVersion()
	if err != nil {
		return &UnsupportedError{Reason: fmt.Sprintf("landlock syscall: %v", err)}
	}
	if v < 1 {
		return &UnsupportedError{Reason: "kernel has Landlock disabled"}
	}
	return nil
}
