package main

import (
	"context"
	"os"
	"os/exec"

	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/sandbox"
)

// sandboxExec is the hidden re-exec entry point: soar restricts itself
// with Landlock, then execs the payload shell command. Arguments mirror
// sandbox.Command.
func sandboxExec(ctx context.Context, args []string) error {
	cfg := &sandbox.Config{}
	var payload string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-ro":
			i++
			if i >= len(args) {
				return xerrors.New("sandbox-exec: -ro needs a path")
			}
			cfg.FsRead = append(cfg.FsRead, args[i])
		case "-rw":
			i++
			if i >= len(args) {
				return xerrors.New("sandbox-exec: -rw needs a path")
			}
			cfg.FsWrite = append(cfg.FsWrite, args[i])
		case "-net":
			i++
			if i >= len(args) {
				return xerrors.New("sandbox-exec: -net needs a policy")
			}
			cfg.Network = args[i]
		case "-require":
			cfg.Require = true
		case "--":
			if i+1 < len(args) {
				payload = args[i+1]
			}
			i = len(args)
		default:
			return xerrors.Errorf("sandbox-exec: unknown argument %q", args[i])
		}
	}
	if payload == "" {
		return xerrors.New("sandbox-exec: no command given")
	}
	if err := sandbox.Apply(cfg); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", payload)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = os.Environ()
	return cmd.Run()
}
