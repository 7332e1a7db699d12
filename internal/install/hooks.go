package install

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/sandbox"
)

// runHooks executes the configured pre_install, post_extract and
// post_install snippets for the package, in that order.
func (c *Ctx) runHooks(ctx context.Context, opID events.OperationID, rp *db.RemotePackage, installDir string) error {
	hooks, ok := c.Config.Hooks[rp.PkgName]
	if !ok {
		return nil
	}
	for _, h := range []struct {
		name   string
		script string
	}{
		{"pre_install", hooks.PreInstall},
		{"post_extract", hooks.PostExtract},
		{"post_install", hooks.PostInstall},
	} {
		if h.script == "" {
			continue
		}
		c.Bus.Emit(events.Event{Kind: events.HookRunning, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: h.name})
		if err := RunHook(ctx, h.name, h.script, hooks.Sandbox, HookEnv{
			InstallDir: installDir,
			BinDir:     c.Paths.Bin(),
			PkgName:    rp.PkgName,
			PkgID:      rp.PkgID,
			PkgVersion: rp.Version,
		}); err != nil {
			return xerrors.Errorf("hook %s: %w", h.name, err)
		}
	}
	return nil
}

// HookEnv is the environment a hook snippet runs with.
type HookEnv struct {
	InstallDir string
	BinDir     string
	PkgName    string
	PkgID      string
	PkgVersion string
}

// RunHook executes one shell snippet with the install directory as
// working directory. With a sandbox config the snippet runs wrapped via
// the sandbox adapter; if sandboxing is unavailable and require is false
// it falls back to plain execution with a warning.
func RunHook(ctx context.Context, name, script string, sb *config.SandboxConfig, env HookEnv) error {
	var cmd *exec.Cmd
	if sb != nil {
		scfg := &sandbox.Config{
			Require: sb.Require,
			FsRead:  sb.FsRead,
			FsWrite: sb.FsWrite,
			Network: sb.Network,
		}
		if err := sandbox.Supported(); err != nil {
			if sb.Require {
				return err
			}
			fmt.Fprintf(os.Stderr, "warning: %v; running hook %s unsandboxed\n", err, name)
			cmd = exec.CommandContext(ctx, "sh", "-c", script)
		} else {
			self, err := os.Executable()
			if err != nil {
				return err
			}
			cmd = sandbox.Command(self, scfg, script)
		}
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", script)
	}
	cmd.Dir = env.InstallDir
	cmd.Env = append(os.Environ(),
		"INSTALL_DIR="+env.InstallDir,
		"BIN_DIR="+env.BinDir,
		"PKG_NAME="+env.PkgName,
		"PKG_ID="+env.PkgID,
		"PKG_VERSION="+env.PkgVersion,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// promptContinue asks whether to proceed past a checksum mismatch. Off a
// TTY the answer is no.
func promptContinue(pkgName string) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}
	fmt.Printf("Checksum mismatch for %s. Continue anyway? [y/N] ", pkgName)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
