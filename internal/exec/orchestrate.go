// Package exec implements spec.md §4.8: the host-side main flow that
// ties config, context, compose, and runtime-args together, then
// exec-replaces giftwrap with the container runtime.
package exec

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/griffithind/giftwrap/internal/cli"
	"github.com/griffithind/giftwrap/internal/compose"
	gwcontext "github.com/griffithind/giftwrap/internal/context"
	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/hostinfo"
	"github.com/griffithind/giftwrap/internal/internalspec"
	"github.com/griffithind/giftwrap/internal/runtimeargs"

	gwconfig "github.com/griffithind/giftwrap/internal/config"
)

// Deps lets tests substitute the process-level side effects (image
// existence checks, command execution, final exec) without touching
// the real container runtime.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer

	ImageExists   func(ref string) bool
	RunBuild      func(buildRoot, ref string) error
	RunPrelaunch  func(cmd string) error
	ExecRuntime   func(argv []string, env []string) error
}

// DefaultDeps wires Deps to the real OS/subprocess/exec behavior.
func DefaultDeps() Deps {
	return Deps{
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		ImageExists: imageExistsPodman,
		RunBuild:    runBuildPodman,
		RunPrelaunch: func(cmdStr string) error {
			c := exec.Command("/bin/sh", "-c", cmdStr)
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			return c.Run()
		},
		ExecRuntime: execRuntime,
	}
}

// Main implements spec.md §4.8 steps 1-6 for the host-side flow
// starting from the current directory. argv excludes argv[0].
func Main(argv []string, deps Deps) error {
	opts, err := cli.Parse(argv)
	if err != nil {
		return err
	}

	host, err := hostinfo.Collect()
	if err != nil {
		return err
	}

	startDir, err := os.Getwd()
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "getting current directory")
	}

	cfg, err := gwconfig.Load(startDir)
	if err != nil {
		return err
	}

	hasGwinclude := gwincludePresent(cfg.BuildRoot)

	sha, err := resolveSha(cfg, opts, hasGwinclude)
	if err != nil {
		return err
	}

	spec, err := compose.Compose(cfg, opts, host, sha)
	if err != nil {
		return err
	}

	if opts.AnyTerminalAction() {
		return runTerminalAction(opts, cfg, spec, sha, deps)
	}

	if cfg.Tag == "" && sha != nil {
		if opts.Rebuild || !deps.ImageExists(spec.ImageRef) {
			if err := deps.RunBuild(cfg.BuildRoot, spec.ImageRef); err != nil {
				return gwerrors.Wrap(err, gwerrors.KindBuild, gwerrors.CodeBuildFailed, "building image")
			}
		}
	} else if opts.Rebuild {
		if err := deps.RunBuild(cfg.BuildRoot, spec.ImageRef); err != nil {
			return gwerrors.Wrap(err, gwerrors.KindBuild, gwerrors.CodeBuildFailed, "building image")
		}
	}

	if cfg.Prelaunch != "" {
		if err := deps.RunPrelaunch(cfg.Prelaunch); err != nil {
			return gwerrors.Wrap(err, gwerrors.KindPrelaunch, gwerrors.CodePrelaunchFailed, "running prelaunch hook")
		}
	}

	ispec := buildInternalSpec(cfg, opts, host, spec)
	argvOut, err := runtimeargs.Build(spec, runtimeargs.Podman)
	if err != nil {
		return err
	}

	return handoff(argvOut, ispec, deps)
}

func runTerminalAction(opts cli.CliOptions, cfg *gwconfig.Config, spec *compose.ContainerSpec, sha *gwcontext.Sha, deps Deps) error {
	switch {
	case opts.Help:
		fmt.Fprintln(deps.Stdout, usageText)
	case opts.PrintImage:
		fmt.Fprintln(deps.Stdout, spec.ImageRef)
	case opts.Ctx:
		if sha == nil {
			computed, err := gwcontext.Compute(cfg.BuildRoot)
			if err != nil {
				return err
			}
			sha = &computed
		}
		fmt.Fprintln(deps.Stdout, sha.Hex)
	case opts.ShowConfig:
		fmt.Fprintln(deps.Stdout, showConfig(cfg))
	case opts.Print:
		argvOut, err := runtimeargs.Build(spec, runtimeargs.Podman)
		if err != nil {
			return err
		}
		fmt.Fprintln(deps.Stdout, strings.Join(argvOut, " "))
	}
	return nil
}

// useCtxAuto is --gw-use-ctx's NoOptDefVal (cli.Parse): the bare flag
// with no "=<sha>" means "compute it," as opposed to a supplied digest.
const useCtxAuto = "auto"

// resolveSha implements spec.md §4.4 step 1's use_ctx modifier: a bare
// --gw-use-ctx (or any other content-addressing trigger) computes the
// ContextSha from the build root; --gw-use-ctx=<sha> forces that exact
// digest instead, skipping recomputation entirely.
func resolveSha(cfg *gwconfig.Config, opts cli.CliOptions, hasGwinclude bool) (*gwcontext.Sha, error) {
	if opts.UseCtx != "" && opts.UseCtx != useCtxAuto {
		if !isContextShaHex(opts.UseCtx) {
			return nil, gwerrors.Newf(gwerrors.KindUsage, gwerrors.CodeInvalidValue, "--gw-use-ctx=%q is not a 40-character hex digest", opts.UseCtx)
		}
		return &gwcontext.Sha{Hex: opts.UseCtx}, nil
	}

	if opts.UseCtx == useCtxAuto || cfg.WantsContentAddressing(hasGwinclude) {
		computed, err := gwcontext.Compute(cfg.BuildRoot)
		if err != nil {
			return nil, err
		}
		return &computed, nil
	}

	return nil, nil
}

func isContextShaHex(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// gwincludePresent reports whether buildRoot (or any subdirectory)
// defines a .gwinclude file, the signal used to resolve spec.md's
// unnamed "wants content addressing" trigger (see config.Config.
// WantsContentAddressing).
func gwincludePresent(buildRoot string) bool {
	found := false
	_ = filepath.Walk(buildRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil || found {
			return nil
		}
		if !info.IsDir() && filepath.Base(p) == ".gwinclude" {
			found = true
		}
		return nil
	})
	return found
}

const usageText = `giftwrap [--gw-print] [--gw-show-config] [--gw-print-image] [--gw-ctx]
         [--gw-img=<ref>] [--gw-use-ctx[=<sha>]] [--gw-rebuild]
         [--gw-extra-args=<str>] [--gw-help] -- <command...>`

func showConfig(cfg *gwconfig.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "build_root = %s\n", cfg.BuildRoot)
	fmt.Fprintf(&b, "image = %s\n", cfg.Image)
	if cfg.Tag != "" {
		fmt.Fprintf(&b, "tag = %s\n", cfg.Tag)
	}
	fmt.Fprintf(&b, "user_mapping = %s\n", cfg.UserMapping)
	return b.String()
}

// buildInternalSpec assembles the host->agent document (spec.md §6.2).
// Env is left empty: Config.env_overrides is already baked into the
// runtime's own --env flags by compose.Compose, so there are no further
// deltas for the agent to apply beyond the HOME/USER/LOGNAME/PWD forcing
// agent.ApplyEnv always does.
func buildInternalSpec(cfg *gwconfig.Config, opts cli.CliOptions, host *hostinfo.HostInfo, spec *compose.ContainerSpec) *internalspec.Spec {
	workdir := spec.Workdir
	if workdir == "" {
		workdir = cfg.Workdir
	}

	ispec := &internalspec.Spec{
		Version:     internalspec.Version,
		UID:         host.UID,
		GID:         host.GID,
		Username:    host.Username,
		Home:        host.Home,
		Workdir:     workdir,
		PrefixCmd:   cfg.PrefixCmd,
		UserCommand: opts.UserCommand,
		Terminfo:    extractTerminfo(host),
	}

	if cfg.ExtraShell != "" {
		ispec.ExtraShell = &cfg.ExtraShell
	}
	if spec.PersistEnvContainerPath != "" {
		path := spec.PersistEnvContainerPath
		ispec.PersistEnvPath = &path
		ispec.PersistEnvNames = cfg.PersistEnvNames
	}

	return ispec
}

// handoff implements spec.md §4.8 step 5-6: serialize the InternalSpec
// into a pipe whose read end becomes fd 3 for the exec'd runtime
// process, then exec-replace giftwrap with the runtime argv.
func handoff(runtimeArgv []string, ispec *internalspec.Spec, deps Deps) error {
	data, err := internalspec.Encode(ispec)
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "encoding internal spec")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "opening internal spec pipe")
	}
	if _, err := w.Write(data); err != nil {
		return gwerrors.Wrap(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "writing internal spec")
	}
	if err := w.Close(); err != nil {
		return gwerrors.Wrap(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "closing internal spec pipe")
	}

	if err := dupToFD3(r); err != nil {
		return gwerrors.Wrap(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "wiring internal spec to fd 3")
	}

	return deps.ExecRuntime(runtimeArgv, os.Environ())
}

// dupToFD3 arranges for r to be readable as fd 3 in the process image
// syscall.Exec replaces us with. With only stdin/stdout/stderr open,
// os.Pipe's read end already lands on fd 3 — Dup2(3, 3) is then a no-op
// that leaves FD_CLOEXEC untouched, so closing r afterward would close
// fd 3 itself. Dup2 only when r isn't already fd 3, and always clear
// FD_CLOEXEC explicitly rather than relying on Dup2's side effect.
func dupToFD3(r *os.File) error {
	if int(r.Fd()) != 3 {
		if err := syscall.Dup2(int(r.Fd()), 3); err != nil {
			return err
		}
		if err := r.Close(); err != nil {
			return err
		}
	}
	return clearCloexec(3)
}

func clearCloexec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags&^unix.FD_CLOEXEC)
	return err
}

func imageExistsPodman(ref string) bool {
	c := exec.Command("podman", "image", "exists", ref)
	return c.Run() == nil
}

func runBuildPodman(buildRoot, ref string) error {
	c := exec.Command("podman", "build", "-t", ref, buildRoot)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

func execRuntime(argv []string, env []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}
	return syscall.Exec(path, argv, env) //nolint:gosec // intentional process replacement into the container runtime
}
