package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/griffithind/giftwrap/internal/cli"
	"github.com/griffithind/giftwrap/internal/config"
	gwcontext "github.com/griffithind/giftwrap/internal/context"
	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/hostinfo"
)

// defaultContainerBuildRoot is where the build root is mounted inside
// the container when Config doesn't say otherwise (spec.md §4.4 step 4a).
const defaultContainerBuildRoot = "/src"

// persistEnvFileName lives inside the build root (host and container
// share it via the build-root mount), mirroring the context package's
// own .giftwrap.ctx-sha marker-file convention.
const persistEnvFileName = ".giftwrap.persisted-env"

// AgentPath is the bind-mounted, in-container path of the giftwrap
// binary, used both as the mount target and the entrypoint (spec.md
// §4.4 step 4d, step 7).
const AgentPath = "/giftwrap"

// pathLikeSuffixes lists the Config.EnvOverrides "add" heuristic: keys
// ending in any of these get a ":" separator, everything else a space
// (spec.md §4.4 step 5).
var pathLikeSuffixes = []string{"PATH", "DIRS"}

// Compose builds a ContainerSpec from (Config, CliOptions, HostInfo,
// ContextSha), per spec.md §4.4. sha may be the zero value when content
// addressing isn't in play.
func Compose(cfg *config.Config, opts cli.CliOptions, host *hostinfo.HostInfo, sha *gwcontext.Sha) (*ContainerSpec, error) {
	spec := &ContainerSpec{
		Entrypoint: AgentPath,
	}

	imageRef, err := composeImage(cfg, opts, sha)
	if err != nil {
		return nil, err
	}
	spec.ImageRef = imageRef

	if cfg.Hostname != "" {
		spec.Hostname = Mkhostname(cfg.Hostname)
	} else {
		spec.Hostname = Mkhostname(filepath.Base(cfg.BuildRoot))
	}

	switch cfg.UserMapping {
	case config.UserMappingHost, "":
		spec.User = fmt.Sprintf("%d:%d", host.UID, host.GID)
	case config.UserMappingKeepID:
		spec.User = "0:0"
		spec.Flags.KeepID = true
	case config.UserMappingNone:
		spec.User = ""
	default:
		return nil, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "unknown user_mapping %q", cfg.UserMapping)
	}

	containerBuildRoot := defaultContainerBuildRoot

	mounts, err := composeMounts(cfg, host, containerBuildRoot)
	if err != nil {
		return nil, err
	}
	spec.Mounts = mounts

	spec.Env = composeEnv(cfg)
	spec.ExtraHosts = append(spec.ExtraHosts, cfg.ExtraHosts...)

	if len(cfg.PersistEnvNames) > 0 {
		spec.PersistEnvContainerPath = filepath.ToSlash(filepath.Join(containerBuildRoot, persistEnvFileName))
	}

	if cfg.Workdir != "" {
		spec.Workdir = cfg.Workdir
	} else {
		spec.Workdir = containerBuildRoot
	}

	spec.Flags.RM = true
	spec.Flags.Interactive = true
	spec.Flags.TTY = host.IsStdinTTY
	spec.Flags.ExtraRuntimeArgs = append(spec.Flags.ExtraRuntimeArgs, opts.ExtraArgs...)

	// Always fd-inheritance: the exec orchestrator hands the spec over on
	// fd 3 and never switches SpecRef to the file form.
	spec.SpecRef = SpecRef{FD: 3}
	spec.Command = specCommand(spec.SpecRef)

	return spec, nil
}

// composeImage resolves the image reference precedence from spec.md §4.4
// step 1: --gw-img overrides everything; --gw-use-ctx (and any other
// trigger of content addressing) forces the caller to compute sha and
// pass it here, so a non-nil sha always wins over a literal Tag.
func composeImage(cfg *config.Config, opts cli.CliOptions, sha *gwcontext.Sha) (string, error) {
	if opts.Img != "" {
		return opts.Img, nil
	}
	if sha != nil {
		return fmt.Sprintf("%s:%s", cfg.Image, sha.ImageTag()), nil
	}
	if opts.UseCtx != "" {
		return "", gwerrors.New(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "--gw-use-ctx requested but no context sha was computed")
	}
	if cfg.Tag != "" {
		return fmt.Sprintf("%s:%s", cfg.Image, cfg.Tag), nil
	}
	return cfg.Image, nil
}

// specCommand builds the agent-side argv (spec.md §4.4 step 7): "agent"
// is the subcommand token cmd/giftwrap dispatches on, so it must lead
// either form of SpecRef — omitting it re-enters the host CLI instead of
// the agent once the bind-mounted binary runs inside the container.
func specCommand(ref SpecRef) []string {
	if ref.File != "" {
		return []string{"agent", "--spec-file=" + ref.File}
	}
	return []string{"agent", fmt.Sprintf("--spec-fd=%d", ref.FD)}
}

func composeMounts(cfg *config.Config, host *hostinfo.HostInfo, containerBuildRoot string) ([]Mount, error) {
	var mounts []Mount

	mounts = append(mounts, Mount{Host: cfg.BuildRoot, Container: containerBuildRoot})

	for _, share := range cfg.ExtraShares {
		abs, err := filepath.Abs(share.HostPath)
		if err != nil {
			return nil, gwerrors.Wrapf(err, gwerrors.KindConfig, gwerrors.CodeBadShare, "resolving share %s", share.HostPath)
		}
		if _, err := os.Lstat(abs); err != nil {
			return nil, gwerrors.Wrapf(err, gwerrors.KindConfig, gwerrors.CodeBadShare, "extra_shares source %s does not exist", abs)
		}
		mounts = append(mounts, Mount{Host: abs, Container: share.ContainerPath, RO: share.RO})
	}

	if cfg.ShareGitDir {
		if host.GitCommonDir == "" {
			return nil, gwerrors.New(gwerrors.KindConfig, gwerrors.CodeBadShare, "share_git_dir is set but no git common dir was found")
		}
		mounts = append(mounts, Mount{
			Host:      host.GitCommonDir,
			Container: filepath.ToSlash(filepath.Join(containerBuildRoot, ".git")),
		})
	}

	mounts = append(mounts, Mount{Host: hostGiftwrapPath(), Container: AgentPath, RO: true})

	if err := checkMountConflicts(mounts); err != nil {
		return nil, err
	}
	return mounts, nil
}

func checkMountConflicts(mounts []Mount) error {
	seen := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		if seen[m.Container] {
			return gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeMountConflict, "duplicate container mount target %s", m.Container)
		}
		seen[m.Container] = true
	}
	return nil
}

// hostGiftwrapPath resolves the giftwrap binary's own path on the host,
// so it can be bind-mounted into the container as the agent entrypoint.
var hostGiftwrapPath = func() string {
	exe, err := os.Executable()
	if err != nil {
		return "/proc/self/exe"
	}
	return exe
}

func composeEnv(cfg *config.Config) []string {
	order := make([]string, 0, len(cfg.EnvOverrides))
	values := make(map[string]string, len(cfg.EnvOverrides))
	present := make(map[string]bool, len(cfg.EnvOverrides))

	for _, ov := range cfg.EnvOverrides {
		switch ov.Op {
		case "set":
			if !present[ov.Name] {
				order = append(order, ov.Name)
			}
			values[ov.Name] = ov.Value
			present[ov.Name] = true
		case "add":
			if present[ov.Name] {
				values[ov.Name] = values[ov.Name] + addSeparator(ov.Name) + ov.Value
			} else {
				order = append(order, ov.Name)
				values[ov.Name] = ov.Value
				present[ov.Name] = true
			}
		case "del":
			if present[ov.Name] {
				present[ov.Name] = false
				delete(values, ov.Name)
			}
		}
	}

	persisted := make(map[string]bool, len(cfg.PersistEnvNames))
	for _, n := range cfg.PersistEnvNames {
		persisted[n] = true
	}

	var env []string
	for _, name := range order {
		if !present[name] || persisted[name] {
			continue
		}
		env = append(env, name+"="+values[name])
	}
	return env
}

func addSeparator(key string) string {
	for _, suffix := range pathLikeSuffixes {
		if strings.HasSuffix(key, suffix) {
			return ":"
		}
	}
	return " "
}
