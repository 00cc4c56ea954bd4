// Package runtimeargs implements spec.md §4.6: serializing a
// compose.ContainerSpec into the container runtime's argv, in a fixed,
// testable order.
package runtimeargs

import (
	"fmt"

	"github.com/griffithind/giftwrap/internal/compose"
	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// Backend names the CLI flavor of the target runtime (spec.md §9
// "dynamic dispatch across runtime backends"). Flag spellings for
// mount/env/add-host are shared; only the binary name and the keep-id
// user-mapping flag vary.
type Backend struct {
	Binary      string
	KeepIDFlag  string // empty if the backend has no keep-id concept
}

// Podman is the default backend (spec.md §4.4 step 3, §9).
var Podman = Backend{Binary: "podman", KeepIDFlag: "--userns=keep-id"}

// Docker is the alternate backend; it has no native keep-id mapping,
// so KeepIDFlag is left empty and callers fall back to --user 0:0 alone.
var Docker = Backend{Binary: "docker"}

// Build serializes spec into a full argv, with argv[0] set to
// backend.Binary, per the fixed ordering in spec.md §4.6.
func Build(spec *compose.ContainerSpec, backend Backend) ([]string, error) {
	if len(spec.Entrypoint) == 0 || containsSpace(spec.Entrypoint) {
		return nil, gwerrors.Newf(gwerrors.KindUsage, gwerrors.CodeBadEntrypoint, "entrypoint must be exactly one token, got %q", spec.Entrypoint)
	}

	args := []string{backend.Binary, "run", "--rm"}

	if spec.Flags.Interactive && spec.Flags.TTY {
		args = append(args, "--interactive", "--tty")
	} else if spec.Flags.Interactive {
		args = append(args, "--interactive")
	}

	if spec.Hostname != "" {
		args = append(args, "--hostname", spec.Hostname)
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}
	if spec.Flags.KeepID && backend.KeepIDFlag != "" {
		args = append(args, backend.KeepIDFlag)
	}
	if spec.Workdir != "" {
		args = append(args, "--workdir", spec.Workdir)
	}
	if spec.Flags.Init {
		args = append(args, "--init")
	}
	if spec.Flags.Privileged {
		args = append(args, "--privileged")
	}

	for _, e := range spec.Env {
		args = append(args, "--env", e)
	}

	for _, m := range spec.Mounts {
		mountArg := fmt.Sprintf("type=bind,source=%s,target=%s", m.Host, m.Container)
		if m.RO {
			mountArg += ",ro"
		}
		args = append(args, "--mount", mountArg)
	}

	for _, h := range spec.ExtraHosts {
		args = append(args, "--add-host", h)
	}

	args = append(args, spec.Flags.ExtraRuntimeArgs...)

	args = append(args, spec.ImageRef, spec.Entrypoint)
	args = append(args, spec.Command...)

	return args, nil
}

func containsSpace(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			return true
		}
	}
	return false
}
