package agent

import (
	"os/exec"
	"strings"
	"syscall"

	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/internalspec"
)

// execUserCommand implements spec.md §4.7 steps 7-8: wrap the command
// in a sourcing shell when prefix_cmd or extra_shell is set, then
// exec-replace the agent process. Nothing below this point ever returns
// on success — the kernel delivers signals and an exit code directly to
// the user command from here on.
func execUserCommand(spec *internalspec.Spec, env []string) error {
	argv, err := buildCommand(spec)
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return gwerrors.New(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "no command to exec")
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "resolving %s", argv[0])
	}

	return syscall.Exec(path, argv, env) //nolint:gosec // intentional process replacement, argv is agent-composed
}

// buildCommand assembles the argv to exec, applying the prefix_cmd /
// extra_shell sourcing wrapper when either is set (spec.md §4.7 step 7).
func buildCommand(spec *internalspec.Spec) ([]string, error) {
	if spec.ExtraShell == nil && len(spec.PrefixCmd) == 0 {
		if len(spec.UserCommand) == 0 {
			return []string{"/bin/sh", "-l"}, nil
		}
		return spec.UserCommand, nil
	}

	shell := "/bin/sh"
	var script strings.Builder
	if spec.ExtraShell != nil {
		script.WriteString("source ")
		script.WriteString(shellQuote(*spec.ExtraShell))
		script.WriteString("; ")
	}
	script.WriteString("exec ")
	for _, tok := range spec.PrefixCmd {
		script.WriteString(shellQuote(tok))
		script.WriteString(" ")
	}
	for i, tok := range spec.UserCommand {
		if i > 0 {
			script.WriteString(" ")
		}
		script.WriteString(shellQuote(tok))
	}

	return []string{shell, "-c", script.String()}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
