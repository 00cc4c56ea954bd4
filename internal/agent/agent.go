// Package agent implements spec.md §4.7: the in-container state machine
// that runs as PID 1, materializes the host user, applies the
// environment, restores persisted state, and exec-replaces itself with
// the user command.
package agent

import (
	"fmt"
	"os"

	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/logging"
)

// Run executes the full agent state machine from a raw command-line
// (everything after "agent") and never returns on success: step 8 is a
// real exec-replace.
func Run(args []string) error {
	logging.SetPrefix("giftwrap agent")

	specFD, specFile, err := parseArgs(args)
	if err != nil {
		return err
	}

	spec, err := ReadSpec(specFD, specFile)
	if err != nil {
		return err
	}

	if err := EnsureUser(spec); err != nil {
		return err
	}

	env := ApplyEnv(spec, os.Environ())

	if spec.Terminfo != nil {
		if err := WriteTerminfo(spec.Home, spec.Terminfo); err != nil {
			logging.Warn("terminfo extraction failed", "error", err)
		}
	}

	if spec.PersistEnvPath != nil {
		merged, err := mergePersistedEnv(*spec.PersistEnvPath, spec.PersistEnvNames, env)
		if err != nil {
			return err
		}
		env = merged
		if err := writePersistedEnvBeforeExec(*spec.PersistEnvPath, spec.PersistEnvNames, env); err != nil {
			logging.Warn("persisted env writeback failed", "error", err)
		}
	}

	if err := ensureWorkdir(spec.Workdir); err != nil {
		return err
	}

	return execUserCommand(spec, env)
}

func parseArgs(args []string) (fd int, file string, err error) {
	for _, a := range args {
		switch {
		case a == "--spec-fd=3":
			return 3, "", nil
		case hasPrefix(a, "--spec-fd="):
			n, perr := parseInt(a[len("--spec-fd="):])
			if perr != nil {
				return 0, "", gwerrors.Newf(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "invalid --spec-fd value in %q", a)
			}
			return n, "", nil
		case hasPrefix(a, "--spec-file="):
			return 0, a[len("--spec-file="):], nil
		}
	}
	return 3, "", nil // fd 3 is the default per spec.md §4.4 step 7
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func parseInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func ensureWorkdir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "creating workdir %s", dir)
	}
	if err := os.Chdir(dir); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "changing to workdir %s", dir)
	}
	return nil
}
