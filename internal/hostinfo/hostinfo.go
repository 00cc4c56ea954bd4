// Package hostinfo probes the small set of host facts giftwrap needs once,
// at startup, and never re-reads (spec.md §9 "Global state").
package hostinfo

import (
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// HostInfo is the immutable record of host facts collected at program
// entry. Other environment reads (the GW_USER_OPT_* overrides, TERM, and
// the environment handed to the runtime) happen outside this record.
type HostInfo struct {
	UID          int
	GID          int
	Username     string
	Home         string
	IsStdinTTY   bool
	GitCommonDir string // absolute path, empty if not inside a git work tree
	HasInfocmp   bool
}

// Collect gathers HostInfo from the process's environment, the current
// user database entry, stdin, and (best-effort) git and infocmp.
func Collect() (*HostInfo, error) {
	u, err := user.Current()
	if err != nil {
		return nil, err
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, err
	}

	home := u.HomeDir
	if home == "" {
		home = os.Getenv("HOME")
	}

	hi := &HostInfo{
		UID:          uid,
		GID:          gid,
		Username:     u.Username,
		Home:         home,
		IsStdinTTY:   term.IsTerminal(int(os.Stdin.Fd())),
		GitCommonDir: gitCommonDir(),
		HasInfocmp:   hasInfocmp(),
	}
	return hi, nil
}

// gitCommonDir returns the absolute git common directory of the current
// working directory's repository, or "" if the cwd is not inside one.
func gitCommonDir() string {
	out, err := exec.Command("git", "rev-parse", "--path-format=absolute", "--git-common-dir").Output()
	if err != nil {
		// Older git without --path-format=absolute: fall back and resolve manually.
		out, err = exec.Command("git", "rev-parse", "--git-common-dir").Output()
		if err != nil {
			return ""
		}
		rel := strings.TrimSpace(string(out))
		abs, absErr := resolveAbs(rel)
		if absErr != nil {
			return ""
		}
		return abs
	}
	return strings.TrimSpace(string(out))
}

func resolveAbs(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] == '/' {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return cwd + "/" + p, nil
}

// hasInfocmp reports whether the infocmp utility is on PATH. Its presence
// gates host-side terminfo extraction (§4.7 step 4); the extraction itself
// reads the compiled entry from the terminfo directories and never runs
// infocmp.
func hasInfocmp() bool {
	_, err := exec.LookPath("infocmp")
	return err == nil
}
