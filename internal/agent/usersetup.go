package agent

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/griffithind/giftwrap/internal/internalspec"
	"github.com/griffithind/giftwrap/internal/logging"
)

const (
	passwdPath = "/etc/passwd"
	groupPath  = "/etc/group"
)

// EnsureUser implements spec.md §4.7 step 2: make sure a user account
// matching spec's uid/gid/username exists. On a read-only filesystem
// (Alpine-style immutable layers) it falls back to setting env vars
// only, leaving /etc/passwd untouched.
func EnsureUser(spec *internalspec.Spec) error {
	if spec.Username == "" {
		return nil
	}

	if err := ensureGroup(spec.Username, spec.GID); err != nil {
		logging.Warn("falling back to env-only user materialization", "error", err)
		return nil
	}
	if err := ensureUserEntry(spec); err != nil {
		logging.Warn("falling back to env-only user materialization", "error", err)
		return nil
	}
	return nil
}

func ensureGroup(name string, gid int) error {
	lines, err := readLines(groupPath)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) >= 3 && fields[0] == name {
			return nil
		}
	}
	entry := fmt.Sprintf("%s:x:%d:\n", name, gid)
	return appendLine(groupPath, entry)
}

func ensureUserEntry(spec *internalspec.Spec) error {
	lines, err := readLines(passwdPath)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) >= 1 && fields[0] == spec.Username {
			return nil
		}
	}
	entry := fmt.Sprintf("%s:x:%d:%d::%s:/bin/sh\n", spec.Username, spec.UID, spec.GID, spec.Home)
	if err := appendLine(passwdPath, entry); err != nil {
		return err
	}
	return os.MkdirAll(spec.Home, 0o755)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // write already flushed below

	_, err = f.WriteString(line)
	return err
}
