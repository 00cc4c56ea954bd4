package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// multiValuedKeys accept repeated "key = value" lines; everything else is
// a scalar that may appear at most once (spec.md §4.1).
var multiValuedKeys = map[string]bool{
	"extra_shares":      true,
	"env_overrides":     true,
	"extra_hosts":       true,
	"persist_env_names": true,
}

var knownKeys = map[string]bool{
	"image": true, "tag": true, "share_git_dir": true, "prelaunch": true,
	"extra_shell": true, "prefix_cmd": true, "hostname": true, "workdir": true,
	"user_mapping": true,
	"extra_shares": true, "env_overrides": true, "extra_hosts": true,
	"persist_env_names": true,
}

// rawConfig is the intermediate parse result: scalar keys seen once, and
// multi-valued keys accumulated in file order.
type rawConfig struct {
	scalars map[string]string
	lists   map[string][]string
}

// Load discovers the config file from startDir, parses it, and applies
// the GW_USER_OPT_* environment-override protocol (spec.md §4.1). This is
// the entry point host code should call.
func Load(startDir string) (*Config, error) {
	path, err := Discover(startDir)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnvOverrides(cfg, os.Environ()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads and interprets a single giftwrap config file. The returned
// Config's BuildRoot is the directory containing path.
func Parse(path string) (*Config, error) {
	raw, err := parseRaw(path)
	if err != nil {
		return nil, err
	}
	return build(filepath.Dir(path), raw)
}

func parseRaw(path string) (*rawConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "reading config file %s", path)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	raw := &rawConfig{
		scalars: map[string]string{},
		lists:   map[string][]string{},
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "%s:%d: expected \"key = value\"", path, lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		if !knownKeys[key] {
			return nil, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeUnknownKey, "%s:%d: unknown key %q", path, lineNo, key)
		}

		if multiValuedKeys[key] {
			raw.lists[key] = append(raw.lists[key], value)
			continue
		}

		if _, dup := raw.scalars[key]; dup {
			return nil, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeDuplicateKey, "%s:%d: duplicate key %q", path, lineNo, key)
		}
		raw.scalars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "reading config file %s", path)
	}
	return raw, nil
}

func build(buildRoot string, raw *rawConfig) (*Config, error) {
	cfg := newDefaultConfig(buildRoot)

	cfg.Image = raw.scalars["image"]
	cfg.Tag = raw.scalars["tag"]
	cfg.Hostname = raw.scalars["hostname"]
	cfg.Workdir = raw.scalars["workdir"]
	cfg.Prelaunch = raw.scalars["prelaunch"]
	cfg.ExtraShell = raw.scalars["extra_shell"]

	if v, ok := raw.scalars["share_git_dir"]; ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, gwerrors.Wrapf(err, gwerrors.KindConfig, gwerrors.CodeInvalidValue, "share_git_dir: %q", v)
		}
		cfg.ShareGitDir = b
	}

	if v, ok := raw.scalars["user_mapping"]; ok {
		um := UserMapping(v)
		switch um {
		case UserMappingHost, UserMappingKeepID, UserMappingNone:
			cfg.UserMapping = um
		default:
			return nil, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "user_mapping: %q (want host, keepid, or none)", v)
		}
	}

	if v, ok := raw.scalars["prefix_cmd"]; ok {
		tokens, err := shellwords.Parse(v)
		if err != nil {
			return nil, gwerrors.Wrapf(err, gwerrors.KindConfig, gwerrors.CodeInvalidValue, "prefix_cmd: %q", v)
		}
		cfg.PrefixCmd = tokens
	}

	for _, line := range raw.lists["extra_shares"] {
		share, err := parseShare(line)
		if err != nil {
			return nil, err
		}
		cfg.ExtraShares = append(cfg.ExtraShares, share)
	}

	for _, line := range raw.lists["extra_hosts"] {
		if !strings.Contains(line, ":") {
			return nil, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "extra_hosts entry %q missing \":\"", line)
		}
		cfg.ExtraHosts = append(cfg.ExtraHosts, line)
	}

	cfg.PersistEnvNames = append(cfg.PersistEnvNames, raw.lists["persist_env_names"]...)

	for _, line := range raw.lists["env_overrides"] {
		eo, err := parseEnvOverrideLine(line)
		if err != nil {
			return nil, err
		}
		cfg.EnvOverrides = append(cfg.EnvOverrides, eo)
	}

	return cfg, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}

// parseShare parses "host:container[:ro]".
func parseShare(line string) (ShareMount, error) {
	parts := strings.Split(line, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ShareMount{}, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeBadShare, "extra_shares entry %q: want host:container[:ro]", line)
	}
	sm := ShareMount{HostPath: parts[0], ContainerPath: parts[1]}
	if len(parts) == 3 {
		if parts[2] != "ro" {
			return ShareMount{}, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeBadShare, "extra_shares entry %q: third segment must be \"ro\"", line)
		}
		sm.RO = true
	}
	return sm, nil
}

// parseEnvOverrideLine parses "<NAME> <op> <value...>" (the value segment
// may itself contain spaces and runs to end of line).
func parseEnvOverrideLine(line string) (EnvOverride, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return EnvOverride{}, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "env_overrides entry %q: want \"NAME op [value]\"", line)
	}
	eo := EnvOverride{Name: fields[0], Op: fields[1]}
	if len(fields) == 3 {
		eo.Value = fields[2]
	}
	switch eo.Op {
	case "set", "add", "del":
	default:
		return EnvOverride{}, gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "env_overrides entry %q: op must be set, add, or del", line)
	}
	return eo, nil
}
