package config

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

const envOptPrefix = "GW_USER_OPT_"
const envOptUUIDVar = "GW_USER_OPT_UUID"

type envOverrideOp struct {
	varName string // raw env var name, used for ASCII-order sorting
	op      string // "SET", "ADD", or "DEL"
	key     string
	value   string
}

// ApplyEnvOverrides scans environ for the GW_USER_OPT_ protocol (spec.md
// §4.1) and mutates cfg in place. environ is expected in "NAME=VALUE"
// form, e.g. os.Environ().
func ApplyEnvOverrides(cfg *Config, environ []string) error {
	uuidScope := findUUIDScope(environ)
	if uuidScope != "" {
		if _, err := uuid.Parse(uuidScope); err != nil {
			return gwerrors.Newf(gwerrors.KindUsage, gwerrors.CodeConflictingUUID, "GW_USER_OPT_UUID=%q is not a valid UUID", uuidScope)
		}
	}

	prefix := envOptPrefix
	if uuidScope != "" {
		prefix = envOptPrefix + uuidScope + "_"
	}

	var ops []envOverrideOp
	for _, kv := range environ {
		name, value, found := strings.Cut(kv, "=")
		if !found || name == envOptUUIDVar {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)

		op, key, ok := splitOp(rest)
		if !ok {
			continue
		}
		ops = append(ops, envOverrideOp{varName: name, op: op, key: key, value: value})
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].varName < ops[j].varName })

	for _, o := range ops {
		if !knownOverrideKey(o.key) {
			return gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeUnknownKey, "%s: unknown key %q", o.varName, o.key)
		}
		if err := applyOverride(cfg, o); err != nil {
			return err
		}
	}
	return nil
}

func splitOp(rest string) (op, key string, ok bool) {
	for _, candidate := range []string{"SET_", "ADD_", "DEL_"} {
		if strings.HasPrefix(rest, candidate) {
			return strings.TrimSuffix(candidate, "_"), strings.TrimPrefix(rest, candidate), true
		}
	}
	return "", "", false
}

func findUUIDScope(environ []string) string {
	for _, kv := range environ {
		name, value, found := strings.Cut(kv, "=")
		if found && name == envOptUUIDVar {
			return value
		}
	}
	return ""
}

func knownOverrideKey(key string) bool {
	return knownKeys[key]
}

func splitNonEmptyLines(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "\n")
}

func applyOverride(cfg *Config, o envOverrideOp) error {
	if multiValuedKeys[o.key] {
		return applyListOverride(cfg, o)
	}
	return applyScalarOverride(cfg, o)
}

func applyListOverride(cfg *Config, o envOverrideOp) error {
	switch o.key {
	case "extra_shares":
		switch o.op {
		case "SET":
			shares, err := parseShares(splitNonEmptyLines(o.value))
			if err != nil {
				return err
			}
			cfg.ExtraShares = shares
		case "ADD":
			shares, err := parseShares(splitNonEmptyLines(o.value))
			if err != nil {
				return err
			}
			cfg.ExtraShares = append(cfg.ExtraShares, shares...)
		case "DEL":
			if o.value == "" {
				cfg.ExtraShares = nil
				return nil
			}
			share, err := parseShare(o.value)
			if err != nil {
				return err
			}
			cfg.ExtraShares = removeShare(cfg.ExtraShares, share)
		}
	case "extra_hosts":
		applyStringList(&cfg.ExtraHosts, o)
	case "persist_env_names":
		applyStringList(&cfg.PersistEnvNames, o)
	case "env_overrides":
		switch o.op {
		case "SET":
			eos, err := parseEnvOverrideLines(splitNonEmptyLines(o.value))
			if err != nil {
				return err
			}
			cfg.EnvOverrides = eos
		case "ADD":
			eos, err := parseEnvOverrideLines(splitNonEmptyLines(o.value))
			if err != nil {
				return err
			}
			cfg.EnvOverrides = append(cfg.EnvOverrides, eos...)
		case "DEL":
			if o.value == "" {
				cfg.EnvOverrides = nil
				return nil
			}
			eo, err := parseEnvOverrideLine(o.value)
			if err != nil {
				return err
			}
			cfg.EnvOverrides = removeEnvOverride(cfg.EnvOverrides, eo)
		}
	}
	return nil
}

func applyStringList(list *[]string, o envOverrideOp) {
	switch o.op {
	case "SET":
		*list = splitNonEmptyLines(o.value)
	case "ADD":
		*list = append(*list, splitNonEmptyLines(o.value)...)
	case "DEL":
		if o.value == "" {
			*list = nil
			return
		}
		out := (*list)[:0:0]
		for _, v := range *list {
			if v != o.value {
				out = append(out, v)
			}
		}
		*list = out
	}
}

func parseShares(lines []string) ([]ShareMount, error) {
	var out []ShareMount
	for _, l := range lines {
		sm, err := parseShare(l)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, nil
}

func removeShare(shares []ShareMount, target ShareMount) []ShareMount {
	out := shares[:0:0]
	for _, s := range shares {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func parseEnvOverrideLines(lines []string) ([]EnvOverride, error) {
	var out []EnvOverride
	for _, l := range lines {
		eo, err := parseEnvOverrideLine(l)
		if err != nil {
			return nil, err
		}
		out = append(out, eo)
	}
	return out, nil
}

func removeEnvOverride(list []EnvOverride, target EnvOverride) []EnvOverride {
	out := list[:0:0]
	for _, eo := range list {
		if eo != target {
			out = append(out, eo)
		}
	}
	return out
}

func applyScalarOverride(cfg *Config, o envOverrideOp) error {
	clear := o.op == "DEL"
	val := o.value
	if clear {
		val = ""
	}

	switch o.key {
	case "image":
		cfg.Image = val
	case "tag":
		cfg.Tag = val
	case "hostname":
		cfg.Hostname = val
	case "workdir":
		cfg.Workdir = val
	case "prelaunch":
		cfg.Prelaunch = val
	case "extra_shell":
		cfg.ExtraShell = val
	case "share_git_dir":
		if clear {
			cfg.ShareGitDir = false
			return nil
		}
		b, err := parseBool(val)
		if err != nil {
			return gwerrors.Wrapf(err, gwerrors.KindConfig, gwerrors.CodeInvalidValue, "%s: share_git_dir %q", o.varName, val)
		}
		cfg.ShareGitDir = b
	case "user_mapping":
		if clear {
			cfg.UserMapping = UserMappingHost
			return nil
		}
		um := UserMapping(val)
		switch um {
		case UserMappingHost, UserMappingKeepID, UserMappingNone:
			cfg.UserMapping = um
		default:
			return gwerrors.Newf(gwerrors.KindConfig, gwerrors.CodeInvalidValue, "%s: user_mapping %q", o.varName, val)
		}
	case "prefix_cmd":
		if clear {
			cfg.PrefixCmd = nil
			return nil
		}
		tokens, err := shellwords.Parse(val)
		if err != nil {
			return gwerrors.Wrapf(err, gwerrors.KindConfig, gwerrors.CodeInvalidValue, "%s: prefix_cmd %q", o.varName, val)
		}
		cfg.PrefixCmd = tokens
	}
	return nil
}
