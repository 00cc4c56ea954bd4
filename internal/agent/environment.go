package agent

import (
	"strings"

	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/internalspec"
	"github.com/griffithind/giftwrap/internal/persistedenv"
)

// ApplyEnv implements spec.md §4.7 step 3: start from the process
// environment, apply the ordered env deltas, then force HOME/USER/
// LOGNAME/PWD to the values the agent has just materialized.
func ApplyEnv(spec *internalspec.Spec, processEnv []string) []string {
	values := make(map[string]string, len(processEnv))
	order := make([]string, 0, len(processEnv))
	for _, kv := range processEnv {
		name, val, ok := splitKV(kv)
		if !ok {
			continue
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = val
	}

	for _, op := range spec.Env {
		switch op.Op {
		case "set":
			if _, seen := values[op.Name]; !seen {
				order = append(order, op.Name)
			}
			values[op.Name] = op.Value
		case "add":
			if existing, seen := values[op.Name]; seen {
				values[op.Name] = existing + addSeparator(op.Name) + op.Value
			} else {
				order = append(order, op.Name)
				values[op.Name] = op.Value
			}
		case "del":
			delete(values, op.Name)
		}
	}

	values["HOME"] = spec.Home
	values["USER"] = spec.Username
	values["LOGNAME"] = spec.Username
	values["PWD"] = spec.Workdir
	for _, forced := range []string{"HOME", "USER", "LOGNAME", "PWD"} {
		if !containsName(order, forced) {
			order = append(order, forced)
		}
	}

	out := make([]string, 0, len(order))
	for _, name := range order {
		if v, ok := values[name]; ok {
			out = append(out, name+"="+v)
		}
	}
	return out
}

func addSeparator(key string) string {
	if strings.HasSuffix(key, "PATH") || strings.HasSuffix(key, "DIRS") {
		return ":"
	}
	return " "
}

func splitKV(kv string) (name, value string, ok bool) {
	eq := strings.IndexByte(kv, '=')
	if eq < 0 {
		return "", "", false
	}
	return kv[:eq], kv[eq+1:], true
}

func containsName(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

// mergePersistedEnv unions the persisted-env file's entries into env,
// per spec.md §4.7 step 5: file values win for names in persistNames.
func mergePersistedEnv(path string, persistNames []string, env []string) ([]string, error) {
	stored, err := persistedenv.Load(path)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return env, nil
	}

	persisted := make(map[string]bool, len(persistNames))
	for _, n := range persistNames {
		persisted[n] = true
	}

	out := make([]string, 0, len(env)+len(stored))
	seen := make(map[string]bool, len(env))
	for _, kv := range env {
		name, _, ok := splitKV(kv)
		if !ok {
			out = append(out, kv)
			continue
		}
		if persisted[name] {
			if v, has := stored[name]; has {
				out = append(out, name+"="+v)
				seen[name] = true
				continue
			}
		}
		out = append(out, kv)
		seen[name] = true
	}
	for name, v := range stored {
		if !seen[name] {
			out = append(out, name+"="+v)
		}
	}
	return out, nil
}

// writePersistedEnvBeforeExec rewrites the persisted-env file with the
// final, post-delta values of persistNames (spec.md §4.7 "Persisted-env
// rewrite vs exec": written before the exec-replace, since there is no
// process left afterward to run an atexit hook).
func writePersistedEnvBeforeExec(path string, persistNames []string, env []string) error {
	if len(persistNames) == 0 {
		return nil
	}
	want := make(map[string]bool, len(persistNames))
	for _, n := range persistNames {
		want[n] = true
	}

	values := make(map[string]string, len(persistNames))
	for _, kv := range env {
		name, val, ok := splitKV(kv)
		if ok && want[name] {
			values[name] = val
		}
	}

	if err := persistedenv.Write(path, values); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "writing persisted env %s", path)
	}
	return nil
}
