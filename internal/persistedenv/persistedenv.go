// Package persistedenv implements the persisted-env file format from
// spec.md §6.3: the round-tripped NAME=VALUE store the agent reads on
// entry and rewrites before it exec's the user command.
package persistedenv

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// Load reads a persisted-env file. A missing file is not an error: it
// simply produces an empty map (nothing has been persisted yet).
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "reading persisted env %s", path)
	}

	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		out[line[:eq]] = unescape(line[eq+1:])
	}
	return out, nil
}

// Write rewrites path atomically (temp file + rename, within the same
// directory so the rename stays on one filesystem) with the given
// name/value pairs.
func Write(path string, values map[string]string) error {
	var b strings.Builder
	for name, value := range values {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(escape(value))
		b.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".persistedenv.*")
	if err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "creating temp file for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op once renamed

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close() //nolint:errcheck
		return gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "closing %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "renaming into place %s", path)
	}
	return nil
}

// escape applies spec.md §6.3's value encoding: "\\" escapes "\" and
// "\n" is written as the two-byte sequence "\x0a" (matching the spec's
// literal wording, not a regex \n).
func escape(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\x0a`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescape(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch {
			case v[i+1] == '\\':
				b.WriteByte('\\')
				i++
				continue
			case i+3 < len(v) && v[i+1:i+4] == "x0a":
				b.WriteByte('\n')
				i += 3
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
