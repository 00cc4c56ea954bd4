package agent

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/internalspec"
)

// WriteTerminfo implements spec.md §4.7 step 4: write a compiled
// terminfo blob under $HOME/.terminfo/<c>/<name>, where c is TERM's
// first character.
func WriteTerminfo(home string, t *internalspec.Terminfo) error {
	if t.Term == "" {
		return gwerrors.New(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "terminfo entry missing term name")
	}
	blob, err := base64.StdEncoding.DecodeString(t.BlobBase64)
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "decoding terminfo blob")
	}

	dir := filepath.Join(home, ".terminfo", string(t.Term[0]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "creating terminfo dir %s", dir)
	}

	path := filepath.Join(dir, t.Term)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return gwerrors.Wrapf(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "writing terminfo entry %s", path)
	}
	return nil
}
