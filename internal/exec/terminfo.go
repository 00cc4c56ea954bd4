package exec

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/griffithind/giftwrap/internal/hostinfo"
	"github.com/griffithind/giftwrap/internal/internalspec"
)

// terminfoSearchDirs are checked in order for a compiled terminfo entry
// matching $TERM (spec.md §4.7 step 4 consumes whatever this produces).
var terminfoSearchDirs = []string{
	"/usr/share/terminfo",
	"/lib/terminfo",
	"/etc/terminfo",
}

// extractTerminfo reads the host's compiled terminfo entry for TERM, if
// host.HasInfocmp signals a terminfo database is present. Returns nil
// when there's nothing to extract — absent TERM or entry is not a
// hard failure, just no terminfo bundled for the agent.
func extractTerminfo(host *hostinfo.HostInfo) *internalspec.Terminfo {
	term := os.Getenv("TERM")
	if term == "" || !host.HasInfocmp {
		return nil
	}

	for _, dir := range terminfoSearchDirs {
		path := filepath.Join(dir, string(term[0]), term)
		blob, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return &internalspec.Terminfo{
			Term:       term,
			BlobBase64: base64.StdEncoding.EncodeToString(blob),
		}
	}
	return nil
}
