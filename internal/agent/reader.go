package agent

import (
	"io"
	"os"

	"github.com/griffithind/giftwrap/internal/gwerrors"
	"github.com/griffithind/giftwrap/internal/internalspec"
)

// ReadSpec reads and decodes the InternalSpec from fd (when nonzero) or
// from file (when fd is zero), per spec.md §4.7 step 1 / §6.2.
func ReadSpec(fd int, file string) (*internalspec.Spec, error) {
	var data []byte
	var err error

	switch {
	case fd != 0:
		f := os.NewFile(uintptr(fd), "gw-internal-spec")
		if f == nil {
			return nil, gwerrors.Newf(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "fd %d is not open", fd)
		}
		defer f.Close() //nolint:errcheck // read-only handle
		data, err = io.ReadAll(f)
	case file != "":
		data, err = os.ReadFile(file)
	default:
		return nil, gwerrors.New(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "no spec source given (--spec-fd or --spec-file required)")
	}
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "reading internal spec")
	}

	return internalspec.Decode(data)
}
