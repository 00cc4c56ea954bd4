// Package internalspec implements the host→agent wire contract described in
// spec.md §6.2: a single versioned JSON document handed to the agent over
// an inherited file descriptor or a bind-mounted file.
package internalspec

import (
	"encoding/json"
	"fmt"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// Version is the only protocol version this binary speaks. A document
// whose "version" field doesn't match is an AgentProtocolError (exit 64).
const Version = 1

// EnvOp is one entry of the ordered environment-delta list applied by the
// agent after the runtime's own env (§4.7 step 3).
type EnvOp struct {
	Op    string `json:"op"`    // "set", "add", or "del"
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Terminfo carries a compiled terminfo entry extracted on the host
// (§4.7 step 4).
type Terminfo struct {
	Term       string `json:"term"`
	BlobBase64 string `json:"blob_base64"`
}

// Spec is the full InternalSpec document.
type Spec struct {
	Version         int        `json:"version"`
	UID             int        `json:"uid"`
	GID             int        `json:"gid"`
	Username        string     `json:"username"`
	Home            string     `json:"home"`
	Workdir         string     `json:"workdir"`
	Env             []EnvOp    `json:"env,omitempty"`
	PersistEnvPath  *string    `json:"persist_env_path,omitempty"`
	PersistEnvNames []string   `json:"persist_env_names,omitempty"`
	Terminfo        *Terminfo  `json:"terminfo,omitempty"`
	PrefixCmd       []string   `json:"prefix_cmd,omitempty"`
	ExtraShell      *string    `json:"extra_shell,omitempty"`
	UserCommand     []string   `json:"user_command,omitempty"`
}

// Encode serializes the Spec to JSON.
func Encode(s *Spec) ([]byte, error) {
	if s.Version == 0 {
		s.Version = Version
	}
	return json.Marshal(s)
}

// Decode parses an InternalSpec document. Unknown fields are ignored;
// a missing version, username or workdir, or an invalid env op, is
// reported as AgentProtocolError (home is not checked). A version
// mismatch is reported separately so callers can map it to the documented
// exit code 64 diagnostic.
func Decode(data []byte) (*Spec, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "malformed internal spec")
	}

	if s.Version == 0 {
		return nil, gwerrors.New(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "internal spec missing required field \"version\"")
	}
	if s.Version != Version {
		return nil, gwerrors.Newf(gwerrors.KindAgentProtocol, gwerrors.CodeVersionMismatch, "internal spec version %d unsupported (want %d)", s.Version, Version)
	}
	if s.Username == "" {
		return nil, gwerrors.New(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "internal spec missing required field \"username\"")
	}
	if s.Workdir == "" {
		return nil, gwerrors.New(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "internal spec missing required field \"workdir\"")
	}
	for _, e := range s.Env {
		switch e.Op {
		case "set", "add", "del":
		default:
			return nil, gwerrors.Newf(gwerrors.KindAgentProtocol, gwerrors.CodeMalformedSpec, "internal spec env op %q invalid for %q", e.Op, e.Name)
		}
	}
	return &s, nil
}

// String is a small debug helper that renders the spec's identifying
// fields on one line.
func (s *Spec) String() string {
	return fmt.Sprintf("InternalSpec{version=%d user=%s:%d:%d workdir=%s cmd=%v}", s.Version, s.Username, s.UID, s.GID, s.Workdir, s.UserCommand)
}
