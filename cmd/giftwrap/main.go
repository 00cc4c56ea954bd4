// Command giftwrap is a container launcher that turns a working
// directory into a reproducibly containerized shell or command. The
// same binary also runs as the in-container agent, dispatched via the
// "agent" subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/griffithind/giftwrap/internal/agent"
	"github.com/griffithind/giftwrap/internal/exec"
	"github.com/griffithind/giftwrap/internal/gwerrors"
)

func main() {
	var err error
	prefix := "giftwrap"

	if len(os.Args) > 1 && os.Args[1] == "agent" {
		prefix = "giftwrap agent"
		err = agent.Run(os.Args[2:])
	} else {
		argv := os.Args[1:]
		err = exec.Main(argv, exec.DefaultDeps())
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
		os.Exit(gwerrors.ExitCodeFor(err))
	}
}
