// Package cli implements spec.md §4.2: the --gw-* flag grammar and the
// terminal-action short circuit, built on cobra/pflag.
package cli

// CliOptions is the parsed, runtime-visible result of the --gw-*
// argument grammar (spec.md §3 "CliOptions").
type CliOptions struct {
	// Terminal actions: mutually exclusive, last one set wins, each
	// short-circuits before build/prelaunch/exec.
	Print      bool
	ShowConfig bool
	PrintImage bool
	Ctx        bool
	Help       bool

	// Modifiers.
	Img        string
	UseCtx     string
	Rebuild    bool
	ExtraArgs  []string

	// UserCommand is the token list after the literal "--". Empty means
	// an interactive shell is intended.
	UserCommand []string
}

// AnyTerminalAction reports whether a terminal action bit is set.
func (o CliOptions) AnyTerminalAction() bool {
	return o.Print || o.ShowConfig || o.PrintImage || o.Ctx || o.Help
}
