package cli

import (
	"strings"

	"github.com/spf13/cobra"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// Parse implements spec.md §4.2: parses argv (excluding argv[0]) into
// CliOptions using cobra/pflag, relying on ArgsLenAtDash to find the
// literal "--" that ends giftwrap's own flag grammar. Anything before
// "--" that isn't a --gw-* flag is rejected as UnknownFlag; pflag's own
// unknown-flag error is re-wrapped to the same code.
func Parse(argv []string) (CliOptions, error) {
	var opts CliOptions

	cmd := &cobra.Command{
		Use:                "giftwrap",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash > 0 || (dash < 0 && len(args) > 0) {
				return gwerrors.Newf(gwerrors.KindUsage, gwerrors.CodeUnknownFlag, "unexpected argument %q before \"--\"", args[0])
			}
			if dash == 0 {
				opts.UserCommand = args
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().BoolVar(&opts.Print, "gw-print", false, "print the composed runtime argv")
	cmd.Flags().BoolVar(&opts.ShowConfig, "gw-show-config", false, "print the resolved config")
	cmd.Flags().BoolVar(&opts.PrintImage, "gw-print-image", false, "print the final image ref")
	cmd.Flags().BoolVar(&opts.Ctx, "gw-ctx", false, "print the context sha")
	cmd.Flags().BoolVar(&opts.Help, "gw-help", false, "show help")
	cmd.Flags().StringVar(&opts.Img, "gw-img", "", "override the image ref")
	cmd.Flags().StringVar(&opts.UseCtx, "gw-use-ctx", "", "force a specific content-addressed tag")
	cmd.Flags().Lookup("gw-use-ctx").NoOptDefVal = "auto"
	cmd.Flags().BoolVar(&opts.Rebuild, "gw-rebuild", false, "force an image rebuild")
	var extraArgsRaw string
	cmd.Flags().StringVar(&extraArgsRaw, "gw-extra-args", "", "extra runtime args, POSIX shell word-split")

	cmd.SetArgs(argv)
	if err := cmd.Execute(); err != nil {
		return opts, classifyParseError(err)
	}

	if extraArgsRaw != "" {
		tokens, err := shellwords.Parse(extraArgsRaw)
		if err != nil {
			return opts, gwerrors.Wrap(err, gwerrors.KindUsage, gwerrors.CodeBadExtraArgs, "splitting --gw-extra-args")
		}
		opts.ExtraArgs = tokens
	}

	resolveLastTerminalAction(&opts, argv)

	return opts, nil
}

func classifyParseError(err error) error {
	return gwerrors.Wrap(err, gwerrors.KindUsage, gwerrors.CodeUnknownFlag, "parsing command line")
}

// terminalActionFlags lists each terminal-action flag's spelling, in no
// particular order; resolveLastTerminalAction uses it to find which one
// was spelled last on the command line.
var terminalActionFlags = []string{"--gw-print", "--gw-show-config", "--gw-print-image", "--gw-ctx", "--gw-help"}

// resolveLastTerminalAction implements spec.md §4.2: terminal actions
// are mutually exclusive; when more than one is set, the one spelled
// last on the command line (before "--") wins. Cobra/pflag parse all of
// them independently, so this re-scans the raw argv to find the last
// one and clears the rest.
func resolveLastTerminalAction(opts *CliOptions, argv []string) {
	lastIdx, lastFlag := -1, ""
	for i, a := range argv {
		if a == "--" {
			break
		}
		for _, f := range terminalActionFlags {
			if a == f || strings.HasPrefix(a, f+"=") {
				if i > lastIdx {
					lastIdx, lastFlag = i, f
				}
			}
		}
	}
	if lastFlag == "" {
		return
	}
	opts.Print = lastFlag == "--gw-print"
	opts.ShowConfig = lastFlag == "--gw-show-config"
	opts.PrintImage = lastFlag == "--gw-print-image"
	opts.Ctx = lastFlag == "--gw-ctx"
	opts.Help = lastFlag == "--gw-help"
}
