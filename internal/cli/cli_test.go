package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserCommandAfterDash(t *testing.T) {
	opts, err := Parse([]string{"--gw-img=debian:bookworm", "--", "echo", "ok"})
	require.NoError(t, err)
	assert.Equal(t, "debian:bookworm", opts.Img)
	assert.Equal(t, []string{"echo", "ok"}, opts.UserCommand)
}

func TestParseRejectsNonGwFlagBeforeDash(t *testing.T) {
	_, err := Parse([]string{"--bogus", "--", "echo"})
	require.Error(t, err)
}

func TestParseRejectsBareArgBeforeDash(t *testing.T) {
	_, err := Parse([]string{"echo", "--", "ok"})
	require.Error(t, err)
}

func TestParseExtraArgsSplitsPosix(t *testing.T) {
	opts, err := Parse([]string{`--gw-extra-args=--memory=2g "a b"`, "--"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--memory=2g", "a b"}, opts.ExtraArgs)
}

func TestParseBadExtraArgsQuoting(t *testing.T) {
	_, err := Parse([]string{`--gw-extra-args=unterminated "quote`, "--"})
	require.Error(t, err)
}

func TestParseTerminalActionLastOneWins(t *testing.T) {
	opts, err := Parse([]string{"--gw-print", "--gw-ctx", "--"})
	require.NoError(t, err)
	assert.False(t, opts.Print)
	assert.True(t, opts.Ctx)
}

func TestParseNoUserCommandIsInteractiveIntent(t *testing.T) {
	opts, err := Parse([]string{"--gw-print"})
	require.NoError(t, err)
	assert.Empty(t, opts.UserCommand)
}
