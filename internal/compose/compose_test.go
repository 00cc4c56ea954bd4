package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griffithind/giftwrap/internal/cli"
	"github.com/griffithind/giftwrap/internal/config"
	gwcontext "github.com/griffithind/giftwrap/internal/context"
	"github.com/griffithind/giftwrap/internal/hostinfo"
)

func baseConfig() *config.Config {
	return &config.Config{
		BuildRoot:   "/home/dev/myproject",
		Image:       "debian:bookworm-slim",
		UserMapping: config.UserMappingHost,
	}
}

func baseHost() *hostinfo.HostInfo {
	return &hostinfo.HostInfo{UID: 1000, GID: 1000, Username: "dev", Home: "/home/dev"}
}

func TestComposeImagePrecedence(t *testing.T) {
	cfg := baseConfig()
	host := baseHost()

	spec, err := Compose(cfg, cli.CliOptions{Img: "override:latest"}, host, nil)
	require.NoError(t, err)
	assert.Equal(t, "override:latest", spec.ImageRef)

	cfg.Tag = "v1"
	spec, err = Compose(cfg, cli.CliOptions{}, host, nil)
	require.NoError(t, err)
	assert.Equal(t, "debian:bookworm-slim:v1", spec.ImageRef)

	sha := &gwcontext.Sha{Hex: "abcdef0123456789abcdef0123456789abcdef01"}
	cfg.Tag = ""
	spec, err = Compose(cfg, cli.CliOptions{}, host, sha)
	require.NoError(t, err)
	assert.Equal(t, "debian:bookworm-slim:gw-abcdef012345", spec.ImageRef)
}

func TestComposeHostnameFromBuildRootBasename(t *testing.T) {
	cfg := baseConfig()
	spec, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)
	assert.Equal(t, "myproject", spec.Hostname)
}

func TestComposeUserMapping(t *testing.T) {
	host := baseHost()

	cfg := baseConfig()
	cfg.UserMapping = config.UserMappingKeepID
	spec, err := Compose(cfg, cli.CliOptions{}, host, nil)
	require.NoError(t, err)
	assert.Equal(t, "0:0", spec.User)
	assert.True(t, spec.Flags.KeepID)

	cfg.UserMapping = config.UserMappingNone
	spec, err = Compose(cfg, cli.CliOptions{}, host, nil)
	require.NoError(t, err)
	assert.Equal(t, "", spec.User)

	cfg.UserMapping = config.UserMappingHost
	spec, err = Compose(cfg, cli.CliOptions{}, host, nil)
	require.NoError(t, err)
	assert.Equal(t, "1000:1000", spec.User)
}

func TestComposeMountsIncludesBuildRootAndAgent(t *testing.T) {
	cfg := baseConfig()
	spec, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)

	require.Len(t, spec.Mounts, 2)
	assert.Equal(t, cfg.BuildRoot, spec.Mounts[0].Host)
	assert.Equal(t, defaultContainerBuildRoot, spec.Mounts[0].Container)
	assert.Equal(t, AgentPath, spec.Mounts[1].Container)
	assert.True(t, spec.Mounts[1].RO)
}

func TestComposeEnvOverrideOrdering(t *testing.T) {
	cfg := baseConfig()
	cfg.EnvOverrides = []config.EnvOverride{
		{Name: "FOO", Op: "set", Value: "1"},
		{Name: "PATH", Op: "add", Value: "/opt/bin"},
		{Name: "FOO", Op: "del"},
	}
	spec, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)

	assert.NotContains(t, spec.Env, "FOO=1")
	assert.Contains(t, spec.Env, "PATH=/opt/bin")
}

func TestComposePersistedEnvNamesNotInjected(t *testing.T) {
	cfg := baseConfig()
	cfg.EnvOverrides = []config.EnvOverride{{Name: "SECRET", Op: "set", Value: "x"}}
	cfg.PersistEnvNames = []string{"SECRET"}

	spec, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)
	assert.Empty(t, spec.Env)
}

func TestComposeWorkdirDefault(t *testing.T) {
	cfg := baseConfig()
	spec, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultContainerBuildRoot, spec.Workdir)

	cfg.Workdir = "/custom"
	spec, err = Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/custom", spec.Workdir)
}

func TestComposeMountConflictDetected(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraShares = []config.ShareMount{{HostPath: "/tmp", ContainerPath: defaultContainerBuildRoot}}
	_, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.Error(t, err)
}

func TestComposeMissingExtraShareFailsBadShare(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraShares = []config.ShareMount{{HostPath: "/nonexistent/does-not-exist", ContainerPath: "/mnt/x"}}
	_, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.Error(t, err)
}

func TestComposeCommandLeadsWithAgentToken(t *testing.T) {
	cfg := baseConfig()
	spec, err := Compose(cfg, cli.CliOptions{}, baseHost(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent", "--spec-fd=3"}, spec.Command)
}
