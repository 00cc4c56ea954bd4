// Package config implements discovery, parsing, and the env-override
// protocol for the build-root contract (spec.md §4.1).
package config

// UserMapping selects how the container user is derived from the host
// user (spec.md §3, §4.4 step 3).
type UserMapping string

// Valid UserMapping values.
const (
	UserMappingHost    UserMapping = "host"
	UserMappingKeepID  UserMapping = "keepid"
	UserMappingNone    UserMapping = "none"
)

// ShareMount is one entry of Config.ExtraShares.
type ShareMount struct {
	HostPath      string
	ContainerPath string
	RO            bool
}

// EnvOverride is one entry of Config.EnvOverrides: a single declarative
// environment mutation applied at compose time (spec.md §4.4 step 5).
// Despite the name, this is config-file data — distinct from the
// GW_USER_OPT_* process-env override protocol that mutates Config itself.
type EnvOverride struct {
	Name  string
	Op    string // "set", "add", or "del"
	Value string
}

// Config is the parsed build-root contract (spec.md §3).
type Config struct {
	BuildRoot string

	Image string
	Tag   string

	ExtraShares  []ShareMount
	ShareGitDir  bool
	ExtraHosts   []string
	EnvOverrides []EnvOverride

	PersistEnvNames []string

	Prelaunch  string
	ExtraShell string
	PrefixCmd  []string

	Hostname string
	Workdir  string

	UserMapping UserMapping
}

// WantsContentAddressing reports whether this Config's image should be
// tagged from a ContextSha rather than Config.Tag (spec.md §4.4 step 1).
//
// spec.md describes Config.Tag as "mutually exclusive with content-
// addressed tagging" but never names the field that turns content
// addressing on. We resolve that gap (documented in DESIGN.md) as: a
// build root that defines a content selection (has at least one
// .gwinclude file) and has not pinned a fixed Tag wants content
// addressing by default.
func (c *Config) WantsContentAddressing(hasGwinclude bool) bool {
	return c.Tag == "" && hasGwinclude
}

func newDefaultConfig(buildRoot string) *Config {
	return &Config{
		BuildRoot:   buildRoot,
		UserMapping: UserMappingHost,
	}
}
