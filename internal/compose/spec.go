// Package compose implements spec.md §4.4: the pure function from
// (Config, CliOptions, HostInfo, ContextSha?) to a ContainerSpec.
package compose

// Mount is one bind mount entry, host path to container path.
type Mount struct {
	Host      string
	Container string
	RO        bool
}

// Flags carries the runtime invocation switches that aren't mounts,
// env, or positional args.
type Flags struct {
	Interactive       bool
	TTY               bool
	RM                bool
	Init              bool
	Privileged        bool
	KeepID            bool
	ExtraRuntimeArgs  []string
}

// SpecRef describes how the InternalSpec is handed to the agent.
type SpecRef struct {
	FD   int    // 0 if unused
	File string // "" if unused
}

// ContainerSpec is the canonical pre-argv representation of one
// container invocation (spec.md §3 "ContainerSpec").
type ContainerSpec struct {
	ImageRef   string
	Hostname   string
	Workdir    string
	User       string // "uid:gid", or "" when user_mapping is none
	Entrypoint string
	Mounts     []Mount
	Env        []string
	ExtraHosts []string
	Flags      Flags
	SpecRef    SpecRef
	Command    []string

	// PersistEnvContainerPath is the container-visible path of the
	// persisted-env file (spec.md §6.2's "persist_env_path"), derived
	// from the build-root mount so no extra mount is needed. Empty when
	// Config.persist_env_names is empty.
	PersistEnvContainerPath string
}
