package config

import (
	"os"
	"path/filepath"

	"github.com/griffithind/giftwrap/internal/gwerrors"
)

// configFileNames are checked in this order within a candidate directory;
// the dotfile wins when both are present (spec.md §6.4).
var configFileNames = []string{".giftwrap", "giftwrap"}

// Discover walks from startDir up through parent directories looking for
// a file named ".giftwrap" or "giftwrap". It returns the path to the
// config file found. The directory containing it is the build root
// (Config.BuildRoot, set by Parse).
func Discover(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", gwerrors.Wrap(err, gwerrors.KindIO, gwerrors.CodeIOUnclassified, "resolving start directory")
	}

	for {
		for _, name := range configFileNames {
			candidate := filepath.Join(dir, name)
			if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", gwerrors.New(gwerrors.KindConfig, gwerrors.CodeNotInBuildRoot,
				"no .giftwrap or giftwrap file found in "+startDir+" or any parent directory")
		}
		dir = parent
	}
}
