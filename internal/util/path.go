package util

import (
	"os"
	"path/filepath"
)

// GetProjectRootDir returns PROJECT_ROOT_DIR if set, otherwise the nearest
// parent of the working directory that contains a go.mod.
func GetProjectRootDir() string {
	if dir, ok := os.LookupEnv("PROJECT_ROOT_DIR"); ok {
		return dir
	}

	dir, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}
