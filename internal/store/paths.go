package store

import "path/filepath"

// DirName is the name of the per-project storage directory.
const DirName = ".abtest"

// LocalPath returns the storage directory for the given project root.
// Each directory acts as one storage origin.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}
