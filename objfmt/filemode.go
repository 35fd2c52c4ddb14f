package objfmt

import "fmt"

// FileMode is the octal mode stored on a tree entry.
type FileMode uint32

const (
	// Regular is a non-executable file (0100644).
	Regular FileMode = 0o100644
	// Executable is an executable file (0100755).
	Executable FileMode = 0o100755
	// Dir is a subtree (040000).
	Dir FileMode = 0o040000
	// Symlink is a symbolic link whose blob holds the link target.
	Symlink FileMode = 0o120000
	// Submodule is a gitlink entry pointing at another repository's commit.
	Submodule FileMode = 0o160000
)

// IsDir reports whether m denotes a subtree.
func (m FileMode) IsDir() bool { return m == Dir }

// Valid reports whether m is one of the modes this core understands.
// Symlink and Submodule are accepted as optional extensions per the data
// model (§3) but never produced by the merge/workspace layers.
func (m FileMode) Valid() bool {
	switch m {
	case Regular, Executable, Dir, Symlink, Submodule:
		return true
	default:
		return false
	}
}

func (m FileMode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}
