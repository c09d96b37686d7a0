package fileunit

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPattern places every saved resource in a per-case directory.
const DefaultPattern = "%u/%c_%f"

// OutputPath expands pattern for one resource: %u is the case uid, %c the
// descriptor column and %f the base name of the source file. A relative result
// is joined to root.
func OutputPath(pattern, root, uid, column, src string) string {
	if pattern == "" {
		pattern = DefaultPattern
	}
	p := strings.NewReplacer("%u", uid, "%c", column, "%f", filepath.Base(src)).Replace(pattern)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place, so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
