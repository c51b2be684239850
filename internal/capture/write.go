package capture

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// writeAtomic writes data beside dest and renames it over dest, so a failed
// write never leaves a truncated PNG behind.
func writeAtomic(fs afero.Fs, dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(dest)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Rename(tmpName, dest); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
