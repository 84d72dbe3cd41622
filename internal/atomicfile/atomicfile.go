// Package atomicfile implements the temp-file+fsync+rename write pattern
// shared by session.FileStorage, updates.FileStorage and entity.FileStorage
// (SPEC_FULL.md §4.7, "Writes must be atomic").
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
)

// Write atomically replaces path's contents with data, restricting the
// final file's permissions to perm. The temp file lives alongside path so
// the final rename stays on the same filesystem volume.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "mkdir")
	}

	tmp, err := os.CreateTemp(dir, ".atomicfile-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "fsync temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename temp file")
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}
	return nil
}
