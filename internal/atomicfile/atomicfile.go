// Package atomicfile implements the one atomic-write primitive spec §6
// requires of every JSON export: write-to-tmp, then rename. Shared by
// internal/peerdir, internal/pathctl, and internal/observer so there is a
// single place that gets the rename-same-filesystem requirement right: the
// temp file is created in the target's own directory (mirrors the teacher's
// fs package staging idiom, reused here for IPC exports rather than object
// data). No fsync is done before the rename.
package atomicfile

import (
	"os"
	"path/filepath"
)

// WriteJSON writes data to path via a temp sibling file followed by an
// atomic rename, so a reader (the Ops UI, the Observer) never sees a
// partially-written file under the final name.
func WriteJSON(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
