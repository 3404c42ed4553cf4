// Package output writes pipeline artifacts so that a failed run never leaves
// a partially rendered set of files in place.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "output")

// stagedFile is an output written next to its destination and not yet renamed into place.
type stagedFile struct {
	tmpPath string
	path    string
}

// stage writes data to a temporary file in the directory of path.
func stage(path string, data []byte) (stagedFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return stagedFile{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return stagedFile{}, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return stagedFile{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return stagedFile{}, fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return stagedFile{}, fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return stagedFile{}, fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return stagedFile{tmpPath: tmpPath, path: path}, nil
}

func discard(files []stagedFile) {
	for _, f := range files {
		_ = os.Remove(f.tmpPath)
	}
}

// WriteFile writes a single file through a temp file and rename.
func WriteFile(path string, data []byte) error {
	return WriteFiles(map[string][]byte{path: data}, []string{path})
}

// WriteFiles writes every file or none: all contents are staged first and only
// renamed into place once staging succeeded. When a rename fails, the files
// already moved are restored to their previous content, or removed when they
// did not exist before.
func WriteFiles(files map[string][]byte, order []string) error {
	staged := make([]stagedFile, 0, len(order))
	for _, path := range order {
		f, err := stage(path, files[path])
		if err != nil {
			discard(staged)
			return err
		}
		staged = append(staged, f)
	}

	previous := make([]snapshot, len(staged))
	for i, f := range staged {
		snap, err := takeSnapshot(f.path)
		if err != nil {
			discard(staged)
			return err
		}
		previous[i] = snap
	}

	for i, f := range staged {
		if err := os.Rename(f.tmpPath, f.path); err != nil {
			discard(staged[i:])
			rollback(previous[:i])
			return fmt.Errorf("failed to move %s into place: %w", f.path, err)
		}
	}
	for _, f := range staged {
		logger.WithField("filePath", f.path).Info("Written file")
	}
	return nil
}

// snapshot is the content a destination had before WriteFiles replaced it.
type snapshot struct {
	path   string
	exists bool
	data   []byte
	mode   os.FileMode
}

func takeSnapshot(path string) (snapshot, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{path: path}, nil
	}
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		// Renaming onto it fails, or replaces a link we do not restore.
		return snapshot{path: path, exists: true, mode: info.Mode()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return snapshot{path: path, exists: true, data: data, mode: info.Mode().Perm()}, nil
}

// rollback puts every destination back the way its snapshot found it.
func rollback(snapshots []snapshot) {
	for _, snap := range snapshots {
		entry := logger.WithField("filePath", snap.path)
		if !snap.exists {
			if err := os.Remove(snap.path); err != nil {
				entry.WithError(err).Error("Failed to remove file during rollback")
			}
			continue
		}
		if snap.mode.Type() != 0 {
			entry.Warn("Cannot restore non-regular file during rollback")
			continue
		}
		f, err := stage(snap.path, snap.data)
		if err == nil {
			err = os.Chmod(f.tmpPath, snap.mode)
			if err == nil {
				err = os.Rename(f.tmpPath, snap.path)
			}
			if err != nil {
				discard([]stagedFile{f})
			}
		}
		if err != nil {
			entry.WithError(err).Error("Failed to restore file during rollback")
			continue
		}
		entry.Warn("Restored previous file after a failed write")
	}
}
