// Package dirtree models a scanned directory subtree.
//
// A DirTree holds one Directory record per directory reachable from the scan
// root through real (non-symlink) subdirectory edges. Each record lists only
// the immediate regular files and subdirectories of its directory, with every
// path canonicalized before it is stored. Symlinks, devices, sockets and pipes
// are never followed and never listed.
package dirtree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Error operations.
const (
	OpList    = "list"
	OpType    = "type"
	OpResolve = "resolve"
)

// ErrNotDirectory is reported when a scan root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Error records a failure to read one directory or one of its entries.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Directory is the immediate content of one directory at scan time.
// Records are built once by the reader and must not be modified afterwards.
type Directory struct {
	Path           string   `json:"path"`
	Files          []string `json:"files"`
	Subdirectories []string `json:"subdirectories"`
}

// IsEmpty reports whether the directory had neither files nor subdirectories.
func (d *Directory) IsEmpty() bool {
	return len(d.Files) == 0 && len(d.Subdirectories) == 0
}

// ReadDirectory lists path and classifies its entries into files and
// subdirectories. Any other entry kind is skipped.
func ReadDirectory(path string) (*Directory, error) {
	return readDirectory(path, nil)
}

// keepFunc decides whether a canonical child path is recorded.
type keepFunc func(path string, dir bool) bool

func readDirectory(path string, keep keepFunc) (*Directory, error) {
	dirPath, err := canonical(path)
	if err != nil {
		return nil, &Error{Op: OpResolve, Path: path, Err: err}
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, &Error{Op: OpList, Path: dirPath, Err: err}
	}

	dir := newDirectory(dirPath)

	for _, entry := range entries {
		entryPath := filepath.Join(dirPath, entry.Name())

		typ := entry.Type()
		if typ&fs.ModeType == fs.ModeIrregular {
			info, err := entry.Info()
			if err != nil {
				return nil, &Error{Op: OpType, Path: entryPath, Err: err}
			}
			typ = info.Mode().Type()
		}

		isDir := typ.IsDir()
		if !isDir && !typ.IsRegular() {
			continue
		}

		resolved, err := canonical(entryPath)
		if err != nil {
			return nil, &Error{Op: OpResolve, Path: entryPath, Err: err}
		}

		if keep != nil && !keep(resolved, isDir) {
			continue
		}

		if isDir {
			dir.Subdirectories = append(dir.Subdirectories, resolved)
		} else {
			dir.Files = append(dir.Files, resolved)
		}
	}

	return dir, nil
}

// canonical returns the absolute path with symlinks and relative segments
// resolved.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
