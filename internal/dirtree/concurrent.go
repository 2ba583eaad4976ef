package dirtree

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	log "github.com/sirupsen/logrus"
)

// BuildConcurrent produces the same tree as Build but reads directories in
// parallel. Directory records are ordered by path and their entries by name.
func BuildConcurrent(ctx context.Context, root string, opts ...Option) (*DirTree, error) {
	o := newBuildOptions(opts)

	rootPath, err := canonical(root)
	if err != nil {
		return nil, &Error{Op: OpResolve, Path: root, Err: err}
	}

	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, &Error{Op: OpList, Path: rootPath, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Op: OpList, Path: rootPath, Err: ErrNotDirectory}
	}

	m := newMatcher(rootPath, o.skip)

	var (
		mu      sync.Mutex
		records = map[string]*Directory{rootPath: newDirectory(rootPath)}
		skipped []Skipped
	)
	record := func(path string) *Directory {
		dir, ok := records[path]
		if !ok {
			dir = newDirectory(path)
			records[path] = dir
		}
		return dir
	}

	conf := &fastwalk.Config{
		Follow:     false,
		NumWorkers: o.workers,
	}

	walkErr := fastwalk.Walk(conf, rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if o.continueOnError && path != rootPath {
				mu.Lock()
				delete(records, path)
				skipped = append(skipped, Skipped{Path: path, Err: err})
				mu.Unlock()
				log.WithFields(log.Fields{
					"path":  path,
					"error": err,
				}).Warn("skipping unreadable directory")
				return nil
			}
			return &Error{Op: OpList, Path: path, Err: err}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if path == rootPath {
			return nil
		}

		parent := filepath.Dir(path)
		typ := d.Type()

		switch {
		case typ.IsDir():
			if !m.keep(path, true) {
				return filepath.SkipDir
			}
			mu.Lock()
			p := record(parent)
			p.Subdirectories = append(p.Subdirectories, path)
			record(path)
			mu.Unlock()
		case typ.IsRegular():
			if !m.keep(path, false) {
				return nil
			}
			mu.Lock()
			p := record(parent)
			p.Files = append(p.Files, path)
			mu.Unlock()
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to build tree: %w", walkErr)
	}

	paths := make([]string, 0, len(records))
	for path := range records {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	tree := newDirTree(rootPath)
	for _, path := range paths {
		dir := records[path]
		sort.Strings(dir.Files)
		sort.Strings(dir.Subdirectories)
		tree.add(dir)
	}
	sort.Slice(skipped, func(i, j int) bool {
		return skipped[i].Path < skipped[j].Path
	})
	tree.Skipped = skipped

	log.WithFields(log.Fields{
		"root":        rootPath,
		"directories": len(tree.Directories),
		"skipped":     len(tree.Skipped),
		"workers":     o.workers,
	}).Debug("tree built concurrently")

	return tree, nil
}

func newDirectory(path string) *Directory {
	return &Directory{
		Path:           path,
		Files:          make([]string, 0),
		Subdirectories: make([]string, 0),
	}
}
