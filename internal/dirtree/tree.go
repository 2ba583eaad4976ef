package dirtree

import (
	"context"
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Skipped is a directory that could not be read when the build continues
// past errors.
type Skipped struct {
	Path string
	Err  error
}

// DirTree is the fully walked subtree below Root. It is immutable once
// returned by Build or BuildConcurrent.
type DirTree struct {
	Root        string
	Directories []*Directory
	// Skipped is only populated by builds using WithContinueOnError.
	Skipped []Skipped

	index map[string]int
}

func newDirTree(root string) *DirTree {
	return &DirTree{
		Root:        root,
		Directories: make([]*Directory, 0),
		index:       make(map[string]int),
	}
}

func (t *DirTree) add(dir *Directory) {
	t.index[dir.Path] = len(t.Directories)
	t.Directories = append(t.Directories, dir)
}

// Lookup returns the record for a canonical directory path.
func (t *DirTree) Lookup(path string) (*Directory, bool) {
	i, ok := t.index[path]
	if !ok {
		return nil, false
	}
	return t.Directories[i], true
}

// Files flattens the files of every directory, each exactly once.
func (t *DirTree) Files() []string {
	n := 0
	for _, dir := range t.Directories {
		n += len(dir.Files)
	}
	files := make([]string, 0, n)
	for _, dir := range t.Directories {
		files = append(files, dir.Files...)
	}
	return files
}

// DirectoryPaths returns the path of every directory record.
func (t *DirTree) DirectoryPaths() []string {
	paths := make([]string, 0, len(t.Directories))
	for _, dir := range t.Directories {
		paths = append(paths, dir.Path)
	}
	return paths
}

// EmptyDirectories is EmptyDirectories(t).
func (t *DirTree) EmptyDirectories() []string {
	return EmptyDirectories(t)
}

// EmptyDirectories returns the directories that held no files and no
// subdirectories at scan time. A directory whose only children are empty
// directories is not itself empty.
func EmptyDirectories(t *DirTree) []string {
	empty := make([]string, 0)
	for _, dir := range t.Directories {
		if dir.IsEmpty() {
			empty = append(empty, dir.Path)
		}
	}
	return empty
}

// Option configures a tree build.
type Option func(*buildOptions)

type buildOptions struct {
	skip            []string
	continueOnError bool
	workers         int
}

// WithSkip excludes entries matching the given patterns.
func WithSkip(patterns []string) Option {
	return func(o *buildOptions) {
		o.skip = patterns
	}
}

// WithContinueOnError records unreadable directories in DirTree.Skipped
// instead of failing the build. A root that cannot be read still fails.
func WithContinueOnError() Option {
	return func(o *buildOptions) {
		o.continueOnError = true
	}
}

// WithWorkers sets the number of concurrent readers used by BuildConcurrent.
func WithWorkers(n int) Option {
	return func(o *buildOptions) {
		o.workers = n
	}
}

func newBuildOptions(opts []Option) buildOptions {
	o := buildOptions{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	return o
}

// Build walks root with an explicit pending list and returns one Directory
// record per reachable directory. By default the first error aborts the
// build and no tree is returned.
func Build(ctx context.Context, root string, opts ...Option) (*DirTree, error) {
	o := newBuildOptions(opts)

	rootPath, err := canonical(root)
	if err != nil {
		return nil, &Error{Op: OpResolve, Path: root, Err: err}
	}

	m := newMatcher(rootPath, o.skip)
	tree := newDirTree(rootPath)

	pending := []string{rootPath}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		dir, err := readDirectory(next, m.keep)
		if err != nil {
			if o.continueOnError && next != rootPath {
				log.WithFields(log.Fields{
					"path":  next,
					"error": err,
				}).Warn("skipping unreadable directory")
				tree.Skipped = append(tree.Skipped, Skipped{Path: next, Err: err})
				continue
			}
			return nil, fmt.Errorf("failed to build tree: %w", err)
		}

		pending = append(pending, dir.Subdirectories...)
		tree.add(dir)
	}

	log.WithFields(log.Fields{
		"root":        rootPath,
		"directories": len(tree.Directories),
		"skipped":     len(tree.Skipped),
	}).Debug("tree built")

	return tree, nil
}
