// Package dedup groups the files of a scanned tree by content fingerprint.
package dedup

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tidy-go/internal/dirtree"
	"tidy-go/internal/hash"
)

// Grouping maps each fingerprint to the files that produced it.
type Grouping map[hash.Fingerprint][]string

// Group is one fingerprint with its files.
type Group struct {
	Fingerprint hash.Fingerprint `json:"fingerprint"`
	Paths       []string         `json:"paths"`
}

// Failure is a file that could not be fingerprinted.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Result holds the grouping of every file that was fingerprinted.
type Result struct {
	Algorithm hash.Algorithm
	Groups    Grouping
	// Failures is only populated with Options.ContinueOnError.
	Failures []Failure
}

// Options controls the fingerprint pass.
type Options struct {
	Workers   int
	Algorithm hash.Algorithm
	// ContinueOnError groups the readable files and reports the rest in
	// Result.Failures instead of failing the analysis.
	ContinueOnError bool
	// Progress, if set, is called once per fingerprinted file. It may be
	// called from several goroutines.
	Progress func(path string)
}

type fileResult struct {
	fingerprint hash.Fingerprint
	err         error
}

// GroupByContent fingerprints every file of tree in parallel and groups the
// paths by fingerprint. Unless opts.ContinueOnError is set, the first
// unreadable file fails the whole analysis and no grouping is returned.
func GroupByContent(ctx context.Context, tree *dirtree.DirTree, opts Options) (*Result, error) {
	files := tree.Files()
	return GroupFiles(ctx, files, opts)
}

// GroupFiles is GroupByContent over an explicit file list.
func GroupFiles(ctx context.Context, files []string, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Algorithm == "" {
		opts.Algorithm = hash.DefaultAlgorithm
	}

	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i, path := range files {
		i, path := i, path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fp, err := hash.HashFile(path, opts.Algorithm)
			if err != nil {
				if !opts.ContinueOnError {
					return Failure{Path: path, Err: err}
				}
				results[i].err = err
				return nil
			}
			results[i].fingerprint = fp
			if opts.Progress != nil {
				opts.Progress(path)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to hash files: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Algorithm: opts.Algorithm,
		Groups:    make(Grouping),
		Failures:  make([]Failure, 0),
	}
	for i, path := range files {
		if results[i].err != nil {
			result.Failures = append(result.Failures, Failure{Path: path, Err: results[i].err})
			continue
		}
		fp := results[i].fingerprint
		result.Groups[fp] = append(result.Groups[fp], path)
	}

	log.WithFields(log.Fields{
		"files":     len(files),
		"groups":    len(result.Groups),
		"failures":  len(result.Failures),
		"algorithm": opts.Algorithm,
		"workers":   opts.Workers,
	}).Debug("files grouped by content")

	return result, nil
}

// Duplicates returns the groups holding more than one path. Paths within a
// group are sorted and groups are ordered by their first path.
func (r *Result) Duplicates() []Group {
	dups := make([]Group, 0)
	for fp, paths := range r.Groups {
		if len(paths) < 2 {
			continue
		}
		sortedPaths := append([]string(nil), paths...)
		sort.Strings(sortedPaths)
		dups = append(dups, Group{Fingerprint: fp, Paths: sortedPaths})
	}
	sort.Slice(dups, func(i, j int) bool {
		return dups[i].Paths[0] < dups[j].Paths[0]
	})
	return dups
}

// FileCount returns the number of grouped files.
func (r *Result) FileCount() int {
	n := 0
	for _, paths := range r.Groups {
		n += len(paths)
	}
	return n
}

// Fingerprints inverts the grouping into path -> fingerprint.
func (r *Result) Fingerprints() map[string]hash.Fingerprint {
	out := make(map[string]hash.Fingerprint, r.FileCount())
	for fp, paths := range r.Groups {
		for _, path := range paths {
			out[path] = fp
		}
	}
	return out
}
