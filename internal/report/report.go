// Package report renders scan results as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facette/natsort"

	"tidy-go/internal/dedup"
	"tidy-go/internal/dirtree"
)

// TabSpacing is the number of spaces between tabwriter columns.
const TabSpacing = 2

type DuplicateGroup struct {
	Fingerprint string   `json:"fingerprint"`
	Size        int64    `json:"size"`
	Wasted      int64    `json:"wasted"`
	Paths       []string `json:"paths"`
}

type Problem struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Scan is the printable outcome of scanning one root.
type Scan struct {
	Root             string           `json:"root"`
	Directories      int              `json:"directories"`
	Files            int              `json:"files"`
	EmptyDirectories []string         `json:"empty_directories"`
	Duplicates       []DuplicateGroup `json:"duplicates"`
	SkippedDirs      []Problem        `json:"skipped_directories,omitempty"`
	FailedFiles      []Problem        `json:"failed_files,omitempty"`
	Elapsed          time.Duration    `json:"elapsed"`
}

// NewScan summarizes a tree and its grouping. Duplicate groups whose files
// are smaller than minSize are left out.
func NewScan(tree *dirtree.DirTree, result *dedup.Result, minSize int64) (*Scan, error) {
	scan := &Scan{
		Root:             tree.Root,
		Directories:      len(tree.Directories),
		Files:            result.FileCount(),
		EmptyDirectories: append([]string(nil), tree.EmptyDirectories()...),
		Duplicates:       make([]DuplicateGroup, 0),
	}
	natsort.Sort(scan.EmptyDirectories)

	for _, group := range result.Duplicates() {
		info, err := os.Stat(group.Paths[0])
		if err != nil {
			return nil, fmt.Errorf("failed to stat duplicate: %w", err)
		}
		if info.Size() < minSize {
			continue
		}
		paths := append([]string(nil), group.Paths...)
		natsort.Sort(paths)
		scan.Duplicates = append(scan.Duplicates, DuplicateGroup{
			Fingerprint: group.Fingerprint.String(),
			Size:        info.Size(),
			Wasted:      info.Size() * int64(len(paths)-1),
			Paths:       paths,
		})
	}
	sort.SliceStable(scan.Duplicates, func(i, j int) bool {
		a, b := scan.Duplicates[i], scan.Duplicates[j]
		if a.Wasted != b.Wasted {
			return a.Wasted > b.Wasted
		}
		return natsort.Compare(a.Paths[0], b.Paths[0])
	})

	for _, s := range tree.Skipped {
		scan.SkippedDirs = append(scan.SkippedDirs, Problem{Path: s.Path, Error: s.Err.Error()})
	}
	for _, f := range result.Failures {
		scan.FailedFiles = append(scan.FailedFiles, Problem{Path: f.Path, Error: f.Err.Error()})
	}

	return scan, nil
}

// Wasted returns the bytes reclaimable by keeping one file per group.
func (s *Scan) Wasted() int64 {
	var total int64
	for _, g := range s.Duplicates {
		total += g.Wasted
	}
	return total
}

// PrintJSON outputs scans in JSON format.
func PrintJSON(scans []*Scan, w io.Writer) error {
	data, err := json.MarshalIndent(scans, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return err
	}

	return nil
}

// PrintText outputs scans in human-readable form.
func PrintText(scans []*Scan, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, TabSpacing, ' ', 0)

	for i, scan := range scans {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "Root: %s\n", scan.Root)

		fmt.Fprintf(tw, "\nEmpty directories (%d):\n", len(scan.EmptyDirectories))
		for _, dir := range scan.EmptyDirectories {
			fmt.Fprintf(tw, "  %s\n", dir)
		}

		fmt.Fprintf(tw, "\nDuplicate groups (%d):\n", len(scan.Duplicates))
		for n, group := range scan.Duplicates {
			fmt.Fprintf(tw, "  #%d\t%s x %d\t(%s reclaimable)\t%s\n",
				n+1, humanize.IBytes(uint64(group.Size)), len(group.Paths),
				humanize.IBytes(uint64(group.Wasted)), group.Fingerprint)
			for _, path := range group.Paths {
				fmt.Fprintf(tw, "    - %s\t\t\t\n", path)
			}
		}

		if len(scan.SkippedDirs) > 0 {
			fmt.Fprintf(tw, "\nSkipped directories (%d):\n", len(scan.SkippedDirs))
			for _, p := range scan.SkippedDirs {
				fmt.Fprintf(tw, "  %s\t%s\n", p.Path, p.Error)
			}
		}
		if len(scan.FailedFiles) > 0 {
			fmt.Fprintf(tw, "\nUnreadable files (%d):\n", len(scan.FailedFiles))
			for _, p := range scan.FailedFiles {
				fmt.Fprintf(tw, "  %s\t%s\n", p.Path, p.Error)
			}
		}

		fmt.Fprintf(tw, "\nStats:\t\n")
		fmt.Fprintf(tw, "Directories:\t%d\n", scan.Directories)
		fmt.Fprintf(tw, "Files:\t%d\n", scan.Files)
		fmt.Fprintf(tw, "Reclaimable:\t%s (%d bytes)\n", humanize.IBytes(uint64(scan.Wasted())), scan.Wasted())
		fmt.Fprintf(tw, "Elapsed:\t%v\n", scan.Elapsed)
	}

	return tw.Flush()
}
