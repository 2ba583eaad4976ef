package compare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"tidy-go/internal/snapshot"
)

type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Modified ChangeType = "MODIFIED"
	Deleted  ChangeType = "DELETED"
)

type Change struct {
	Type    ChangeType
	Path    string
	OldData *snapshot.FileData
	NewData *snapshot.FileData
}

type CompareResult struct {
	Added    []Change
	Modified []Change
	Deleted  []Change
}

func (r *CompareResult) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Modified) > 0 || len(r.Deleted) > 0
}

// Compare diffs two snapshots by relative path and fingerprint. Snapshots
// with the same Merkle root and algorithm are identical and skip the walk.
func Compare(oldSnap, newSnap *snapshot.Snapshot) (*CompareResult, error) {
	result := &CompareResult{
		Added:    make([]Change, 0),
		Modified: make([]Change, 0),
		Deleted:  make([]Change, 0),
	}

	if oldSnap.Algorithm != newSnap.Algorithm {
		return nil, fmt.Errorf("cannot compare %s snapshot with %s snapshot", oldSnap.Algorithm, newSnap.Algorithm)
	}
	if oldSnap.MerkleRoot != "" && oldSnap.MerkleRoot == newSnap.MerkleRoot {
		return result, nil
	}

	// Check for added and modified files
	for path, newData := range newSnap.Files {
		if oldData, exists := oldSnap.Files[path]; exists {
			if oldData.Fingerprint != newData.Fingerprint {
				result.Modified = append(result.Modified, Change{
					Type:    Modified,
					Path:    path,
					OldData: &oldData,
					NewData: &newData,
				})
			}
		} else {
			result.Added = append(result.Added, Change{
				Type:    Added,
				Path:    path,
				NewData: &newData,
			})
		}
	}

	// Check for deleted files
	for path, oldData := range oldSnap.Files {
		if _, exists := newSnap.Files[path]; !exists {
			result.Deleted = append(result.Deleted, Change{
				Type:    Deleted,
				Path:    path,
				OldData: &oldData,
			})
		}
	}

	// Sort for deterministic output
	for _, changes := range [][]Change{result.Added, result.Modified, result.Deleted} {
		sort.Slice(changes, func(i, j int) bool {
			return changes[i].Path < changes[j].Path
		})
	}

	return result, nil
}

func FormatReport(result *CompareResult) string {
	if !result.HasChanges() {
		return "No changes detected."
	}

	var report strings.Builder
	report.WriteString("Changes detected:\n\n")

	if len(result.Added) > 0 {
		fmt.Fprintf(&report, "ADDED (%d files):\n", len(result.Added))
		for _, change := range result.Added {
			fmt.Fprintf(&report, "  + %s (fingerprint: %s, size: %s)\n",
				change.Path, change.NewData.Fingerprint, humanize.IBytes(uint64(change.NewData.Size)))
		}
		report.WriteString("\n")
	}

	if len(result.Modified) > 0 {
		fmt.Fprintf(&report, "MODIFIED (%d files):\n", len(result.Modified))
		for _, change := range result.Modified {
			fmt.Fprintf(&report, "  ~ %s\n", change.Path)
			fmt.Fprintf(&report, "    Old: fingerprint=%s, size=%s, modified=%s\n",
				change.OldData.Fingerprint, humanize.IBytes(uint64(change.OldData.Size)), change.OldData.ModTime.Format("2006-01-02"))
			fmt.Fprintf(&report, "    New: fingerprint=%s, size=%s, modified=%s\n",
				change.NewData.Fingerprint, humanize.IBytes(uint64(change.NewData.Size)), change.NewData.ModTime.Format("2006-01-02"))
		}
		report.WriteString("\n")
	}

	if len(result.Deleted) > 0 {
		fmt.Fprintf(&report, "DELETED (%d files):\n", len(result.Deleted))
		for _, change := range result.Deleted {
			fmt.Fprintf(&report, "  - %s (fingerprint: %s, size: %s)\n",
				change.Path, change.OldData.Fingerprint, humanize.IBytes(uint64(change.OldData.Size)))
		}
		report.WriteString("\n")
	}

	fmt.Fprintf(&report, "Summary: %d added, %d modified, %d deleted\n",
		len(result.Added), len(result.Modified), len(result.Deleted))

	return report.String()
}
