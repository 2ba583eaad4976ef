package dirtree

import (
	"path/filepath"
	"strings"
)

// matcher applies exclusion patterns relative to the scan root.
//
// Patterns ending in "/" exclude directories, either by base name or, when
// the pattern itself contains a separator, by root-relative path. Other
// patterns exclude files by base name, or by relative path when they contain
// a "/".
type matcher struct {
	root     string
	patterns []string
}

func newMatcher(root string, patterns []string) *matcher {
	return &matcher{root: root, patterns: patterns}
}

func (m *matcher) keep(path string, dir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return true
	}

	relPath, err := filepath.Rel(m.root, path)
	if err != nil {
		return true
	}
	relPath = filepath.ToSlash(relPath)
	base := filepath.Base(path)

	for _, pattern := range m.patterns {
		if strings.HasSuffix(pattern, "/") {
			if !dir {
				continue
			}
			dirPattern := strings.TrimSuffix(pattern, "/")
			if matched, _ := filepath.Match(dirPattern, base); matched || base == dirPattern {
				return false
			}
			if strings.Contains(dirPattern, "/") {
				if matched, _ := filepath.Match(dirPattern, relPath); matched {
					return false
				}
			}
			continue
		}

		if dir {
			continue
		}
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return false
		}
		if strings.Contains(pattern, "/") {
			if matched, err := filepath.Match(pattern, relPath); err == nil && matched {
				return false
			}
		}
	}
	return true
}
