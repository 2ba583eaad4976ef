package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

type Bar struct {
	total       int64
	current     int64
	width       int
	writer      io.Writer
	mu          sync.Mutex
	currentDirs map[string]bool
	enabled     bool
	lastUpdate  time.Time
}

// New returns a bar writing to stderr, enabled only when stderr is a
// terminal.
func New(total int64) *Bar {
	return NewWithWriter(total, os.Stderr, IsTerminal(os.Stderr))
}

func NewWithWriter(total int64, w io.Writer, enabled bool) *Bar {
	return &Bar{
		total:       total,
		width:       50,
		writer:      w,
		currentDirs: make(map[string]bool),
		enabled:     enabled,
		lastUpdate:  time.Now(),
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Done records one finished file. It is safe for concurrent use and
// matches the dedup progress callback signature.
func (b *Bar) Done(path string) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.currentDirs[filepath.Dir(path)] = true
	b.current++

	// Update at most every 100ms to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) > 100*time.Millisecond || b.current == b.total {
		b.lastUpdate = now
		b.render()
	}
}

// Current returns the number of files recorded so far.
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// render must be called with mu already locked
func (b *Bar) render() {
	if b.total == 0 {
		return
	}

	percent := float64(b.current) / float64(b.total) * 100
	filledWidth := int(float64(b.width) * float64(b.current) / float64(b.total))
	if filledWidth > b.width {
		filledWidth = b.width
	}

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	dirs := make([]string, 0, len(b.currentDirs))
	for dir := range b.currentDirs {
		dirs = append(dirs, filepath.Base(dir))
	}

	var dirDisplay string
	if len(dirs) > 0 {
		if len(dirs) > 3 {
			dirDisplay = fmt.Sprintf(" | %s, %s, %s +%d more", dirs[0], dirs[1], dirs[2], len(dirs)-3)
		} else {
			dirDisplay = " | " + strings.Join(dirs, ", ")
		}
	}
	// only directories touched since the last render are shown
	clear(b.currentDirs)

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K[%s] %3d%% (%d/%d)%s",
		bar, int(percent), b.current, b.total, dirDisplay)
}

func (b *Bar) Finish() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.total
	b.render()
	fmt.Fprintf(b.writer, "\n")
}
