// Package vterm maintains a VT100/ANSI-interpreted screen image for a
// single session and exposes it as plain text for the state classifiers.
package vterm

import (
	"regexp"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

const maxScrollbackLines = 50000

const (
	DefaultCols = 120
	DefaultRows = 40
)

// ansiEscape matches ANSI/VT escape sequences so LinesTail can return
// plain text equivalent to what a human would see.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\].*?\x07|\x1b[()][0-9A-Za-z]`)

// Buffer is the C1 virtual terminal buffer: it advances a VT emulator on
// PTY output and answers linesTail/resize/feed.
type Buffer struct {
	emu        *vt.Emulator
	scrollback []string
	sbHead     int
	sbLen      int

	mu           sync.Mutex
	altScreen    bool
	cursorHidden bool
	cols, rows   int
}

// New creates a Buffer with the given dimensions.
func New(cols, rows int) *Buffer {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	b := &Buffer{
		emu:        vt.NewEmulator(cols, rows),
		scrollback: make([]string, maxScrollbackLines),
		cols:       cols,
		rows:       rows,
	}
	b.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if b.altScreen {
				return
			}
			for _, line := range lines {
				rendered := line.Render()
				if b.sbLen == len(b.scrollback) {
					b.scrollback[b.sbHead] = ""
				}
				b.scrollback[b.sbHead] = rendered
				b.sbHead = (b.sbHead + 1) % len(b.scrollback)
				if b.sbLen < len(b.scrollback) {
					b.sbLen++
				}
			}
		},
		ScrollbackClear: func() {
			for i := range b.scrollback {
				b.scrollback[i] = ""
			}
			b.sbLen = 0
			b.sbHead = 0
		},
		AltScreen: func(on bool) {
			b.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			b.cursorHidden = !visible
		},
	})
	return b
}

// Feed advances the parser. Side effect only.
func (b *Buffer) Feed(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emu.Write(p)
}

// Resize adjusts the screen, preserving in-flight parser state.
func (b *Buffer) Resize(cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emu.Resize(cols, rows)
	b.cols = cols
	b.rows = rows
}

// LinesTail returns the last n non-empty lines as plain text, trimmed of
// trailing whitespace, top-to-bottom ordered. Spinner/control frames that
// rewrite the same line do not create multiple lines, because they are
// read from the current screen grid rather than accumulated scrollback.
func (b *Buffer) LinesTail(n int) []string {
	b.mu.Lock()
	rendered := b.emu.Render()
	scrollback := b.scrollbackLines()
	b.mu.Unlock()

	var all []string
	for _, l := range scrollback {
		all = append(all, cleanLine(l))
	}
	for _, l := range strings.Split(rendered, "\n") {
		all = append(all, cleanLine(l))
	}

	var nonEmpty []string
	for _, l := range all {
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if n <= 0 || n >= len(nonEmpty) {
		return nonEmpty
	}
	return nonEmpty[len(nonEmpty)-n:]
}

// Close releases the emulator resources.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emu.Close()
}

// scrollbackLines returns all scrollback lines oldest-first. Must be
// called with mu held.
func (b *Buffer) scrollbackLines() []string {
	if b.sbLen == 0 {
		return nil
	}
	lines := make([]string, b.sbLen)
	start := (b.sbHead - b.sbLen + len(b.scrollback)) % len(b.scrollback)
	for i := range b.sbLen {
		lines[i] = b.scrollback[(start+i)%len(b.scrollback)]
	}
	return lines
}

func cleanLine(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.TrimRight(s, " \t\r")
}
