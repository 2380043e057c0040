package colorize

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/term"
)

var forced atomic.Int32 // 0 auto, 1 on, -1 off

// SetEnabled overrides detection. Used by --color.
func SetEnabled(on bool) {
	if on {
		forced.Store(1)
	} else {
		forced.Store(-1)
	}
}

// Detect enables colors when f is a terminal and the environment does not
// disable them.
func Detect(f *os.File) {
	SetEnabled(IsTerminal(f) && !envDisabled())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func envDisabled() bool {
	return os.Getenv("LKTRACE_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

// IsDisabled returns true if colors are disabled via environment or
// SetEnabled.
func IsDisabled() bool {
	switch forced.Load() {
	case 1:
		return false
	case -1:
		return true
	}
	return envDisabled()
}

// highlighter is the chroma pipeline for gas syntax, resolved once.
var highlighter struct {
	once      sync.Once
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter chroma.Formatter
}

func first[T any](get func(string) T, ok func(T) bool, names ...string) (T, bool) {
	var zero T
	for _, name := range names {
		if v := get(name); ok(v) {
			return v, true
		}
	}
	return zero, false
}

func initHighlighter() {
	h := &highlighter
	h.lexer, _ = first(lexers.Get, func(l chroma.Lexer) bool { return l != nil },
		"gas", "GAS", "Gas", "nasm")
	var ok bool
	if h.style, ok = first(styles.Get, func(s *chroma.Style) bool { return s != nil },
		DisasmDark.Name, "dracula", "monokai"); !ok {
		h.style = styles.Fallback
	}
	if h.formatter, ok = first(formatters.Get, func(f chroma.Formatter) bool { return f != nil },
		"terminal16m", "terminal256"); !ok {
		h.formatter = formatters.Fallback
	}
}

// Instruction highlights one line of gas-syntax disassembly.
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}
	highlighter.once.Do(initHighlighter)
	h := &highlighter
	if h.lexer == nil {
		return insn
	}
	it, err := h.lexer.Tokenise(nil, insn)
	if err != nil {
		return insn
	}
	var buf strings.Builder
	if err := h.formatter.Format(&buf, h.style, it); err != nil {
		return insn
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// rgb is a 24-bit foreground color.
type rgb [3]uint8

var (
	yellow    = rgb{255, 200, 0}
	pink      = rgb{255, 128, 192}
	lightPink = rgb{255, 180, 200}
	lightGray = rgb{180, 180, 180}
	darkGray  = rgb{80, 80, 80}
	white     = rgb{255, 255, 255}
	blue      = rgb{86, 156, 214}
)

func paint(c rgb, s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", c[0], c[1], c[2], s)
}

// Address formats a guest address.
func Address(addr uint64) string { return paint(yellow, fmt.Sprintf("%08X", addr)) }

// Tag formats a category or instruction tag.
func Tag(tag string) string { return paint(lightPink, tag) }

// FuncName formats a symbol or syscall name.
func FuncName(name string) string { return paint(yellow, name) }

// Detail formats secondary text such as arguments and actions.
func Detail(s string) string { return paint(lightGray, s) }

// Border formats separators.
func Border(s string) string { return paint(darkGray, s) }

// Comment formats trailing comments.
func Comment(s string) string { return paint(white, s) }

// Header formats section headers.
func Header(s string) string { return paint(blue, s) }

// HexBytes formats raw instruction words.
func HexBytes(s string) string { return paint(lightGray, s) }

// Error formats errors and warnings.
func Error(s string) string { return paint(pink, s) }

// String formats quoted guest strings.
func String(s string) string { return paint(pink, s) }
