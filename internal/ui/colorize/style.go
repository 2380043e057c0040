// Package colorize provides syntax highlighting for disassembly and trace
// output. RISC-V instructions are decoded with riscv64asm and highlighted
// through a chroma style registered at init.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// Palette shared by the chroma style and the ANSI helpers.
const (
	ColorText     = "#FFFFFF"
	ColorRegister = "#87CEEB"
	ColorNumber   = "#FF80C0"
	ColorLabel    = "#FFC800"
	ColorComment  = "#FF8000"
	ColorString   = "#00FF00"
)

// DisasmDark highlights gas-syntax RISC-V on a dark terminal.
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:           ColorText,
	chroma.Background:     "bg:#000000",
	chroma.Comment:        ColorComment,
	chroma.CommentPreproc: ColorComment,

	// gas reports mnemonics as keywords or functions, registers as names.
	chroma.Keyword:       ColorText,
	chroma.KeywordPseudo: ColorText,
	chroma.NameFunction:  ColorText,
	chroma.Name:          ColorRegister,
	chroma.NameBuiltin:   ColorRegister,
	chroma.NameVariable:  ColorRegister,
	chroma.NameLabel:     ColorLabel,

	chroma.LiteralNumber:        ColorNumber,
	chroma.LiteralNumberHex:     ColorNumber,
	chroma.LiteralNumberBin:     ColorNumber,
	chroma.LiteralNumberOct:     ColorNumber,
	chroma.LiteralNumberInteger: ColorNumber,

	chroma.Operator:    ColorText,
	chroma.Punctuation: ColorText,
	chroma.String:      ColorString,
}))
