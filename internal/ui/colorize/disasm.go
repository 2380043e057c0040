package colorize

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// InsnLen returns the length of the instruction starting with code, from
// its low two bits: 3 marks a 32-bit encoding, anything else is compressed.
func InsnLen(code []byte) int {
	if len(code) > 0 && code[0]&3 != 3 {
		return 2
	}
	return 4
}

// Disasm decodes one RISC-V instruction. Undecodable words come back as a
// .word or .half directive.
func Disasm(code []byte) string {
	n := InsnLen(code)
	if len(code) < n {
		return "???"
	}
	inst, err := riscv64asm.Decode(code[:n])
	if err == nil {
		return ABINames(riscv64asm.GNUSyntax(inst))
	}
	if n == 2 {
		return fmt.Sprintf(".half 0x%04x", binary.LittleEndian.Uint16(code))
	}
	return fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(code))
}

var abiRegs = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var xreg = regexp.MustCompile(`\bx([0-9]|[12][0-9]|3[01])\b`)

// ABINames rewrites x0..x31 in dis to their ABI names, as objdump prints
// them.
func ABINames(dis string) string {
	return xreg.ReplaceAllStringFunc(dis, func(r string) string {
		var n int
		fmt.Sscanf(r[1:], "%d", &n)
		return abiRegs[n]
	})
}

// HexWord renders the raw encoding the way objdump does, most significant
// byte first.
func HexWord(code []byte) string {
	switch n := InsnLen(code); {
	case n == 2 && len(code) >= 2:
		return fmt.Sprintf("%04x", binary.LittleEndian.Uint16(code))
	case len(code) >= 4:
		return fmt.Sprintf("%08x", binary.LittleEndian.Uint32(code))
	}
	return ""
}

// Mnemonic returns the first word of a disassembled instruction.
func Mnemonic(dis string) string {
	if f := strings.Fields(dis); len(f) > 0 {
		return f[0]
	}
	return ""
}

// InstructionTags classifies an instruction for the trace margin.
func InstructionTags(dis string) []string {
	switch Mnemonic(dis) {
	case "ecall":
		return []string{"#syscall"}
	case "ebreak":
		return []string{"#break"}
	case "jal":
		return []string{"#call"}
	case "jalr":
		return []string{"#call", "#br"}
	case "ret":
		return []string{"#ret"}
	case "jr":
		return []string{"#br"}
	case "xor", "xori":
		return []string{"#xor"}
	case "lr.w", "lr.d", "sc.w", "sc.d", "fence", "fence.i":
		return []string{"#atomic"}
	}
	if strings.HasPrefix(Mnemonic(dis), "amo") {
		return []string{"#atomic"}
	}
	return nil
}

// IsBlockEnd reports whether dis ends a basic block.
func IsBlockEnd(dis string) bool {
	switch m := Mnemonic(dis); m {
	case "ret", "jr", "jal", "jalr", "j", "ecall", "mret", "sret":
		return true
	default:
		return strings.HasPrefix(m, "b") && m != "bclr" && m != "bset" && m != "binv" && m != "bext"
	}
}
