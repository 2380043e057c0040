package emulator

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zboralski/lktrace/internal/trace"
)

// buildELF wraps code in a minimal static RISC-V 64 executable loaded at
// 0x10000 with the code right after the headers.
func buildELF(code []byte) []byte {
	const (
		base   = 0x10000
		ehsize = 64
		phsize = 56
	)
	entry := uint64(base + ehsize + phsize)
	total := uint64(ehsize + phsize + len(code))

	var b bytes.Buffer
	le := binary.LittleEndian
	b.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	b.Write(make([]byte, 8))
	binary.Write(&b, le, uint16(2))   // ET_EXEC
	binary.Write(&b, le, uint16(243)) // EM_RISCV
	binary.Write(&b, le, uint32(1))
	binary.Write(&b, le, entry)
	binary.Write(&b, le, uint64(ehsize)) // phoff
	binary.Write(&b, le, uint64(0))      // shoff
	binary.Write(&b, le, uint32(0))      // flags
	binary.Write(&b, le, uint16(ehsize))
	binary.Write(&b, le, uint16(phsize))
	binary.Write(&b, le, uint16(1)) // phnum
	binary.Write(&b, le, uint16(64))
	binary.Write(&b, le, uint16(0))
	binary.Write(&b, le, uint16(0))

	binary.Write(&b, le, uint32(1)) // PT_LOAD
	binary.Write(&b, le, uint32(5)) // R+X
	binary.Write(&b, le, uint64(0))
	binary.Write(&b, le, uint64(base))
	binary.Write(&b, le, uint64(base))
	binary.Write(&b, le, total)
	binary.Write(&b, le, total+0x100) // bss
	binary.Write(&b, le, uint64(PageSize))

	b.Write(code)
	return b.Bytes()
}

// helloCode writes "hi\n" to stdout and exits with status 7.
var helloCode = append(riscv(
	0x00100513, // addi a0, zero, 1
	0x00000597, // auipc a1, 0
	0x02058593, // addi a1, a1, 32
	0x00300613, // addi a2, zero, 3
	0x04000893, // addi a7, zero, 64
	0x00000073, // ecall
	0x00700513, // addi a0, zero, 7
	0x05d00893, // addi a7, zero, 93
	0x00000073, // ecall
), []byte("hi\n")...)

func TestELFLoader(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	info, err := emu.LoadELFFrom(bytes.NewReader(buildELF(helloCode)))
	if err != nil {
		t.Fatalf("Failed to load ELF: %v", err)
	}
	if info.Entry != 0x10078 {
		t.Errorf("Entry = 0x%x, want 0x10078", info.Entry)
	}
	if info.BaseAddr != 0x10000 || len(info.Segments) != 1 {
		t.Errorf("BaseAddr = 0x%x, segments = %d", info.BaseAddr, len(info.Segments))
	}
	if info.Phdr != 0x10040 {
		t.Errorf("Phdr = 0x%x, want 0x10040", info.Phdr)
	}
	if !info.Segments[0].IsExecutable() || info.Segments[0].IsWritable() {
		t.Errorf("segment flags = %v", info.Segments[0].Flags)
	}

	var out bytes.Buffer
	emu.SetSyscallHandler(SyscallFunc(func(e *Emulator, ev *trace.Event) (uint64, bool) {
		switch ev.Sysno {
		case 64:
			buf, err := e.MemRead(ev.Args[1], ev.Args[2])
			if err != nil {
				return ^uint64(13), true // -EFAULT
			}
			out.Write(buf)
			return ev.Args[2], true
		case 93:
			e.Exit(int(ev.Args[0]))
			return 0, false
		}
		return ^uint64(37), true
	}))
	obs := &observed{}
	emu.SetSyscallObserver(obs)

	if _, err := emu.SetupStack(info, []string{"hello"}, []string{"HOME=/"}); err != nil {
		t.Fatalf("SetupStack: %v", err)
	}
	if err := emu.RunFrom(info.Entry, 1000); err != nil {
		t.Fatalf("RunFrom: %v", err)
	}

	if out.String() != "hi\n" {
		t.Errorf("stdout = %q", out.String())
	}
	exited, code := emu.Exited()
	if !exited || code != 7 {
		t.Errorf("Exited = %v, %d", exited, code)
	}
	if len(obs.enter) != 2 || len(obs.exit) != 1 {
		t.Errorf("observer saw %d enters, %d exits", len(obs.enter), len(obs.exit))
	}
}

func TestLoadELFRejectsOtherMachines(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	img := buildELF(helloCode)
	binary.LittleEndian.PutUint16(img[18:], 183) // EM_AARCH64
	if _, err := emu.LoadELFFrom(bytes.NewReader(img)); err == nil {
		t.Error("expected error for aarch64 image")
	}
}

func TestSetupStack(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	sp, err := emu.SetupStack(nil, []string{"prog", "-v"}, []string{"A=1"})
	if err != nil {
		t.Fatalf("SetupStack: %v", err)
	}
	if sp%16 != 0 {
		t.Errorf("sp 0x%x not 16-byte aligned", sp)
	}
	if emu.SP() != sp {
		t.Errorf("SP = 0x%x, want 0x%x", emu.SP(), sp)
	}

	argc, _ := emu.MemReadU64(sp)
	if argc != 2 {
		t.Fatalf("argc = %d", argc)
	}
	argv1, _ := emu.MemReadU64(sp + 16)
	if s, _ := emu.MemReadString(argv1, 16); s != "-v" {
		t.Errorf("argv[1] = %q", s)
	}
	if null, _ := emu.MemReadU64(sp + 24); null != 0 {
		t.Errorf("argv terminator = 0x%x", null)
	}
	envp0, _ := emu.MemReadU64(sp + 32)
	if s, _ := emu.MemReadString(envp0, 16); s != "A=1" {
		t.Errorf("envp[0] = %q", s)
	}
	if typ, _ := emu.MemReadU64(sp + 48); typ != AT_PAGESZ {
		t.Errorf("first auxv type = %d, want AT_PAGESZ", typ)
	}
}
