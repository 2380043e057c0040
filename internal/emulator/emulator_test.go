package emulator

import (
	"encoding/binary"
	"testing"

	"github.com/zboralski/lktrace/internal/trace"
)

// riscv encodes instruction words little-endian.
func riscv(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

const (
	insnAddiA0_5  = 0x00500513 // addi a0, zero, 5
	insnAddiA1_3  = 0x00300593 // addi a1, zero, 3
	insnAddA2     = 0x00b50633 // add a2, a0, a1
	insnMvA2A0    = 0x00050633 // add a2, a0, zero
	insnEcall     = 0x00000073
	insnAddiA7_17 = 0x01100893 // addi a7, zero, 17
)

type observed struct {
	enter []*trace.Event
	exit  []*trace.Event
}

func (o *observed) Enter(ev *trace.Event) { o.enter = append(o.enter, ev) }
func (o *observed) Exit(ev *trace.Event)  { o.exit = append(o.exit, ev) }

func TestEmulatorBasic(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	code := riscv(insnAddiA0_5, insnAddiA1_3, insnAddA2)
	if err := emu.LoadCode(code); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	if err := emu.Run(CodeBase, CodeBase+uint64(len(code))); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if a2 := emu.A(2); a2 != 8 {
		t.Errorf("Expected a2=8, got a2=%d", a2)
	}
	if emu.A(0) != 5 || emu.A(1) != 3 {
		t.Errorf("Expected a0=5 a1=3, got a0=%d a1=%d", emu.A(0), emu.A(1))
	}
}

func TestMemoryOperations(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	addr := uint64(HeapBase)
	val := uint64(0x123456789ABCDEF0)
	if err := emu.MemWriteU64(addr, val); err != nil {
		t.Fatalf("Failed to write U64: %v", err)
	}
	readVal, err := emu.MemReadU64(addr)
	if err != nil {
		t.Fatalf("Failed to read U64: %v", err)
	}
	if readVal != val {
		t.Errorf("U64 mismatch: wrote 0x%x, read 0x%x", val, readVal)
	}

	if err := emu.MemWriteString(addr+0x100, "hello"); err != nil {
		t.Fatalf("Failed to write string: %v", err)
	}
	s, err := emu.MemReadString(addr+0x100, 64)
	if err != nil || s != "hello" {
		t.Errorf("MemReadString = %q, %v", s, err)
	}
}

func TestReadGuestTolerant(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	// Unmapped: buffer untouched.
	buf := []byte{1, 2, 3, 4}
	emu.ReadGuest(0x1000, buf)
	if buf[0] != 1 || buf[3] != 4 {
		t.Errorf("unmapped read modified buffer: %v", buf)
	}

	// Straddling the end of the heap keeps the mapped prefix.
	end := uint64(HeapBase + HeapSize)
	if err := emu.MemWrite(end-3, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	buf = make([]byte, 8)
	emu.ReadGuest(end-3, buf)
	if string(buf[:3]) != "abc" {
		t.Errorf("straddling read = %q", buf)
	}
}

func TestMalloc(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	a := emu.Malloc(10)
	b := emu.Malloc(1)
	if a != HeapBase || b != HeapBase+16 {
		t.Errorf("Malloc = 0x%x, 0x%x", a, b)
	}
	if emu.Malloc(HeapSize) != 0 {
		t.Error("oversized Malloc should fail")
	}
}

func TestEcallDispatch(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	code := riscv(insnAddiA7_17, insnEcall, insnMvA2A0)
	if err := emu.LoadCode(code); err != nil {
		t.Fatal(err)
	}
	emu.SetA(0, 0x4000)

	var seen *trace.Event
	emu.SetSyscallHandler(SyscallFunc(func(e *Emulator, ev *trace.Event) (uint64, bool) {
		seen = ev
		return 42, true
	}))
	obs := &observed{}
	emu.SetSyscallObserver(obs)

	if err := emu.Run(CodeBase, CodeBase+uint64(len(code))); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if seen == nil || seen.Sysno != 17 {
		t.Fatalf("handler saw %+v", seen)
	}
	if seen.PC != CodeBase+4 {
		t.Errorf("ecall pc = 0x%x, want 0x%x", seen.PC, CodeBase+4)
	}
	if got := emu.A(2); got != 42 {
		t.Errorf("execution after ecall: a2 = %d, want 42", got)
	}

	if len(obs.enter) != 1 || len(obs.exit) != 1 {
		t.Fatalf("observer saw %d enters, %d exits", len(obs.enter), len(obs.exit))
	}
	out := obs.exit[0]
	if out.Phase != trace.PhaseOut || out.Ret != 42 || out.Args[0] != 42 {
		t.Errorf("exit event = %+v", out)
	}
	if out.OrigA0 != 0x4000 {
		t.Errorf("OrigA0 = 0x%x, want 0x4000", out.OrigA0)
	}
}

func TestEcallWithoutHandler(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	code := riscv(insnAddiA7_17, insnEcall)
	if err := emu.LoadCode(code); err != nil {
		t.Fatal(err)
	}
	if err := emu.Run(CodeBase, CodeBase+uint64(len(code))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if int64(emu.A(0)) != -38 {
		t.Errorf("a0 = %d, want -ENOSYS", int64(emu.A(0)))
	}
}

func TestHookAddress(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	code := riscv(insnAddiA0_5, insnAddiA1_3, insnAddA2)
	if err := emu.LoadCode(code); err != nil {
		t.Fatal(err)
	}

	hits := 0
	emu.HookAddress(CodeBase, func(e *Emulator) bool {
		hits++
		e.RemoveAddressHook(CodeBase)
		return false
	})
	emu.HookAddress(CodeBase+4, func(*Emulator) bool { return true })

	if err := emu.Run(CodeBase, CodeBase+uint64(len(code))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hits != 1 {
		t.Errorf("hook at entry ran %d times", hits)
	}
	if emu.A(0) != 5 {
		t.Errorf("a0 = %d, want 5", emu.A(0))
	}
	if emu.A(2) != 0 {
		t.Errorf("a2 = %d, stop hook did not prevent the add", emu.A(2))
	}

	// The self-removed hook is gone on a second run.
	emu.RemoveAddressHook(CodeBase + 4)
	if err := emu.Run(CodeBase, CodeBase+uint64(len(code))); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if hits != 1 || emu.A(2) != 8 {
		t.Errorf("second run: hits=%d a2=%d", hits, emu.A(2))
	}
}
