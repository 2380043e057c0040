// Package emulator provides RISC-V 64 user-mode emulation using Unicorn Engine.
package emulator

import (
	"encoding/binary"
	"fmt"
	"sync"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// Memory layout constants
const (
	CodeBase  = 0x00010000
	CodeSize  = 0x01000000 // 16MB, covers the text of typical static binaries
	StackBase = 0x7ff00000
	StackSize = 0x00100000 // 1MB stack
	HeapBase  = 0x90000000
	HeapSize  = 0x10000000 // 256MB for anonymous mappings and host allocations
)

// PageSize is the guest page size.
const PageSize = 0x1000

// CodeHookFunc is called for each instruction
type CodeHookFunc func(emu *Emulator, addr uint64, size uint32)

// AddressHookFunc is called when execution reaches a specific address
type AddressHookFunc func(emu *Emulator) bool // return true to stop emulation

// Emulator wraps Unicorn for RISC-V 64 emulation
type Emulator struct {
	mu uc.Unicorn

	// Memory management
	heapPtr uint64 // Current heap allocation pointer

	// Hooks
	codeHooks   []CodeHookFunc
	addrHooks   map[uint64]AddressHookFunc
	addrHooksMu sync.RWMutex

	// Syscall plumbing, see syscall.go
	handler  SyscallHandler
	observer SyscallObserver
	TID      uint64

	// Stop flag
	stopped  bool
	exited   bool
	exitCode int
}

// New creates a new RISC-V 64 emulator
func New() (*Emulator, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_RISCV, uc.MODE_RISCV64)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	emu := &Emulator{
		mu:        mu,
		heapPtr:   HeapBase,
		addrHooks: make(map[uint64]AddressHookFunc),
		TID:       1,
	}

	// Map memory regions
	if err := emu.mapMemory(); err != nil {
		mu.Close()
		return nil, err
	}

	// Set up internal hooks
	if err := emu.setupHooks(); err != nil {
		mu.Close()
		return nil, err
	}

	return emu, nil
}

// mapMemory sets up the memory layout
func (e *Emulator) mapMemory() error {
	regions := []struct {
		base uint64
		size uint64
		name string
	}{
		{CodeBase, CodeSize, "code"},
		{StackBase, StackSize, "stack"},
		{HeapBase, HeapSize, "heap"},
	}

	for _, r := range regions {
		if err := e.mu.MemMap(r.base, r.size); err != nil {
			return fmt.Errorf("map %s (0x%x): %w", r.name, r.base, err)
		}
	}

	// Initialize stack pointer
	sp := uint64(StackBase + StackSize - 0x1000)
	if err := e.mu.RegWrite(uc.RISCV_REG_SP, sp); err != nil {
		return fmt.Errorf("set SP: %w", err)
	}
	return nil
}

// setupHooks initializes Unicorn hooks
func (e *Emulator) setupHooks() error {
	// Code hook for tracing and address hooks
	_, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}

		e.addrHooksMu.RLock()
		hook, ok := e.addrHooks[addr]
		e.addrHooksMu.RUnlock()

		if ok {
			if hook(e) {
				e.Stop()
				return
			}
		}

		for _, h := range e.codeHooks {
			h(e, addr, size)
		}
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("hook code: %w", err)
	}

	_, err = e.mu.HookAdd(uc.HOOK_INTR, func(mu uc.Unicorn, intno uint32) {
		e.onInterrupt(intno)
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("hook interrupts: %w", err)
	}
	return nil
}

// Close releases resources
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// LoadCode writes code at the code base
func (e *Emulator) LoadCode(code []byte) error {
	return e.mu.MemWrite(CodeBase, code)
}

// MapRegion maps additional memory
func (e *Emulator) MapRegion(addr, size uint64) error {
	return e.mu.MemMap(addr, size)
}

// MemRead reads bytes from memory
func (e *Emulator) MemRead(addr, size uint64) ([]byte, error) {
	return e.mu.MemRead(addr, size)
}

// ReadGuest fills buf from guest memory. On a fault buf keeps its previous
// contents. Reads that straddle into an unmapped page copy the mapped
// prefix, so a short string near the end of a mapping is still captured.
func (e *Emulator) ReadGuest(addr uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	if err := e.mu.MemReadInto(buf, addr); err == nil {
		return
	}
	// Fall back to page-sized pieces.
	off := 0
	for off < len(buf) {
		cur := addr + uint64(off)
		n := int(PageSize - cur%PageSize)
		if n > len(buf)-off {
			n = len(buf) - off
		}
		if err := e.mu.MemReadInto(buf[off:off+n], cur); err != nil {
			return
		}
		off += n
	}
}

// MemWrite writes bytes to memory
func (e *Emulator) MemWrite(addr uint64, data []byte) error {
	return e.mu.MemWrite(addr, data)
}

// MemReadU64 reads a uint64 from memory (little endian)
func (e *Emulator) MemReadU64(addr uint64) (uint64, error) {
	data, err := e.mu.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// MemWriteU64 writes a uint64 to memory (little endian)
func (e *Emulator) MemWriteU64(addr, val uint64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, val)
	return e.mu.MemWrite(addr, data)
}

// MemReadString reads a null-terminated string from memory
func (e *Emulator) MemReadString(addr uint64, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 4096
	}
	data, err := e.mu.MemRead(addr, uint64(maxLen))
	if err != nil {
		return "", err
	}

	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

// MemWriteString writes a null-terminated string to memory
func (e *Emulator) MemWriteString(addr uint64, s string) error {
	data := append([]byte(s), 0)
	return e.mu.MemWrite(addr, data)
}

// X reads integer register x0-x31
func (e *Emulator) X(n int) uint64 {
	if n < 0 || n > 31 {
		return 0
	}
	val, _ := e.mu.RegRead(uc.RISCV_REG_X0 + n)
	return val
}

// SetX writes integer register x1-x31
func (e *Emulator) SetX(n int, val uint64) error {
	if n < 1 || n > 31 {
		return fmt.Errorf("invalid register x%d", n)
	}
	return e.mu.RegWrite(uc.RISCV_REG_X0+n, val)
}

// A reads argument register a0-a7 (x10-x17)
func (e *Emulator) A(n int) uint64 {
	if n < 0 || n > 7 {
		return 0
	}
	return e.X(10 + n)
}

// SetA writes argument register a0-a7
func (e *Emulator) SetA(n int, val uint64) error {
	if n < 0 || n > 7 {
		return fmt.Errorf("invalid register a%d", n)
	}
	return e.SetX(10+n, val)
}

// PC returns the program counter
func (e *Emulator) PC() uint64 {
	pc, _ := e.mu.RegRead(uc.RISCV_REG_PC)
	return pc
}

// SetPC sets the program counter
func (e *Emulator) SetPC(val uint64) error {
	return e.mu.RegWrite(uc.RISCV_REG_PC, val)
}

// SP returns the stack pointer
func (e *Emulator) SP() uint64 {
	return e.X(2)
}

// SetSP sets the stack pointer
func (e *Emulator) SetSP(val uint64) error {
	return e.SetX(2, val)
}

// TP returns the thread pointer
func (e *Emulator) TP() uint64 {
	return e.X(4)
}

// Malloc allocates memory from the heap (bump allocator).
// Returns 0 when the heap is exhausted.
func (e *Emulator) Malloc(size uint64) uint64 {
	// Align to 16 bytes
	size = (size + 15) & ^uint64(15)

	if size == 0 || e.heapPtr+size > HeapBase+HeapSize || e.heapPtr+size < e.heapPtr {
		return 0
	}
	addr := e.heapPtr
	e.heapPtr += size
	return addr
}

// HookCode adds a code hook called for every instruction
func (e *Emulator) HookCode(fn CodeHookFunc) {
	e.codeHooks = append(e.codeHooks, fn)
}

// HookAddress runs fn when execution reaches addr, before the instruction
// executes. It replaces any hook already set there.
func (e *Emulator) HookAddress(addr uint64, fn AddressHookFunc) {
	e.addrHooksMu.Lock()
	defer e.addrHooksMu.Unlock()
	e.addrHooks[addr] = fn
}

// RemoveAddressHook removes the hook at addr. A hook may remove itself.
func (e *Emulator) RemoveAddressHook(addr uint64) {
	e.addrHooksMu.Lock()
	defer e.addrHooksMu.Unlock()
	delete(e.addrHooks, addr)
}

// Run starts emulation from start until end
func (e *Emulator) Run(start, end uint64) error {
	e.stopped = false
	return e.mu.Start(start, end)
}

// RunFrom starts emulation from start until the guest exits or Stop is
// called. limit caps the number of instructions; 0 means no cap.
func (e *Emulator) RunFrom(start uint64, limit uint64) error {
	e.stopped = false
	return e.mu.StartWithOptions(start, 0, &uc.UcOptions{Count: limit})
}

// Stop stops emulation
func (e *Emulator) Stop() {
	e.stopped = true
	e.mu.Stop()
}

// Exit records the guest exit status and stops emulation.
func (e *Emulator) Exit(code int) {
	e.exited = true
	e.exitCode = code
	e.Stop()
}

// Exited reports whether the guest called exit and with which status.
func (e *Emulator) Exited() (bool, int) {
	return e.exited, e.exitCode
}
