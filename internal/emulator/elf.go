package emulator

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
)

// ELFInfo contains parsed ELF metadata
type ELFInfo struct {
	Path     string
	Machine  elf.Machine
	Entry    uint64
	Symbols  map[string]uint64 // symbol name -> virtual address
	Segments []Segment
	BaseAddr uint64 // Load base address
	EndAddr  uint64 // End of loaded memory, the initial program break

	// Program headers as mapped in memory, for AT_PHDR.
	Phdr      uint64
	PhEntSize uint64
	PhNum     uint64
}

// Segment represents a loadable ELF segment
type Segment struct {
	VAddr  uint64
	Offset uint64
	Size   uint64 // File size
	MemSz  uint64 // Memory size (may be larger due to .bss)
	Flags  elf.ProgFlag
	Data   []byte
}

// LoadELFBase is where position-independent executables are placed.
const LoadELFBase = 0x40000000

// LoadELF loads a static RISC-V 64 executable into guest memory.
func (e *Emulator) LoadELF(path string) (*ELFInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ELF: %w", err)
	}
	defer f.Close()

	info, err := e.LoadELFFrom(f)
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

// LoadELFFrom loads a static RISC-V 64 executable from r.
func (e *Emulator) LoadELFFrom(r io.ReaderAt) (*ELFInfo, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV || f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("expected RISC-V 64 (EM_RISCV, ELFCLASS64), got %v %v", f.Machine, f.Class)
	}
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return nil, fmt.Errorf("dynamically linked executables are not supported")
		}
	}

	// Find file base address (lowest PT_LOAD vaddr)
	fileBase := ^uint64(0)
	fileEnd := uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr < fileBase {
			fileBase = prog.Vaddr
		}
		if end := prog.Vaddr + prog.Memsz; end > fileEnd {
			fileEnd = end
		}
	}
	if fileBase == ^uint64(0) {
		return nil, fmt.Errorf("no PT_LOAD segments found")
	}

	// PIE binaries link at 0 and get moved up.
	var relocOffset uint64
	if f.Type == elf.ET_DYN && fileBase < CodeBase {
		relocOffset = LoadELFBase - (fileBase &^ (PageSize - 1))
	}

	info := &ELFInfo{
		Machine:   f.Machine,
		Entry:     f.Entry + relocOffset,
		Symbols:   make(map[string]uint64),
		BaseAddr:  fileBase + relocOffset,
		EndAddr:   pageAlign(fileEnd + relocOffset),
		PhEntSize: 64,
		PhNum:     uint64(len(f.Progs)),
	}

	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			if sym.Value != 0 && sym.Name != "" {
				info.Symbols[sym.Name] = sym.Value + relocOffset
			}
		}
	}

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_PHDR {
			info.Phdr = prog.Vaddr + relocOffset
		}
		if prog.Type != elf.PT_LOAD {
			continue
		}

		loadVAddr := prog.Vaddr + relocOffset
		seg := Segment{
			VAddr:  loadVAddr,
			Offset: prog.Off,
			Size:   prog.Filesz,
			MemSz:  prog.Memsz,
			Flags:  prog.Flags,
		}
		if prog.Filesz > 0 {
			seg.Data = make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(seg.Data, 0); err != nil {
				return nil, fmt.Errorf("read segment at 0x%x: %w", prog.Vaddr, err)
			}
		}
		info.Segments = append(info.Segments, seg)

		// Static binaries usually fall inside the code region; map the
		// rest page by page so partial overlaps still work.
		alignedAddr := loadVAddr &^ (PageSize - 1)
		alignedEnd := pageAlign(loadVAddr + prog.Memsz)
		e.EnsureMapped(alignedAddr, alignedEnd-alignedAddr)

		if len(seg.Data) > 0 {
			if err := e.MemWrite(loadVAddr, seg.Data); err != nil {
				return nil, fmt.Errorf("write segment at 0x%x: %w", loadVAddr, err)
			}
		}

		// The file offset of the first segment usually covers the headers.
		if info.Phdr == 0 && prog.Off == 0 {
			info.Phdr = loadVAddr + phoff(f)
		}

		// Zero out .bss portion (memory size > file size)
		if prog.Memsz > prog.Filesz {
			_ = e.MemWrite(loadVAddr+prog.Filesz, make([]byte, prog.Memsz-prog.Filesz))
		}
	}

	return info, nil
}

// phoff returns e_phoff of f. debug/elf does not export it, but for ELF64
// the program headers conventionally follow the 64-byte file header.
func phoff(f *elf.File) uint64 {
	if f.Class == elf.ELFCLASS64 {
		return 64
	}
	return 52
}

// EnsureMapped maps every page of [addr, addr+size) that is not mapped yet.
func (e *Emulator) EnsureMapped(addr, size uint64) {
	end := pageAlign(addr + size)
	for page := addr &^ (PageSize - 1); page < end; page += PageSize {
		if e.isMapped(page) {
			continue
		}
		_ = e.MapRegion(page, PageSize)
	}
}

func (e *Emulator) isMapped(addr uint64) bool {
	var b [1]byte
	return e.mu.MemReadInto(b[:], addr) == nil
}

func pageAlign(v uint64) uint64 {
	return (v + PageSize - 1) &^ (PageSize - 1)
}

// FindSymbol looks up a symbol by name, returns 0 if not found
func (info *ELFInfo) FindSymbol(name string) uint64 {
	return info.Symbols[name]
}

// SymbolAt returns the nearest symbol at or below addr and the offset
// into it.
func (info *ELFInfo) SymbolAt(addr uint64) (string, uint64) {
	best, bestAddr := "", uint64(0)
	for name, a := range info.Symbols {
		if a <= addr && a > bestAddr {
			best, bestAddr = name, a
		}
	}
	if best == "" {
		return "", 0
	}
	return best, addr - bestAddr
}

// IsExecutable returns true if the segment is executable
func (s *Segment) IsExecutable() bool {
	return s.Flags&elf.PF_X != 0
}

// IsWritable returns true if the segment is writable
func (s *Segment) IsWritable() bool {
	return s.Flags&elf.PF_W != 0
}
