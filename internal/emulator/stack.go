package emulator

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

// Auxiliary vector entry types.
const (
	AT_NULL     = 0
	AT_PHDR     = 3
	AT_PHENT    = 4
	AT_PHNUM    = 5
	AT_PAGESZ   = 6
	AT_BASE     = 7
	AT_FLAGS    = 8
	AT_ENTRY    = 9
	AT_UID      = 11
	AT_EUID     = 12
	AT_GID      = 13
	AT_EGID     = 14
	AT_PLATFORM = 15
	AT_HWCAP    = 16
	AT_CLKTCK   = 17
	AT_RANDOM   = 25
	AT_EXECFN   = 31
)

// Auxv is one auxiliary vector entry.
type Auxv struct {
	Type uint64
	Val  uint64
}

// push copies data below sp and returns the new sp.
func (e *Emulator) push(sp uint64, data []byte) (uint64, error) {
	sp -= uint64(len(data))
	if err := e.MemWrite(sp, data); err != nil {
		return 0, fmt.Errorf("push %d bytes at 0x%x: %w", len(data), sp, err)
	}
	return sp, nil
}

// SetupStack builds the initial process stack for info: argc, argv,
// envp and the auxiliary vector, with their strings above them. It sets
// sp and returns it.
func (e *Emulator) SetupStack(info *ELFInfo, argv, envp []string) (uint64, error) {
	sp := uint64(StackBase + StackSize - 0x1000)

	pushStrings := func(list []string) ([]uint64, error) {
		addrs := make([]uint64, len(list))
		for i := len(list) - 1; i >= 0; i-- {
			var err error
			if sp, err = e.push(sp, append([]byte(list[i]), 0)); err != nil {
				return nil, err
			}
			addrs[i] = sp
		}
		return addrs, nil
	}

	envAddrs, err := pushStrings(envp)
	if err != nil {
		return 0, err
	}
	argAddrs, err := pushStrings(argv)
	if err != nil {
		return 0, err
	}
	execfn := uint64(0)
	if len(argAddrs) > 0 {
		execfn = argAddrs[0]
	}

	platform, err := e.push(sp, []byte("riscv64\x00"))
	if err != nil {
		return 0, err
	}
	sp = platform

	var random [16]byte
	if _, err := rand.Read(random[:]); err != nil {
		return 0, fmt.Errorf("AT_RANDOM: %w", err)
	}
	randAddr, err := e.push(sp&^15, random[:])
	if err != nil {
		return 0, err
	}
	sp = randAddr

	auxv := []Auxv{
		{AT_PAGESZ, PageSize},
		{AT_FLAGS, 0},
		{AT_UID, 0},
		{AT_EUID, 0},
		{AT_GID, 0},
		{AT_EGID, 0},
		{AT_HWCAP, 0},
		{AT_CLKTCK, 100},
		{AT_PLATFORM, platform},
		{AT_RANDOM, randAddr},
		{AT_EXECFN, execfn},
	}
	if info != nil {
		auxv = append([]Auxv{
			{AT_ENTRY, info.Entry},
			{AT_BASE, 0},
		}, auxv...)
		if info.Phdr != 0 {
			auxv = append([]Auxv{
				{AT_PHDR, info.Phdr},
				{AT_PHENT, info.PhEntSize},
				{AT_PHNUM, info.PhNum},
			}, auxv...)
		}
	}
	auxv = append(auxv, Auxv{AT_NULL, 0})

	var vec bytes.Buffer
	word := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		vec.Write(b[:])
	}
	word(uint64(len(argv)))
	for _, a := range argAddrs {
		word(a)
	}
	word(0)
	for _, a := range envAddrs {
		word(a)
	}
	word(0)
	for i := range auxv {
		if err := struc.PackWithOrder(&vec, &auxv[i], binary.LittleEndian); err != nil {
			return 0, fmt.Errorf("pack auxv: %w", err)
		}
	}

	sp = (sp - uint64(vec.Len())) &^ 15
	if err := e.MemWrite(sp, vec.Bytes()); err != nil {
		return 0, fmt.Errorf("write initial stack: %w", err)
	}
	if err := e.SetSP(sp); err != nil {
		return 0, err
	}
	return sp, nil
}
