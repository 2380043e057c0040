package payload

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zboralski/lktrace/internal/trace"
)

// fakeMem is a sparse guest address space. Reads that are not fully
// inside one region leave the destination untouched, like a faulted read.
type fakeMem struct {
	regions map[uint64][]byte
	reads   []int // sizes of every read, in order
}

func newFakeMem() *fakeMem {
	return &fakeMem{regions: make(map[uint64][]byte)}
}

func (m *fakeMem) put(addr uint64, data []byte) {
	m.regions[addr] = data
}

func (m *fakeMem) putString(addr uint64, s string) {
	m.put(addr, append([]byte(s), 0))
}

func (m *fakeMem) putPointers(addr uint64, ptrs ...uint64) {
	buf := make([]byte, 8*len(ptrs))
	for i, p := range ptrs {
		binary.LittleEndian.PutUint64(buf[i*8:], p)
	}
	m.put(addr, buf)
}

func (m *fakeMem) ReadGuest(addr uint64, buf []byte) {
	m.reads = append(m.reads, len(buf))
	for base, data := range m.regions {
		if addr >= base && addr < base+uint64(len(data)) {
			copy(buf, data[addr-base:])
			return
		}
	}
}

func (m *fakeMem) pointerReads() int {
	n := 0
	for _, r := range m.reads {
		if r == 8 {
			n++
		}
	}
	return n
}

type emitted struct {
	index int
	data  []byte
}

type recorder struct {
	out []emitted
}

func (r *recorder) Emit(index int, ev *trace.Event, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	r.out = append(r.out, emitted{index, buf})
}

func TestNormalizeTerminates(t *testing.T) {
	buf := []byte("abcdefgh")
	orig := append([]byte(nil), buf...)

	Normalize(buf)

	if buf[len(buf)-1] != 0 {
		t.Fatalf("last byte = %#x, want 0", buf[len(buf)-1])
	}
	if !bytes.Equal(buf[:len(buf)-1], orig[:len(orig)-1]) {
		t.Errorf("prefix changed: %q -> %q", orig, buf)
	}
}

func TestNormalizeLeavesTerminatedBuffer(t *testing.T) {
	buf := []byte{'a', 0, 'b', 'c'}
	Normalize(buf)
	if !bytes.Equal(buf, []byte{'a', 0, 'b', 'c'}) {
		t.Errorf("terminated buffer modified: %q", buf)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := [][]byte{
		[]byte("x"),
		[]byte("hello"),
		{0},
		{1, 2, 3, 0, 5},
		bytes.Repeat([]byte{0xff}, 64),
	}
	for _, in := range inputs {
		once := append([]byte(nil), in...)
		Normalize(once)
		twice := append([]byte(nil), once...)
		Normalize(twice)
		if !bytes.Equal(once, twice) {
			t.Errorf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	Normalize(nil)
	Normalize([]byte{})
}

func TestCStringHelper(t *testing.T) {
	if got := CString([]byte("abc\x00def")); got != "abc" {
		t.Errorf("CString = %q", got)
	}
	if got := CString([]byte("abc")); got != "abc" {
		t.Errorf("CString unterminated = %q", got)
	}
}

func TestFixed(t *testing.T) {
	mem := newFakeMem()
	mem.put(0x1000, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	rec := &recorder{}
	x := New(mem, rec)

	x.Fixed(&trace.Event{}, 2, 0x1000, 4)

	if len(rec.out) != 1 {
		t.Fatalf("got %d emits, want 1", len(rec.out))
	}
	if rec.out[0].index != 2 || !bytes.Equal(rec.out[0].data, []byte{1, 2, 3, 4}) {
		t.Errorf("emit = %+v", rec.out[0])
	}
}

func TestFixedUnmappedEmitsZeroes(t *testing.T) {
	rec := &recorder{}
	x := New(newFakeMem(), rec)

	x.Fixed(&trace.Event{}, 0, 0xdead0000, 16)

	if len(rec.out) != 1 {
		t.Fatalf("got %d emits, want 1", len(rec.out))
	}
	if !bytes.Equal(rec.out[0].data, make([]byte, 16)) {
		t.Errorf("unmapped read = %x, want zeroes", rec.out[0].data)
	}
}

func TestCStringBounded(t *testing.T) {
	mem := newFakeMem()
	long := bytes.Repeat([]byte{'A'}, 100)
	mem.put(0x2000, long)
	rec := &recorder{}
	x := New(mem, rec)

	x.CString(&trace.Event{}, 1, 0x2000, 0)

	got := rec.out[0].data
	if len(got) != DefaultStringCapacity {
		t.Fatalf("len = %d, want %d", len(got), DefaultStringCapacity)
	}
	if got[len(got)-1] != 0 {
		t.Error("string not terminated")
	}
	if CString(got) != string(long[:DefaultStringCapacity-1]) {
		t.Errorf("content = %q", CString(got))
	}
}

func TestHeapStringSize(t *testing.T) {
	mem := newFakeMem()
	mem.putString(0x3000, "hi\n")
	rec := &recorder{}
	x := New(mem, rec)

	if !x.HeapString(&trace.Event{}, 1, 0x3000, 4) {
		t.Fatal("HeapString returned false")
	}
	if len(rec.out) != 1 || len(rec.out[0].data) != 4 {
		t.Fatalf("emits = %+v", rec.out)
	}
	if CString(rec.out[0].data) != "hi\n" {
		t.Errorf("content = %q", rec.out[0].data)
	}
}

func TestHeapStringAllocFailure(t *testing.T) {
	rec := &recorder{}
	x := New(newFakeMem(), rec)
	x.Alloc = func(n uint64) []byte { return nil }

	if x.HeapString(&trace.Event{Sysno: 63}, 1, 0x3000, 10) {
		t.Error("HeapString should report failure")
	}
	if len(rec.out) != 0 {
		t.Errorf("emitted %d payloads after alloc failure", len(rec.out))
	}
}

func TestHeapStringOverLimit(t *testing.T) {
	rec := &recorder{}
	x := New(newFakeMem(), rec)
	x.MaxHeapPayload = 16

	if x.HeapString(&trace.Event{}, 1, 0x3000, 17) {
		t.Error("HeapString over limit should fail")
	}
	if x.HeapString(&trace.Event{}, 1, 0x3000, 0) {
		t.Error("HeapString of size 0 should fail")
	}
	if len(rec.out) != 0 {
		t.Errorf("emitted %d payloads", len(rec.out))
	}
}

func TestStringArrayWalk(t *testing.T) {
	mem := newFakeMem()
	mem.putString(0x5000, "ls")
	mem.putString(0x5100, "-l")
	mem.putString(0x5200, "/tmp")
	mem.putPointers(0x4000, 0x5000, 0x5100, 0x5200, 0)
	rec := &recorder{}
	x := New(mem, rec)

	n, truncated := x.StringArray(&trace.Event{}, 1, 0x4000, 0)

	if n != 3 || truncated {
		t.Fatalf("StringArray = %d, %v", n, truncated)
	}
	if len(rec.out) != 3 {
		t.Fatalf("got %d emits, want 3", len(rec.out))
	}
	want := []string{"ls", "-l", "/tmp"}
	for i, e := range rec.out {
		if e.index != 1 {
			t.Errorf("emit %d index = %d, want 1", i, e.index)
		}
		if CString(e.data) != want[i] {
			t.Errorf("emit %d = %q, want %q", i, CString(e.data), want[i])
		}
	}
	if got := mem.pointerReads(); got != 4 {
		t.Errorf("pointer reads = %d, want 4", got)
	}
}

func TestStringArrayEmpty(t *testing.T) {
	mem := newFakeMem()
	mem.putPointers(0x4000, 0)
	rec := &recorder{}
	x := New(mem, rec)

	n, truncated := x.StringArray(&trace.Event{}, 2, 0x4000, 0)

	if n != 0 || truncated || len(rec.out) != 0 {
		t.Errorf("empty array: n=%d truncated=%v emits=%d", n, truncated, len(rec.out))
	}
	if got := mem.pointerReads(); got != 1 {
		t.Errorf("pointer reads = %d, want 1", got)
	}
}

func TestStringArrayCapped(t *testing.T) {
	mem := newFakeMem()
	mem.putString(0x5000, "x")
	// A self-referencing chain with no terminator.
	ptrs := make([]uint64, 64)
	for i := range ptrs {
		ptrs[i] = 0x5000
	}
	mem.putPointers(0x4000, ptrs...)
	rec := &recorder{}
	x := New(mem, rec)
	x.MaxArrayEntries = 10

	n, truncated := x.StringArray(&trace.Event{}, 1, 0x4000, 0)

	if n != 10 || !truncated {
		t.Errorf("StringArray = %d, %v; want 10, true", n, truncated)
	}
	if len(rec.out) != 10 {
		t.Errorf("emits = %d, want 10", len(rec.out))
	}
}

func TestPanickingReaderIsContained(t *testing.T) {
	rec := &recorder{}
	x := New(ReaderFunc(func(addr uint64, buf []byte) {
		panic("mmu exploded")
	}), rec)

	x.CString(&trace.Event{}, 0, 0x1000, 8)

	if len(rec.out) != 1 {
		t.Fatalf("emits = %d, want 1", len(rec.out))
	}
	if !bytes.Equal(rec.out[0].data, make([]byte, 8)) {
		t.Errorf("data = %x", rec.out[0].data)
	}
}

func TestReadPointer32(t *testing.T) {
	mem := newFakeMem()
	mem.put(0x10, []byte{0x78, 0x56, 0x34, 0x12})
	x := New(mem, &recorder{})
	x.PtrSize = 4

	if got := x.ReadPointer(0x10); got != 0x12345678 {
		t.Errorf("ReadPointer = %#x", got)
	}
}

func TestStringArrayPointerWidth(t *testing.T) {
	for _, width := range []int{0, 4, 8, 16} {
		mem := newFakeMem()
		mem.putString(0x5000, "a")
		mem.putString(0x5100, "b")
		if width == 4 {
			mem.put(0x4000, []byte{0x00, 0x50, 0, 0, 0x00, 0x51, 0, 0, 0, 0, 0, 0})
		} else {
			mem.putPointers(0x4000, 0x5000, 0x5100, 0)
		}
		rec := &recorder{}
		x := New(mem, rec)
		x.PtrSize = width

		n, truncated := x.StringArray(&trace.Event{}, 1, 0x4000, 8)
		if n != 2 || truncated {
			t.Errorf("PtrSize %d: n=%d truncated=%v", width, n, truncated)
		}
		if len(rec.out) != 2 || CString(rec.out[1].data) != "b" {
			t.Errorf("PtrSize %d: emitted %d", width, len(rec.out))
		}
	}
}
