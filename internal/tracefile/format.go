// Package tracefile reads and writes the binary syscall trace format.
//
// A trace is a flat sequence of records. Each record is a fixed head
// followed by zero or more payloads, all little-endian:
//
//	head    magic u16 | headsize u16 | totalsize u32 | inout u64 | cause u64
//	        epc u64 | a0..a7 u64 | usp u64 | stack[8] u64
//	        orig_a0 u64 | satp u64 | tp u64 | tid u64
//	payload magic u16 | index u16 | size u32 | data[size]
//
// totalsize covers the head and every payload of the record. The stream
// may be wrapped in snappy framing; readers detect that on their own.
package tracefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/zboralski/lktrace/internal/trace"
)

// Magic starts every head and payload.
const Magic uint16 = 0xABCD

// Fixed sizes of the on-disk structures.
const (
	HeadSize        = 200
	PayloadHeadSize = 8
)

// MaxRecordSize bounds totalsize. With the default extraction limits a
// record stays far below it; anything larger is a corrupt head.
const MaxRecordSize = 16 << 20

var (
	ErrBadMagic  = errors.New("bad record magic")
	ErrBadSize   = errors.New("inconsistent record size")
	ErrTruncated = errors.New("truncated record")
)

var strucOptions = &struc.Options{Order: binary.LittleEndian}

// Head is the on-disk record head.
type Head struct {
	Magic     uint16    `struc:"uint16"`
	HeadSize  uint16    `struc:"uint16"`
	TotalSize uint32    `struc:"uint32"`
	InOut     uint64    `struc:"uint64"`
	Cause     uint64    `struc:"uint64"`
	Epc       uint64    `struc:"uint64"`
	Ax        [8]uint64 `struc:"[8]uint64"`
	Usp       uint64    `struc:"uint64"`
	Stack     [8]uint64 `struc:"[8]uint64"`
	OrigA0    uint64    `struc:"uint64"`
	Satp      uint64    `struc:"uint64"`
	Tp        uint64    `struc:"uint64"`
	Sscratch  uint64    `struc:"uint64"` // guest thread id
}

// PayloadHead is one payload with its data.
type PayloadHead struct {
	Magic uint16 `struc:"uint16"`
	Index uint16 `struc:"uint16"`
	Size  uint32 `struc:"uint32,sizeof=Data"`
	Data  []byte
}

// headFromEvent builds the head for ev. Sizes are filled by Encode.
func headFromEvent(ev *trace.Event) Head {
	return Head{
		Magic:    Magic,
		HeadSize: HeadSize,
		InOut:    uint64(ev.Phase),
		Cause:    ev.Cause,
		Epc:      ev.PC,
		Ax:       ev.Args,
		Usp:      ev.SP,
		Stack:    ev.Stack,
		OrigA0:   ev.OrigA0,
		Satp:     ev.Satp,
		Tp:       ev.TP,
		Sscratch: ev.TID,
	}
}

// Event converts the head back into an event. Ret is a0 on the exit side.
func (h *Head) Event() trace.Event {
	ev := trace.Event{
		Phase:  trace.Phase(h.InOut),
		Sysno:  h.Ax[7],
		Args:   h.Ax,
		OrigA0: h.OrigA0,
		Cause:  h.Cause,
		PC:     h.Epc,
		SP:     h.Usp,
		Stack:  h.Stack,
		Satp:   h.Satp,
		TP:     h.Tp,
		TID:    h.Sscratch,
	}
	if ev.Phase == trace.PhaseOut {
		ev.Ret = int64(h.Ax[0])
	}
	return ev
}

// Encode serializes rec into its on-disk form.
func Encode(rec *trace.Record) ([]byte, error) {
	total := HeadSize
	for _, p := range rec.Payloads {
		if p.Index < 0 || p.Index > 0xffff {
			return nil, fmt.Errorf("payload index %d: %w", p.Index, ErrBadSize)
		}
		total += PayloadHeadSize + len(p.Data)
	}
	if total > MaxRecordSize {
		return nil, fmt.Errorf("record of %d bytes: %w", total, ErrBadSize)
	}

	head := headFromEvent(&rec.Event)
	head.TotalSize = uint32(total)

	var buf bytes.Buffer
	buf.Grow(total)
	if err := struc.PackWithOptions(&buf, &head, strucOptions); err != nil {
		return nil, fmt.Errorf("pack head: %w", err)
	}
	for _, p := range rec.Payloads {
		ph := PayloadHead{Magic: Magic, Index: uint16(p.Index), Data: p.Data}
		if err := struc.PackWithOptions(&buf, &ph, strucOptions); err != nil {
			return nil, fmt.Errorf("pack payload %d: %w", p.Index, err)
		}
	}
	return buf.Bytes(), nil
}

// decodeHead parses a head from exactly HeadSize bytes.
func decodeHead(b []byte) (Head, error) {
	var h Head
	if err := struc.UnpackWithOptions(bytes.NewReader(b), &h, strucOptions); err != nil {
		return h, fmt.Errorf("unpack head: %w", err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("head magic %#x: %w", h.Magic, ErrBadMagic)
	}
	if int(h.HeadSize) < HeadSize || h.TotalSize < uint32(h.HeadSize) || h.TotalSize > MaxRecordSize {
		return h, fmt.Errorf("headsize %d totalsize %d: %w", h.HeadSize, h.TotalSize, ErrBadSize)
	}
	return h, nil
}

// decodePayloads parses the payload area of one record.
func decodePayloads(body []byte) ([]trace.Payload, error) {
	var out []trace.Payload
	r := bytes.NewReader(body)
	for r.Len() > 0 {
		if r.Len() < PayloadHeadSize {
			return out, fmt.Errorf("%d stray bytes: %w", r.Len(), ErrBadSize)
		}
		size := binary.LittleEndian.Uint32(body[len(body)-r.Len()+4:])
		if int(size) > r.Len()-PayloadHeadSize {
			return out, fmt.Errorf("payload of %d bytes: %w", size, ErrBadSize)
		}
		var ph PayloadHead
		if err := struc.UnpackWithOptions(r, &ph, strucOptions); err != nil {
			return out, fmt.Errorf("unpack payload: %w", err)
		}
		if ph.Magic != Magic {
			return out, fmt.Errorf("payload magic %#x: %w", ph.Magic, ErrBadMagic)
		}
		out = append(out, trace.Payload{Index: int(ph.Index), Data: ph.Data})
	}
	return out, nil
}

// Decode parses one complete record.
func Decode(b []byte) (*trace.Record, error) {
	if len(b) < HeadSize {
		return nil, ErrTruncated
	}
	h, err := decodeHead(b[:HeadSize])
	if err != nil {
		return nil, err
	}
	if int(h.TotalSize) != len(b) {
		return nil, fmt.Errorf("totalsize %d, have %d: %w", h.TotalSize, len(b), ErrBadSize)
	}
	payloads, err := decodePayloads(b[h.HeadSize:])
	if err != nil {
		return nil, err
	}
	return &trace.Record{Event: h.Event(), Payloads: payloads}, nil
}

// readRecord reads the next record from r and returns it with its size on
// disk.
func readRecord(r io.Reader) (*trace.Record, int, error) {
	hb := make([]byte, HeadSize)
	if _, err := io.ReadFull(r, hb); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, 0, ErrTruncated
		}
		return nil, 0, err
	}
	h, err := decodeHead(hb)
	if err != nil {
		return nil, 0, err
	}

	rest := make([]byte, int(h.TotalSize)-HeadSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, ErrTruncated
		}
		return nil, 0, err
	}
	// Skip head extensions written by newer tracers.
	payloads, err := decodePayloads(rest[int(h.HeadSize)-HeadSize:])
	if err != nil {
		return nil, 0, err
	}
	return &trace.Record{Event: h.Event(), Payloads: payloads}, int(h.TotalSize), nil
}
