package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/zboralski/lktrace/internal/trace"
)

type sliceReader []*trace.Record

func (s *sliceReader) Next() (*trace.Record, error) {
	if len(*s) == 0 {
		return nil, io.EOF
	}
	rec := (*s)[0]
	*s = (*s)[1:]
	return rec, nil
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "trace.db")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []*trace.Record {
	var regs [trace.NumArgs]uint64
	regs[0] = ^uint64(99) // AT_FDCWD
	regs[1] = 0x7ff00100
	regs[7] = 56
	in := &trace.Record{Event: *trace.NewEntry(regs)}
	in.TID = 7
	in.PC = 0x10078
	in.SP = 0x7ffff000
	in.Stack[0] = ^uint64(0)
	in.Add(1, []byte("/etc/passwd\x00"))

	out := &trace.Record{Event: *in.Event.Return(^uint64(1))}
	out.Add(1, []byte("/etc/passwd\x00"))
	out.Add(2, nil)
	return []*trace.Record{in, out}
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	src := sliceReader(sampleRecords())
	sess, err := s.Import(ctx, "trace.bin", &src, nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sess.Records != 2 {
		t.Errorf("Records = %d, want 2", sess.Records)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Source != "trace.bin" || got.Records != 2 {
		t.Errorf("session = %+v", got)
	}

	recs, err := s.Records(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	want := sampleRecords()
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i := range want {
		g, w := recs[i], want[i]
		if g.Event != w.Event {
			t.Errorf("record %d event = %+v, want %+v", i, g.Event, w.Event)
		}
		if len(g.Payloads) != len(w.Payloads) {
			t.Fatalf("record %d has %d payloads, want %d", i, len(g.Payloads), len(w.Payloads))
		}
		for j := range w.Payloads {
			if g.Payloads[j].Index != w.Payloads[j].Index || string(g.Payloads[j].Data) != string(w.Payloads[j].Data) {
				t.Errorf("record %d payload %d = %+v, want %+v", i, j, g.Payloads[j], w.Payloads[j])
			}
		}
	}
	if recs[1].Ret != -2 {
		t.Errorf("ret = %d, want -2", recs[1].Ret)
	}
}

func TestCountBySyscall(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	src := sliceReader(sampleRecords())
	sess, err := s.Import(ctx, "a", &src, nil)
	if err != nil {
		t.Fatal(err)
	}
	counts, err := s.CountBySyscall(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	c := counts[0]
	if c.Sysno != 56 || c.Name != "openat" || c.Calls != 1 || c.Errors != 1 {
		t.Errorf("count = %+v", c)
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	a, err := s.CreateSession(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSession(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Source != "a" || list[1].Source != "b" {
		t.Errorf("sessions = %+v", list)
	}

	if err := s.DeleteSession(ctx, a.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete: %v", err)
	}
	if err := s.DeleteSession(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if _, err := s.Records(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Records(bad id): %v", err)
	}
}

func TestImportFailureDropsSession(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	r := failingReader{recs: sampleRecords()[:1]}
	if _, err := s.Import(ctx, "broken", &r, nil); err == nil {
		t.Fatal("expected error")
	}
	list, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("failed import left %d sessions", len(list))
	}
}

type failingReader struct {
	recs []*trace.Record
}

func (f *failingReader) Next() (*trace.Record, error) {
	if len(f.recs) == 0 {
		return nil, errors.New("truncated record")
	}
	rec := f.recs[0]
	f.recs = f.recs[1:]
	return rec, nil
}
