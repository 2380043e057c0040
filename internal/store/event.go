package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// RecordReader yields records until io.EOF.
type RecordReader interface {
	Next() (*trace.Record, error)
}

// words packs register values for a BLOB column. SQLite integers are
// signed, so full 64-bit values do not fit a plain INTEGER column.
func words(v []uint64) []byte {
	b := make([]byte, 8*len(v))
	for i, w := range v {
		binary.LittleEndian.PutUint64(b[i*8:], w)
	}
	return b
}

func unwords(b []byte, v []uint64) error {
	if len(b) != 8*len(v) {
		return fmt.Errorf("register blob is %d bytes, want %d", len(b), 8*len(v))
	}
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return nil
}

// Import copies every record from r into a new session in one
// transaction and returns the session.
func (s *Store) Import(ctx context.Context, source string, r RecordReader, tbl *sysno.Table) (*Session, error) {
	if tbl == nil {
		tbl = sysno.RISCV64()
	}
	sess, err := s.CreateSession(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		insEvent, err := tx.PrepareContext(ctx,
			`INSERT INTO event (session_id, seq, tid, phase, sysno, name, ret, orig_a0,
			 cause, pc, sp, tp, satp, args, stack)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insEvent.Close()

		insPayload, err := tx.PrepareContext(ctx,
			`INSERT INTO payload (event_id, seq, arg_index, data) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insPayload.Close()

		for seq := 0; ; seq++ {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				sess.Records = seq
				break
			}
			if err != nil {
				return fmt.Errorf("record %d: %w", seq, err)
			}

			res, err := insEvent.ExecContext(ctx,
				sess.ID, seq, int64(rec.TID), int64(rec.Phase), int64(rec.Sysno),
				tbl.NameOr(rec.Sysno), rec.Ret, int64(rec.OrigA0), int64(rec.Cause),
				int64(rec.PC), int64(rec.SP), int64(rec.TP), int64(rec.Satp),
				words(rec.Args[:]), words(rec.Stack[:]))
			if err != nil {
				return fmt.Errorf("insert record %d: %w", seq, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for i, p := range rec.Payloads {
				data := p.Data
				if data == nil {
					data = []byte{}
				}
				if _, err := insPayload.ExecContext(ctx, id, i, p.Index, data); err != nil {
					return fmt.Errorf("insert payload %d of record %d: %w", i, seq, err)
				}
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE session SET records = ? WHERE id = ?`, sess.Records, sess.ID)
		return err
	})
	if err != nil {
		s.DeleteSession(ctx, sess.ID)
		return nil, err
	}
	return sess, nil
}

// Records loads the records of a session in their original order.
func (s *Store) Records(ctx context.Context, id string) ([]*trace.Record, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tid, phase, sysno, ret, orig_a0, cause, pc, sp, tp, satp, args, stack
		 FROM event WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*trace.Record
	byID := make(map[int64]*trace.Record)
	for rows.Next() {
		var eid, tid, phase, nr, origA0, cause, pc, sp, tp, satp int64
		var args, stack []byte
		rec := &trace.Record{}
		if err := rows.Scan(&eid, &tid, &phase, &nr, &rec.Ret, &origA0, &cause,
			&pc, &sp, &tp, &satp, &args, &stack); err != nil {
			return nil, err
		}
		rec.TID = uint64(tid)
		rec.Phase = trace.Phase(phase)
		rec.Sysno = uint64(nr)
		rec.OrigA0 = uint64(origA0)
		rec.Cause = uint64(cause)
		rec.PC = uint64(pc)
		rec.SP = uint64(sp)
		rec.TP = uint64(tp)
		rec.Satp = uint64(satp)
		if err := unwords(args, rec.Args[:]); err != nil {
			return nil, fmt.Errorf("event %d args: %w", eid, err)
		}
		if err := unwords(stack, rec.Stack[:]); err != nil {
			return nil, fmt.Errorf("event %d stack: %w", eid, err)
		}
		recs = append(recs, rec)
		byID[eid] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx,
		`SELECT p.event_id, p.arg_index, p.data FROM payload p
		 JOIN event e ON e.id = p.event_id
		 WHERE e.session_id = ? ORDER BY e.seq, p.seq`, id)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var eid int64
		var idx int
		var data []byte
		if err := prows.Scan(&eid, &idx, &data); err != nil {
			return nil, err
		}
		if rec := byID[eid]; rec != nil {
			rec.Add(idx, data)
		}
	}
	return recs, prows.Err()
}

// SyscallCount is one row of CountBySyscall.
type SyscallCount struct {
	Sysno  uint64
	Name   string
	Calls  int
	Errors int
}

// CountBySyscall aggregates a session per syscall, busiest first.
func (s *Store) CountBySyscall(ctx context.Context, id string) ([]SyscallCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sysno, name,
		        SUM(CASE WHEN phase = 1 THEN 1 ELSE 0 END),
		        SUM(CASE WHEN phase = 0 AND ret < 0 THEN 1 ELSE 0 END)
		 FROM event WHERE session_id = ?
		 GROUP BY sysno, name
		 ORDER BY 3 DESC, sysno`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyscallCount
	for rows.Next() {
		var c SyscallCount
		var nr int64
		if err := rows.Scan(&nr, &c.Name, &c.Calls, &c.Errors); err != nil {
			return nil, err
		}
		c.Sysno = uint64(nr)
		out = append(out, c)
	}
	return out, rows.Err()
}
