package store

import "fmt"

const schema = `
-- One imported trace file
CREATE TABLE IF NOT EXISTS session (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	created INTEGER NOT NULL,
	records INTEGER NOT NULL DEFAULT 0
);

-- One record, entry or exit
CREATE TABLE IF NOT EXISTS event (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	tid INTEGER NOT NULL,
	phase INTEGER NOT NULL,
	sysno INTEGER NOT NULL,
	name TEXT NOT NULL,
	ret INTEGER NOT NULL,
	orig_a0 INTEGER NOT NULL,
	cause INTEGER NOT NULL,
	pc INTEGER NOT NULL,
	sp INTEGER NOT NULL,
	tp INTEGER NOT NULL,
	satp INTEGER NOT NULL,
	args BLOB NOT NULL,
	stack BLOB NOT NULL,
	UNIQUE(session_id, seq),
	FOREIGN KEY (session_id) REFERENCES session(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_event_sysno ON event(session_id, sysno);
CREATE INDEX IF NOT EXISTS idx_event_tid ON event(session_id, tid, seq);

-- Extracted argument buffers, in emission order
CREATE TABLE IF NOT EXISTS payload (
	event_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	arg_index INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (event_id, seq),
	FOREIGN KEY (event_id) REFERENCES event(id) ON DELETE CASCADE
);
`

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
