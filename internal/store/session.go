package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session describes one imported trace.
type Session struct {
	ID      string
	Source  string
	Created time.Time
	Records int
}

// CreateSession registers a new, empty session for source.
func (s *Store) CreateSession(ctx context.Context, source string) (*Session, error) {
	sess := &Session{
		ID:      uuid.NewString(),
		Source:  source,
		Created: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, source, created) VALUES (?, ?, ?)`,
		sess.ID, sess.Source, sess.Created.Unix())
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession looks a session up by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var sess Session
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, created, records FROM session WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Source, &created, &sess.Records)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Created = time.Unix(created, 0).UTC()
	return &sess, nil
}

// ListSessions returns every session, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, created, records FROM session ORDER BY created, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var created int64
		if err := rows.Scan(&sess.ID, &sess.Source, &created, &sess.Records); err != nil {
			return nil, err
		}
		sess.Created = time.Unix(created, 0).UTC()
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session with its events and payloads.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
