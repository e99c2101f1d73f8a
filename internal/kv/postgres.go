package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps buckets in the kv_entries table of a PostgreSQL database.
type PostgresStore struct {
	// DB is the connection pool sessions are taken from.
	DB *sql.DB
}

// NewPostgresStore creates a PostgresStore on top of db.
// The kv_entries table must already exist, see db.InitPostgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Open reserves a dedicated connection from the pool for the session.
func (s *PostgresStore) Open(ctx context.Context, bucket string) (Session, error) {
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	return &postgresSession{conn: conn, bucket: bucket}, nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

type postgresSession struct {
	conn   *sql.Conn
	bucket string
}

func (s *postgresSession) Get(ctx context.Context, key string) (Entry, error) {
	e := Entry{Key: key}
	err := s.conn.QueryRowContext(ctx, `
		SELECT value, revision FROM kv_entries WHERE bucket = $1 AND key = $2
	`, s.bucket, key).Scan(&e.Value, &e.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get: %w", err)
	}
	return e, nil
}

func (s *postgresSession) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT key, value, revision FROM kv_entries WHERE bucket = $1 ORDER BY key
	`, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Revision); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return entries, nil
}

func (s *postgresSession) Insert(ctx context.Context, key string, value []byte) (Entry, error) {
	var rev int64
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO kv_entries (bucket, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (bucket, key) DO NOTHING
		RETURNING revision
	`, s.bucket, key, string(value)).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrExists
	}
	if err != nil {
		return Entry{}, fmt.Errorf("insert: %w", err)
	}
	return Entry{Key: key, Value: value, Revision: rev}, nil
}

func (s *postgresSession) CompareAndSwap(ctx context.Context, key string, revision int64, value []byte) (Entry, error) {
	var next int64
	err := s.conn.QueryRowContext(ctx, `
		UPDATE kv_entries SET value = $4, revision = nextval('kv_revision_seq')
		WHERE bucket = $1 AND key = $2 AND revision = $3
		RETURNING revision
	`, s.bucket, key, revision, string(value)).Scan(&next)
	if err == nil {
		return Entry{Key: key, Value: value, Revision: next}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("swap: %w", err)
	}
	return Entry{}, s.staleOrMissing(ctx, key)
}

// staleOrMissing tells a revision mismatch apart from an absent key after a
// conditional statement matched no row.
func (s *postgresSession) staleOrMissing(ctx context.Context, key string) error {
	var exists bool
	if err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM kv_entries WHERE bucket = $1 AND key = $2)`,
		s.bucket, key,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrRevisionMismatch
}

func (s *postgresSession) Delete(ctx context.Context, key string) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE bucket = $1 AND key = $2`,
		s.bucket, key,
	)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresSession) DeleteIf(ctx context.Context, key string, revision int64) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE bucket = $1 AND key = $2 AND revision = $3`,
		s.bucket, key, revision,
	)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n == 0 {
		return s.staleOrMissing(ctx, key)
	}
	return nil
}

func (s *postgresSession) Close() error {
	return s.conn.Close()
}
