package bufferstore

import (
	"context"
	"database/sql"
	stderrors "errors"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS buffers (
		key TEXT NOT NULL PRIMARY KEY,
		size INTEGER NOT NULL,
		compression INTEGER NOT NULL,
		object BLOB NOT NULL,
		created DATETIME DEFAULT CURRENT_TIMESTAMP
	);
`

// SQLite stores payloads as rows of one table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and its schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseStore, "sqlite store needs a database path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "opening "+path)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "connecting to "+path)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "creating buffer table")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) StoreBuffer(ctx context.Context, meta buffer.Meta, payload []byte) error {
	obj, err := encodeObject(meta, payload)
	if err != nil {
		return err
	}
	key := Key(meta)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO buffers (key, size, compression, object) VALUES (?, ?, ?, ?)`,
		key, int64(meta.Size), int(meta.Compression), obj)
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "inserting buffer "+key)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		Logger().Debug("buffer stored", zap.String("key", key), zap.Int("bytes", len(obj)))
	}
	return nil
}

func (s *SQLite) CreateLoader(_ context.Context, meta buffer.Meta) (buffer.Loader, error) {
	return newLazyLoader(meta, s.fetch), nil
}

func (s *SQLite) fetch(ctx context.Context, key string) ([]byte, error) {
	var obj []byte
	err := s.db.QueryRowContext(ctx, `SELECT object FROM buffers WHERE key = ?`, key).Scan(&obj)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(errors.PhaseStore, "buffer", key)
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "querying buffer "+key)
	}
	return obj, nil
}

// Count returns the number of stored buffers.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buffers`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error { return s.db.Close() }
