// Package sqldb implements core.Store on top of database/sql. Each blob is a
// single row; Put upserts so the last writer wins. Dialects differ only in
// placeholder syntax and column types.
package sqldb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"dietinsights/internal/blob/core"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Driver      core.Driver
	BinaryType  string
	Placeholder func(n int) string
}

// QuestionMarks is the placeholder style used by SQLite.
func QuestionMarks(int) string { return "?" }

// DollarN is the placeholder style used by PostgreSQL.
func DollarN(n int) string { return fmt.Sprintf("$%d", n) }

// Store persists blobs in the `blobs` table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps db and ensures the blobs table exists.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS blobs (
		blob_key TEXT PRIMARY KEY,
		payload %s NOT NULL,
		content_type TEXT NOT NULL,
		metadata TEXT NOT NULL,
		etag TEXT NOT NULL,
		size BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, dialect.BinaryType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create blobs table: %w", err)
	}
	return s, nil
}

func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// DB exposes the underlying handle so owners can close it.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ph(n int) string { return s.dialect.Placeholder(n) }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if strings.TrimSpace(key) == "" {
		return core.Info{}, fmt.Errorf("empty key")
	}
	var buf bytes.Buffer
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(&buf, h), r); err != nil {
		return core.Info{}, err
	}
	md := opts.Metadata
	if md == nil {
		md = map[string]string{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return core.Info{}, err
	}
	info := core.Info{
		Key:          key,
		Size:         int64(buf.Len()),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	q := fmt.Sprintf(`INSERT INTO blobs(blob_key, payload, content_type, metadata, etag, size, updated_at) VALUES(%s,%s,%s,%s,%s,%s,%s)
		ON CONFLICT(blob_key) DO UPDATE SET payload=excluded.payload, content_type=excluded.content_type,
		metadata=excluded.metadata, etag=excluded.etag, size=excluded.size, updated_at=excluded.updated_at`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7))
	if _, err := s.db.ExecContext(ctx, q, key, buf.Bytes(), info.ContentType, string(mdJSON), info.ETag, info.Size, info.LastModified.UnixNano()); err != nil {
		return core.Info{}, fmt.Errorf("upsert blob %s: %w", key, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	q := fmt.Sprintf(`SELECT blob_key, content_type, metadata, etag, size, updated_at, payload FROM blobs WHERE blob_key = %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return core.Info{}, nil, err
		}
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	var payload []byte
	info, err := scanInfo(rows, &payload)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	q := fmt.Sprintf(`SELECT blob_key, content_type, metadata, etag, size, updated_at FROM blobs WHERE blob_key = %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, key)
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return core.Info{}, err
		}
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return scanInfo(rows)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM blobs WHERE blob_key = %s`, s.ph(1)), key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List filters by prefix in Go; keys routinely contain '_' which LIKE treats
// as a wildcard.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT blob_key, content_type, metadata, etag, size, updated_at FROM blobs`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(info.Key, prefix) {
			infos = append(infos, info)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func scanInfo(rows *sql.Rows, extra ...any) (core.Info, error) {
	var (
		info    core.Info
		mdJSON  string
		updated int64
	)
	dest := append([]any{&info.Key, &info.ContentType, &mdJSON, &info.ETag, &info.Size, &updated}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return core.Info{}, fmt.Errorf("scan blob: %w", err)
	}
	if mdJSON != "" {
		var md map[string]string
		if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
			return core.Info{}, fmt.Errorf("decode metadata for %s: %w", info.Key, err)
		}
		if len(md) > 0 {
			info.Metadata = md
		}
	}
	info.LastModified = time.Unix(0, updated).UTC()
	return info, nil
}
