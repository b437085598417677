package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"dietinsights/internal/blob"
	"dietinsights/pkg/domain"
)

// Metadata keys written alongside the cleaned dataset.
const (
	MetaSourceDigest = "source-digest"
	MetaRowCount     = "row-count"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeJSON = "application/json"
)

// Store reads and writes the three fixed artifacts. Missing keys surface as
// blob.ErrNotFound; every other driver failure is a
// domain.StorageUnavailableError.
type Store struct {
	blobs blob.Store
	keys  Keys
}

// NewStore wraps a blob store.
func NewStore(blobs blob.Store, keys Keys) *Store {
	return &Store{blobs: blobs, keys: keys}
}

// Keys returns the key layout in use.
func (s *Store) Keys() Keys { return s.keys }

// Blobs exposes the underlying blob store.
func (s *Store) Blobs() blob.Store { return s.blobs }

// Digest is the hex sha256 of b; it is the freshness token for the cleaned dataset.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, s.wrap("get", key, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.StorageUnavailableError{Op: "read", Key: key, Err: err}
	}
	return b, nil
}

func (s *Store) write(ctx context.Context, key string, data []byte, opts blob.PutOptions) error {
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
		return domain.StorageUnavailableError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (s *Store) wrap(op, key string, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	return domain.StorageUnavailableError{Op: op, Key: key, Err: err}
}

// ReadRaw returns the raw dataset bytes.
func (s *Store) ReadRaw(ctx context.Context) ([]byte, error) { return s.read(ctx, s.keys.Raw()) }

// ReadCleaned returns the cleaned dataset bytes.
func (s *Store) ReadCleaned(ctx context.Context) ([]byte, error) {
	return s.read(ctx, s.keys.Cleaned())
}

// ReadArtifact returns the cache artifact bytes.
func (s *Store) ReadArtifact(ctx context.Context) ([]byte, error) {
	return s.read(ctx, s.keys.Artifact())
}

// WriteRaw replaces the raw dataset.
func (s *Store) WriteRaw(ctx context.Context, data []byte) error {
	return s.write(ctx, s.keys.Raw(), data, blob.PutOptions{ContentType: contentTypeCSV})
}

// WriteCleaned replaces the cleaned dataset and records its digest and row
// count as blob metadata.
func (s *Store) WriteCleaned(ctx context.Context, data []byte, rows int) (string, error) {
	digest := Digest(data)
	err := s.write(ctx, s.keys.Cleaned(), data, blob.PutOptions{
		ContentType: contentTypeCSV,
		Metadata:    map[string]string{MetaSourceDigest: digest, MetaRowCount: strconv.Itoa(rows)},
	})
	return digest, err
}

// WriteArtifact replaces the cache artifact.
func (s *Store) WriteArtifact(ctx context.Context, data []byte) error {
	return s.write(ctx, s.keys.Artifact(), data, blob.PutOptions{ContentType: contentTypeJSON})
}

// CleanedDigest returns the digest recorded with the cleaned dataset without
// reading its body. Blobs written by hand carry no digest and return "".
func (s *Store) CleanedDigest(ctx context.Context) (string, error) {
	info, err := s.blobs.Head(ctx, s.keys.Cleaned())
	if err != nil {
		return "", s.wrap("head", s.keys.Cleaned(), err)
	}
	return info.Metadata[MetaSourceDigest], nil
}

// Status reports each fixed artifact's blob info; absent artifacts are omitted.
func (s *Store) Status(ctx context.Context) ([]blob.Info, error) {
	var out []blob.Info
	for _, key := range s.keys.All() {
		info, err := s.blobs.Head(ctx, key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, domain.StorageUnavailableError{Op: "head", Key: key, Err: err}
		}
		out = append(out, info)
	}
	return out, nil
}

// List returns every blob under the container prefix.
func (s *Store) List(ctx context.Context) ([]blob.Info, error) {
	prefix := ""
	if s.keys.Container != "" {
		prefix = s.keys.Container + "/"
	}
	infos, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, domain.StorageUnavailableError{Op: "list", Key: prefix, Err: err}
	}
	return infos, nil
}

// ClearArtifact deletes the cache artifact, forcing every view onto the
// fallback path until the next pipeline run.
func (s *Store) ClearArtifact(ctx context.Context) (bool, error) {
	ok, err := s.blobs.Delete(ctx, s.keys.Artifact())
	if err != nil {
		return false, domain.StorageUnavailableError{Op: "delete", Key: s.keys.Artifact(), Err: err}
	}
	return ok, nil
}
