package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"

	"dietinsights/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "datasets/file.csv", bytes.NewReader([]byte("hello")), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"source-digest": "abc123"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "datasets/file.csv" || info.ContentType != "text/csv" || info.Size != 5 {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.Metadata["source-digest"] != "abc123" {
		t.Fatalf("metadata not round-tripped: %v", info.Metadata)
	}
	_, rc, err := store.Get(ctx, "datasets/file.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "datasets/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "datasets/file.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "datasets/file.csv"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "cached_results.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put1: %v", err)
	}
	if _, err := store.Put(ctx, "cached_results.json", strings.NewReader(`{"v":2}`), core.PutOptions{}); err != nil {
		t.Fatalf("put2: %v", err)
	}
	_, rc, err := store.Get(ctx, "cached_results.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	b, _ := io.ReadAll(rc)
	if string(b) != `{"v":2}` {
		t.Fatalf("expected overwrite, got %q", b)
	}
}

type nonSeeker struct{ r io.Reader }

func (n nonSeeker) Read(p []byte) (int, error) { return n.r.Read(p) }

func TestStore_PutBuffersNonSeekableReader(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "stream.csv", nonSeeker{strings.NewReader("a,b\n1,2\n")}, core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("a,b\n1,2\n")) {
		t.Fatalf("unexpected size %d", info.Size)
	}
}

func TestStore_NotFoundMapsToSentinel(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStore_ListPaginates(t *testing.T) {
	rt := newMockTransport()
	rt.pageSize = 1
	store := newMockStore(rt, "paged")
	ctx := context.Background()
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, err := store.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "k")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[2].Key != "k3" {
		t.Fatalf("expected three items via pagination, got %+v", list)
	}
	if empty, err := store.List(ctx, "none/"); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, empty)
	}
}

func TestStore_New(t *testing.T) {
	s, err := New(context.Background(), Config{
		Bucket: "bkt", Region: "us-east-1", Endpoint: "https://mock.s3.local", PathStyle: true,
		AccessKeyID: "AKIA", SecretAccessKey: "SECRET",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.Bucket() != "bkt" {
		t.Fatalf("unexpected store %+v", s)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestFromHeadNilBranches(t *testing.T) {
	info := fromHead("k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 || info.LastModified.IsZero() {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	if _, ok := decodeAWSChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected failure for plain body")
	}
	if b, ok := decodeAWSChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected hello, got %q %v", b, ok)
	}
	if b, ok := decodeAWSChunked([]byte("3;chunk-signature=x\r\nabc\r\n2\r\nde\r\n0\r\n\r\n")); !ok || string(b) != "abcde" {
		t.Fatalf("expected multi-chunk decode, got %q %v", b, ok)
	}
}

func TestMockTransportUnsupported(t *testing.T) {
	rt := newMockTransport()
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
