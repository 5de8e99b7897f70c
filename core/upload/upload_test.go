package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/sirupsen/logrus"
)

type memProducts struct {
	mu       sync.Mutex
	products map[string]product.Product
	keys     map[product.Key]string
}

func newMemProducts(ps ...product.Product) *memProducts {
	m := &memProducts{products: map[string]product.Product{}, keys: map[product.Key]string{}}
	for _, p := range ps {
		m.products[p.ID] = p
	}
	return m
}

func (m *memProducts) Fetch(_ context.Context, id string) (product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return product.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, nil
}

func (m *memProducts) SetKey(_ context.Context, id string, col product.Key, key string, add product.ContentType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	if add != "" {
		p.Types = p.Types.With(add)
	}
	m.products[id] = p
	m.keys[col] = key
	return nil
}

type multipartUpload struct {
	key   string
	parts map[int32][]byte
}

type memObjects struct {
	objects map[string][]byte
	uploads map[string]*multipartUpload
	aborted []string
	next    int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, uploads: map[string]*multipartUpload{}}
}

func (m *memObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memObjects) CreateMultipart(_ context.Context, key, _ string) (string, error) {
	m.next++
	id := fmt.Sprintf("mp-%d", m.next)
	m.uploads[id] = &multipartUpload{key: key, parts: map[int32][]byte{}}
	return id, nil
}

func (m *memObjects) UploadPart(_ context.Context, key, uploadID string, n int32, data []byte) (storage.Part, error) {
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return storage.Part{}, errors.New("no such upload")
	}
	up.parts[n] = data
	return storage.Part{Number: n, ETag: fmt.Sprintf("etag-%d", n)}, nil
}

func (m *memObjects) CompleteMultipart(_ context.Context, key, uploadID string, parts []storage.Part) error {
	up, ok := m.uploads[uploadID]
	if !ok {
		return errors.New("no such upload")
	}
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(up.parts[p.Number])
	}
	m.objects[key] = buf.Bytes()
	delete(m.uploads, uploadID)
	return nil
}

func (m *memObjects) AbortMultipart(_ context.Context, _ string, uploadID string) error {
	delete(m.uploads, uploadID)
	m.aborted = append(m.aborted, uploadID)
	return nil
}

const productID = "8a1d4b0e-6c43-4a1f-9d39-6f0b1c2d3e4f"

func newUploader(t *testing.T) (*Uploader, *memProducts, *memObjects) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	products := newMemProducts(product.Product{
		ID:          productID,
		Slug:        "deep-work",
		StoragePath: "products/deep-work",
		Types:       product.Types{product.TypeEbook},
	})
	objects := newMemObjects()
	sessions := NewMemoryStore(time.Hour, time.Hour)
	t.Cleanup(sessions.Stop)

	u := New(Config{Products: products, Store: objects, Sessions: sessions, Log: log})
	return u, products, objects
}

func TestDirect(t *testing.T) {
	u, products, objects := newUploader(t)
	ctx := context.Background()

	res, err := u.Direct(ctx, File{ProductID: productID, Role: storage.RoleDocument, FileName: "Deep Work.PDF"}, []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}

	want := Result{Success: true, Key: "products/deep-work/deep-work.pdf", FileType: storage.RoleDocument}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if string(objects.objects[want.Key]) != "%PDF" {
		t.Fatalf("object not stored at %s", want.Key)
	}
	if products.keys[product.KeyDocument] != want.Key {
		t.Fatalf("document key not recorded: %v", products.keys)
	}
}

func TestDirectSummaryAddsContentType(t *testing.T) {
	u, products, _ := newUploader(t)

	res, err := u.Direct(context.Background(), File{ProductID: productID, Role: storage.RoleSummaryAudio, FileName: "s.mp3"}, []byte("ID3"))
	if err != nil {
		t.Fatal(err)
	}

	if res.Key != "products/deep-work/audio_summary/deep-work_SUMMARY.mp3" {
		t.Fatalf("key = %s", res.Key)
	}
	p, _ := products.Fetch(context.Background(), productID)
	if !p.Types.Has(product.TypeSummary) {
		t.Fatalf("types = %v, want SUMMARY added", p.Types)
	}
}

func TestDirectRejects(t *testing.T) {
	u, _, objects := newUploader(t)
	ctx := context.Background()

	tests := []struct {
		name string
		file File
		want error
	}{
		{name: "wrong type", file: File{ProductID: productID, Role: storage.RoleCover, FileName: "cover.pdf"}, want: storage.ErrInvalidType},
		{name: "unknown product", file: File{ProductID: "missing", Role: storage.RoleCover, FileName: "cover.png"}, want: ErrProductNotFound},
		{name: "chapter without number", file: File{ProductID: productID, Role: storage.RoleChapter, FileName: "c.mp3"}, want: storage.ErrInvalidType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := u.Direct(ctx, tc.file, []byte("x")); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if len(objects.objects) != 0 {
		t.Fatalf("rejected uploads stored %d objects", len(objects.objects))
	}
}

func TestChunkedUpload(t *testing.T) {
	u, _, objects := newUploader(t)
	ctx := context.Background()

	f := File{ProductID: productID, Role: storage.RoleChapter, FileName: "one.opus", Size: 9, Chapter: 1}
	s, err := u.Init(ctx, f, 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != "products/deep-work/chapters/deep-work_chapter_01.opus" {
		t.Fatalf("key = %s", s.Key)
	}

	if _, err := u.Finalize(ctx, s.ID); !errors.Is(err, ErrMissingChunks) {
		t.Fatalf("finalize without chunks: got %v", err)
	}

	chunks := []string{"aaa", "bbb", "ccc"}
	for _, i := range []int{2, 0, 1} {
		p, err := u.Chunk(ctx, s.ID, i, []byte(chunks[i]))
		if err != nil {
			t.Fatal(err)
		}
		if p.TotalChunks != 3 {
			t.Fatalf("progress = %+v", p)
		}
	}

	if _, err := u.Chunk(ctx, s.ID, 3, []byte("ddd")); !errors.Is(err, ErrChunkIndex) {
		t.Fatalf("out of range chunk: got %v", err)
	}

	res, err := u.Finalize(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(objects.objects[res.Key]); got != "aaabbbccc" {
		t.Fatalf("assembled object = %q", got)
	}

	if _, err := u.Chunk(ctx, s.ID, 0, []byte("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("chunk after finalize: got %v", err)
	}
}

func TestChunkProgress(t *testing.T) {
	u, _, _ := newUploader(t)
	ctx := context.Background()

	s, err := u.Init(ctx, File{ProductID: productID, Role: storage.RoleAudio, FileName: "book.mp3", Size: 10}, 4)
	if err != nil {
		t.Fatal(err)
	}

	p, err := u.Chunk(ctx, s.ID, 0, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	want := Progress{Success: true, UploadedChunks: 1, TotalChunks: 4, Progress: 25}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}

	p, err = u.Chunk(ctx, s.ID, 0, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if p.UploadedChunks != 1 {
		t.Fatalf("resent chunk counted twice: %+v", p)
	}
}

func TestCancel(t *testing.T) {
	u, _, objects := newUploader(t)
	ctx := context.Background()

	s, err := u.Init(ctx, File{ProductID: productID, Role: storage.RoleAudio, FileName: "book.mp3", Size: 10}, 2)
	if err != nil {
		t.Fatal(err)
	}

	if err := u.Cancel(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{s.UploadID}, objects.aborted); diff != "" {
		t.Fatalf("aborted mismatch (-want +got):\n%s", diff)
	}

	if err := u.Cancel(ctx, s.ID); err != nil {
		t.Fatalf("cancelling twice: %v", err)
	}
	if _, err := u.Finalize(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("finalize after cancel: got %v", err)
	}
}

func TestChunksOverCeiling(t *testing.T) {
	u, _, objects := newUploader(t)
	ctx := context.Background()

	s, err := u.Init(ctx, File{ProductID: productID, Role: storage.RoleCover, FileName: "cover.png", Size: 1}, 3)
	if err != nil {
		t.Fatal(err)
	}

	chunk := make([]byte, 3*1024*1024)
	if _, err := u.Chunk(ctx, s.ID, 0, chunk); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Chunk(ctx, s.ID, 0, chunk); err != nil {
		t.Fatalf("resent chunk counted twice: %v", err)
	}

	if _, err := u.Chunk(ctx, s.ID, 1, chunk); !errors.Is(err, storage.ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
	if diff := cmp.Diff([]string{s.UploadID}, objects.aborted); diff != "" {
		t.Fatalf("aborted mismatch (-want +got):\n%s", diff)
	}
	if _, err := u.Chunk(ctx, s.ID, 2, []byte("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("chunk after rejection: got %v", err)
	}

	s, err = u.Init(ctx, File{ProductID: productID, Role: storage.RoleCover, FileName: "cover.png", Size: 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := u.Chunk(ctx, s.ID, 0, make([]byte, 6*1024*1024)); !errors.Is(err, storage.ErrTooLarge) {
		t.Fatalf("oversized single chunk: got %v", err)
	}
	if len(objects.uploads) != 0 {
		t.Fatalf("%d multipart uploads left open", len(objects.uploads))
	}
}

func TestExpiredSessionAborts(t *testing.T) {
	u, _, objects := newUploader(t)
	ctx := context.Background()

	s, err := u.Init(ctx, File{ProductID: productID, Role: storage.RoleAudio, FileName: "book.mp3", Size: 10}, 2)
	if err != nil {
		t.Fatal(err)
	}

	u.Expired(s)
	if diff := cmp.Diff([]string{s.UploadID}, objects.aborted); diff != "" {
		t.Fatalf("aborted mismatch (-want +got):\n%s", diff)
	}
}
