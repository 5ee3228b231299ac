package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inkstamp/paperless-stamp/config"
)

// fakeS3 accepts bucket and object requests the way a minimal S3 endpoint would
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string][]byte
	metadata map[string]http.Header
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		buckets:  make(map[string]bool),
		objects:  make(map[string][]byte),
		metadata: make(map[string]http.Header),
	}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, object, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case object == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case object == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case object != "" && r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+object] = data
		f.metadata[bucket+"/"+object] = r.Header.Clone()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestArchive(t *testing.T, fake *fakeS3) *ArchiveService {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	u, _ := url.Parse(server.URL)
	svc, err := NewArchiveService(&config.MinioConfig{
		Endpoint:   u.Host,
		AccessKey:  "test",
		SecretKey:  "test-secret",
		Bucket:     "stamped",
		Region:     "us-east-1",
		ExpireDays: 7,
	})
	if err != nil {
		t.Fatalf("Failed to create archive service: %v", err)
	}
	return svc
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	got := ObjectName(42, "cycle-1", at)
	expected := "documents/42/20240315T093000Z-cycle-1.pdf"
	if got != expected {
		t.Errorf("Expected '%s', got '%s'", expected, got)
	}
}

func TestArchiveEnsureBucket(t *testing.T) {
	fake := newFakeS3()
	svc := newTestArchive(t, fake)

	if err := svc.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !fake.buckets["stamped"] {
		t.Error("Expected bucket to be created")
	}

	// second call finds the bucket
	if err := svc.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestArchiveStore(t *testing.T) {
	fake := newFakeS3()
	fake.buckets["stamped"] = true
	svc := newTestArchive(t, fake)

	name, err := svc.Store(context.Background(), 7, "cycle-abc", []byte("%PDF-1.7 stamped"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(name, "documents/7/") || !strings.HasSuffix(name, "-cycle-abc.pdf") {
		t.Errorf("Unexpected object name %s", name)
	}

	data, ok := fake.objects["stamped/"+name]
	if !ok {
		t.Fatalf("Expected object stamped/%s to be stored", name)
	}
	// plain-http uploads arrive with a streaming signature, so the payload is chunk framed
	if !strings.Contains(string(data), "%PDF-1.7 stamped") {
		t.Errorf("Unexpected stored content %q", data)
	}
	if ct := fake.metadata["stamped/"+name].Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf content type, got %s", ct)
	}
}

func TestArchiveStoreCancelled(t *testing.T) {
	svc := newTestArchive(t, newFakeS3())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Store(ctx, 1, "c", []byte("x")); err == nil {
		t.Error("Expected error with cancelled context")
	}
}

func TestArchivePresignedURL(t *testing.T) {
	svc := newTestArchive(t, newFakeS3())

	u, err := svc.GetPresignedURL(context.Background(), "documents/1/a.pdf")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(u, "/stamped/documents/1/a.pdf") {
		t.Errorf("Expected object path in URL, got %s", u)
	}
	if !strings.Contains(u, "X-Amz-Expires=604800") {
		t.Errorf("Expected 7 day expiry, got %s", u)
	}
}
