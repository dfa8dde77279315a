// SPDX-License-Identifier: MPL-2.0

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newTestDownloader(retries int) *Downloader {
	return New(
		WithRetries(retries),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover files in %s, found %d", dir, len(entries))
	}
}

func TestFetch_OK(t *testing.T) {
	t.Parallel()

	payload := []byte("module archive bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var lastDone int64
	var lastPercent float64
	dir := t.TempDir()
	res, err := newTestDownloader(0).Fetch(context.Background(), srv.URL, sha(payload), dir, func(done, _ int64, percent float64) {
		lastDone = done
		lastPercent = percent
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Status != StatusOK {
		t.Errorf("Status = %v, want ok", res.Status)
	}
	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("content = %q", got)
	}
	if lastDone != int64(len(payload)) || lastPercent != 100 {
		t.Errorf("final progress = %d bytes, %.0f%%", lastDone, lastPercent)
	}
}

func TestFetch_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := newTestDownloader(0).Fetch(context.Background(), srv.URL, sha([]byte("original")), dir, nil)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Fetch() error = %v, want ErrChecksumMismatch", err)
	}
	var csErr *ChecksumError
	if !errors.As(err, &csErr) || csErr.Got != sha([]byte("tampered")) {
		t.Errorf("expected *ChecksumError with actual digest, got %v", err)
	}
	if res.Status != StatusChecksumMismatch {
		t.Errorf("Status = %v", res.Status)
	}
	assertEmptyDir(t, dir)
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := newTestDownloader(3).Fetch(context.Background(), srv.URL, "", dir, nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Fetch() error = %v, want ErrTransport", err)
	}
	if res.Status != StatusTransport {
		t.Errorf("Status = %v", res.Status)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
	assertEmptyDir(t, dir)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	payload := []byte("second time lucky")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("partial garbage"))
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	res, err := newTestDownloader(1).Fetch(context.Background(), srv.URL, sha(payload), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Size != int64(len(payload)) {
		t.Errorf("Size = %d", res.Size)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestFetch_SizeMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("only ten b"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := newTestDownloader(0).Fetch(context.Background(), srv.URL, "", dir, nil)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Fetch() error = %v, want ErrSizeMismatch", err)
	}
	if res.Status != StatusSizeMismatch {
		t.Errorf("Status = %v", res.Status)
	}
	assertEmptyDir(t, dir)
}

func TestFetch_FileURL(t *testing.T) {
	t.Parallel()

	payload := []byte("local archive")
	src := filepath.Join(t.TempDir(), "demo.zip")
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := newTestDownloader(0).Fetch(context.Background(), "file://"+filepath.ToSlash(src), sha(payload), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Status != StatusOK {
		t.Errorf("Status = %v", res.Status)
	}
}

func TestFetch_Canceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	res, err := newTestDownloader(2).Fetch(ctx, srv.URL, "", dir, nil)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if res.Status != StatusTransport {
		t.Errorf("Status = %v", res.Status)
	}
	assertEmptyDir(t, dir)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{&ChecksumError{}, StatusChecksumMismatch},
		{&SizeError{}, StatusSizeMismatch},
		{&HTTPStatusError{StatusCode: 500}, StatusTransport},
		{context.Canceled, StatusTransport},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
