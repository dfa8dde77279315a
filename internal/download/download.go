// SPDX-License-Identifier: MPL-2.0

// Package download fetches module archives over HTTP(S) or file:// URLs and
// verifies their SHA-256 checksum while streaming them to disk.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// StatusOK means the file was fetched and verified.
	StatusOK Status = iota
	// StatusTransport covers connection errors, non-200 responses and cancellation.
	StatusTransport
	// StatusSizeMismatch means the body did not match Content-Length.
	StatusSizeMismatch
	// StatusChecksumMismatch means the SHA-256 digest did not match.
	StatusChecksumMismatch
)

const (
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 2
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 5 * time.Minute

	userAgent = "moduled/%s"
)

type (
	// Status classifies the outcome of Fetch.
	Status int

	// ProgressFunc receives download progress. total is -1 and percent is -1
	// when the server sent no Content-Length.
	ProgressFunc func(done, total int64, percent float64)

	// Result describes a finished download.
	Result struct {
		// Path is the downloaded file; empty unless Status is StatusOK.
		Path   string
		Size   int64
		SHA256 string
		Status Status
	}

	// Downloader fetches files with retries.
	Downloader struct {
		client     *http.Client
		retries    int
		newBackOff func() backoff.BackOff
		logger     *slog.Logger
		version    string
	}

	// Option configures a Downloader.
	Option func(*Downloader)
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTransport:
		return "transport error"
	case StatusSizeMismatch:
		return "size mismatch"
	case StatusChecksumMismatch:
		return "checksum mismatch"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

// WithTimeout sets the per-attempt timeout of the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Downloader) { d.client.Timeout = timeout }
}

// WithRetries sets how many times a failed attempt is retried.
func WithRetries(n int) Option {
	return func(d *Downloader) { d.retries = max(n, 0) }
}

// WithBackOff sets the retry delay policy. The factory is called once per Fetch.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(d *Downloader) { d.newBackOff = factory }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// WithVersion sets the version reported in the User-Agent header.
func WithVersion(v string) Option {
	return func(d *Downloader) { d.version = v }
}

// New creates a Downloader. The default client also serves file:// URLs.
func New(opts ...Option) *Downloader {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))

	d := &Downloader{
		client:  &http.Client{Transport: transport, Timeout: DefaultTimeout},
		retries: DefaultRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads url into a new file under dir. When expectedSHA256 is not
// empty the digest of the received bytes must match it.
//
// The returned Result always carries a Status; on failure no file is left
// behind and the error wraps ErrTransport, ErrSizeMismatch or
// ErrChecksumMismatch (or the context error after cancellation).
func (d *Downloader) Fetch(ctx context.Context, url, expectedSHA256, dir string, progress ProgressFunc) (res Result, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Status: StatusTransport}, fmt.Errorf("create download directory: %w", err)
	}

	out, err := os.CreateTemp(dir, "download-*.part")
	if err != nil {
		return Result{Status: StatusTransport}, fmt.Errorf("create download file: %w", err)
	}
	path := out.Name()

	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
			res = Result{Status: StatusTransport}
		}
		if err != nil {
			_ = os.Remove(path) // Best-effort cleanup
		}
	}()

	var size int64
	var digest string
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			if err := out.Truncate(0); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to truncate file on retry: %w", err))
			}
			if _, err := out.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to seek to beginning of file: %w", err))
			}
		}

		var onceErr error
		size, digest, onceErr = d.fetchOnce(ctx, url, out, progress)
		if onceErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(onceErr)
		}
		var statusErr *HTTPStatusError
		if errors.As(onceErr, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(onceErr)
		}
		return onceErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), uint64(d.retries)), ctx)
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("download failed, retrying", "url", url, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return Result{Status: Classify(err)}, err
	}

	if expectedSHA256 != "" && !strings.EqualFold(digest, expectedSHA256) {
		return Result{Status: StatusChecksumMismatch, Size: size, SHA256: digest}, &ChecksumError{
			URL:      url,
			Expected: strings.ToLower(expectedSHA256),
			Got:      digest,
		}
	}

	if err := out.Sync(); err != nil {
		return Result{Status: StatusTransport}, fmt.Errorf("sync download file: %w", err)
	}

	d.logger.Debug("download complete", "url", url, "path", path, "bytes", size)
	return Result{Path: path, Size: size, SHA256: digest, Status: StatusOK}, nil
}

// fetchOnce performs one GET and streams the body into out, hashing it on the way.
func (d *Downloader) fetchOnce(ctx context.Context, url string, out io.Writer, progress ProgressFunc) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, "", fmt.Errorf("%w: failed to create HTTP request: %w", ErrTransport, err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, d.version))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() {
		// Body is fully consumed or abandoned; close errors carry no information.
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, "", &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	h := sha256.New()
	body := &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	n, err := io.Copy(io.MultiWriter(out, h), body)
	if err != nil {
		if ctx.Err() != nil {
			return n, "", fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
		}
		if errors.Is(err, io.ErrUnexpectedEOF) && resp.ContentLength > 0 {
			return n, "", &SizeError{URL: url, Expected: resp.ContentLength, Got: n}
		}
		return n, "", fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, "", &SizeError{URL: url, Expected: resp.ContentLength, Got: n}
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Classify maps a Fetch error to a Status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrChecksumMismatch):
		return StatusChecksumMismatch
	case errors.Is(err, ErrSizeMismatch):
		return StatusSizeMismatch
	default:
		return StatusTransport
	}
}

type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.done += int64(n)
		percent := -1.0
		if p.total > 0 {
			percent = float64(p.done) * 100 / float64(p.total)
		}
		p.fn(p.done, p.total, percent)
	}
	return n, err
}
