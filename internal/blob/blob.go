// Package blob stores uploaded project files in a Go CDK bucket and serves
// them under a public base URL. A plain directory path opens a local
// filesystem bucket; any URL with a linked driver (file://, mem://) opens
// through blob.OpenBucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrNotExist   = errors.New("object does not exist")
)

// attrsSuffix names the sidecar files the file driver keeps next to objects.
const attrsSuffix = ".attrs"

// Store wraps a bucket and the public prefix its objects are served under.
type Store struct {
	bucket  *blob.Bucket
	baseURL string
}

// New opens a filesystem bucket rooted at dir, creating it when missing.
// baseURL is the public prefix that object keys are appended to.
func New(ctx context.Context, dir, baseURL string) (*Store, error) {
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true, NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", dir, err)
	}
	return newStore(b, baseURL), nil
}

// Open opens location, which is either a bucket URL such as
// "file:///var/lib/folio/files" or "mem://", or a directory path.
func Open(ctx context.Context, location, baseURL string) (*Store, error) {
	if !strings.Contains(location, "://") {
		return New(ctx, location, baseURL)
	}
	b, err := blob.OpenBucket(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", location, err)
	}
	return newStore(b, baseURL), nil
}

func newStore(b *blob.Bucket, baseURL string) *Store {
	return &Store{bucket: b, baseURL: strings.TrimRight(baseURL, "/")}
}

// Close releases the bucket.
func (s *Store) Close() error { return s.bucket.Close() }

// Key builds an object key from path segments.
func Key(parts ...string) string {
	return path.Join(parts...)
}

// Put writes r to key, replacing any existing object, and returns the number
// of bytes written. An empty contentType is sniffed from the data. Readers
// never observe a partially written object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		// Cancelling before Close discards the write.
		cancel()
		_ = w.Close()
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	return n, nil
}

// Open returns a reader for key. A missing object yields ErrNotExist.
func (s *Store) Open(ctx context.Context, key string) (*blob.Reader, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return nil, err
	}
	return r, nil
}

// Delete removes key. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL for key.
func (s *Store) URL(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segs, "/")
}

// Available reports whether the bucket accepts writes by storing and
// removing a check object.
func (s *Store) Available(ctx context.Context) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("bucket is not accessible")
	}
	check := ".check-" + uuid.NewString()
	if err := s.bucket.WriteAll(ctx, check, nil, nil); err != nil {
		return fmt.Errorf("write check object: %w", err)
	}
	return s.bucket.Delete(ctx, check)
}

// Handler serves objects read-only. Mount it under the base URL path with
// http.StripPrefix.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		rd, err := s.Open(r.Context(), key)
		switch {
		case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrNotExist):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		defer rd.Close()

		h := w.Header()
		if ct := rd.ContentType(); ct != "" {
			h.Set("Content-Type", ct)
		}
		h.Set("Content-Length", strconv.FormatInt(rd.Size(), 10))
		h.Set("Last-Modified", rd.ModTime().UTC().Format(http.TimeFormat))
		h.Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.Copy(w, rd)
		}
	})
}

// checkKey accepts clean relative keys without dot segments.
func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || strings.HasSuffix(key, attrsSuffix) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
