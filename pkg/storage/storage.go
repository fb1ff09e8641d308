// Package storage resolves URIs into byte sources.
//
// A URI resolves to either a seekable local file or a forward-only byte
// stream. Supported schemes are bare paths and file:// (local files),
// mem:// (in-memory blobs, used heavily by tests), and http(s)://.
// Retries are deliberately absent; callers own retry policy.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/strataframe/strata/pkg/errors"
)

// IOStats tracks byte-source activity for a set of reads. It is shared
// by reference so callers can assert on the number of opens performed
// (for example, that statistics pruning triggered zero I/O).
type IOStats struct {
	opens     atomic.Int64
	bytesRead atomic.Int64
}

// NewIOStats returns a fresh counter set
func NewIOStats() *IOStats {
	return &IOStats{}
}

// Opens returns the number of URIs opened
func (s *IOStats) Opens() int64 {
	if s == nil {
		return 0
	}
	return s.opens.Load()
}

// BytesRead returns the number of bytes consumed from opened sources
func (s *IOStats) BytesRead() int64 {
	if s == nil {
		return 0
	}
	return s.bytesRead.Load()
}

func (s *IOStats) markOpen() {
	if s != nil {
		s.opens.Add(1)
	}
}

func (s *IOStats) addBytes(n int64) {
	if s != nil {
		s.bytesRead.Add(n)
	}
}

// OpenResult is the outcome of resolving a URI: exactly one of Path or
// Stream is set. Path points at a seekable local file; Stream is a
// forward-only reader that the caller must close.
type OpenResult struct {
	Path   string
	Stream io.ReadCloser
	Size   int64 // -1 when unknown
}

// IsLocal reports whether the result is a seekable local file
func (r *OpenResult) IsLocal() bool {
	return r.Path != ""
}

// Reader returns a reader over the result contents. For local files the
// file is opened lazily; the returned closer must always be closed.
func (r *OpenResult) Reader() (io.ReadCloser, error) {
	if r.IsLocal() {
		f, err := os.Open(r.Path)
		if err != nil {
			return nil, errors.Wrapf(err, errors.TypeIO, "failed to open local file %s", r.Path)
		}
		return f, nil
	}
	return r.Stream, nil
}

// Client resolves URIs into byte sources
type Client struct {
	stats *IOStats
	httpc *http.Client

	mu  sync.RWMutex
	mem map[string][]byte
}

// Option configures a Client
type Option func(*Client)

// WithIOStats attaches a shared counter set to the client
func WithIOStats(stats *IOStats) Option {
	return func(c *Client) { c.stats = stats }
}

// WithHTTPClient overrides the HTTP client used for http(s) URIs
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient creates a URI resolver
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpc: http.DefaultClient,
		mem:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the client's counter set (may be nil)
func (c *Client) Stats() *IOStats {
	return c.stats
}

// RegisterMem registers an in-memory blob reachable as mem://<name>
func (c *Client) RegisterMem(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[name] = data
}

// Open resolves a URI into a local file or a byte stream
func (c *Client) Open(ctx context.Context, uri string) (*OpenResult, error) {
	c.stats.markOpen()

	switch {
	case strings.HasPrefix(uri, "mem://"):
		return c.openMem(uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return c.openHTTP(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, errors.Wrapf(err, errors.TypeConfig, "invalid file URI %s", uri)
		}
		return c.openLocal(u.Path)
	default:
		if i := strings.Index(uri, "://"); i >= 0 {
			return nil, errors.Newf(errors.TypeCapability, "unsupported URI scheme %q", uri[:i])
		}
		return c.openLocal(uri)
	}
}

func (c *Client) openLocal(path string) (*OpenResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeIO, "failed to stat %s", path)
	}
	if info.IsDir() {
		return nil, errors.Newf(errors.TypeIO, "%s is a directory, not a file", path)
	}
	return &OpenResult{Path: path, Size: info.Size()}, nil
}

func (c *Client) openMem(uri string) (*OpenResult, error) {
	name := strings.TrimPrefix(uri, "mem://")
	c.mu.RLock()
	data, ok := c.mem[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.TypeIO, "no in-memory blob registered for %s", uri)
	}
	rc := io.NopCloser(strings.NewReader(string(data)))
	return &OpenResult{Stream: c.countingCloser(rc), Size: int64(len(data))}, nil
}

func (c *Client) openHTTP(ctx context.Context, uri string) (*OpenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeConfig, "invalid URI %s", uri)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.TypeIO, "GET %s failed", uri)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Newf(errors.TypeIO, "GET %s returned status %d", uri, resp.StatusCode)
	}
	return &OpenResult{Stream: c.countingCloser(resp.Body), Size: resp.ContentLength}, nil
}

func (c *Client) countingCloser(rc io.ReadCloser) io.ReadCloser {
	if c.stats == nil {
		return rc
	}
	return &countingReadCloser{rc: rc, stats: c.stats}
}

type countingReadCloser struct {
	rc    io.ReadCloser
	stats *IOStats
}

func (r *countingReadCloser) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.stats.addBytes(int64(n))
	return n, err
}

func (r *countingReadCloser) Close() error {
	return r.rc.Close()
}

var _ fmt.Stringer = (*OpenResult)(nil)

func (r *OpenResult) String() string {
	if r.IsLocal() {
		return fmt.Sprintf("local(%s)", r.Path)
	}
	return fmt.Sprintf("stream(size=%d)", r.Size)
}
