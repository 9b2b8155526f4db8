// Package download fetches pre-signed document links to local files.
package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/storage"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Timeout bounds connecting, waiting for the response headers and every
// gap between body reads. A slow but steady transfer never times out.
type Config struct {
	Timeout   time.Duration
	ChunkSize int
	UserAgent string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultTimeout,
		ChunkSize: storage.DefaultChunkSize,
		UserAgent: DefaultUserAgent,
	}
}

// Manager performs single-attempt streamed downloads. Retrying is left to
// the caller.
type Manager struct {
	httpClient *http.Client
	cfg        Config
	logger     logger.Logger
}

func NewManager(cfg Config, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = storage.DefaultChunkSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client := &http.Client{Transport: cfg.Transport}
	if client.Transport == nil {
		client.Transport = newTransport(cfg.Timeout)
	}

	return &Manager{
		httpClient: client,
		cfg:        cfg,
		logger:     log,
	}
}

// Fetch downloads url into dest and returns the number of bytes written.
// The status code is checked before anything is written: 403 yields an
// expired-URL error, other non-200 codes a download error carrying the
// status. Nothing is left at dest when an error is returned.
func (m *Manager) Fetch(ctx context.Context, url, dest string) (int64, error) {
	if err := storage.EnsureDir(filepath.Dir(dest)); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeDownload, err, "invalid download request").WithDetails("URL: " + errs.Truncate(url, 50))
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	start := time.Now()
	m.logger.DebugWithFields("starting download", map[string]interface{}{
		"url":  errs.Truncate(url, 50),
		"dest": dest,
	})

	idle := newIdleWatch(ctx, m.cfg.Timeout)
	defer idle.stop()

	resp, err := m.httpClient.Do(req.WithContext(idle.ctx))
	if err != nil {
		return 0, errs.Classify(idle.cause(err), 0, url)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if err := errs.Classify(nil, resp.StatusCode, url); err != nil {
		m.logger.WarnWithFields("download rejected", map[string]interface{}{
			"url":    errs.Truncate(url, 50),
			"status": resp.StatusCode,
		})
		return 0, err
	}

	n, err := storage.WriteStream(idle.reader(resp.Body), dest, m.cfg.ChunkSize)
	if err != nil {
		// A body read that timed out mid-stream is still a timeout.
		if classified := errs.Classify(unwrapCause(err), 0, url); errs.IsRetryable(classified) {
			return 0, classified
		}
		return 0, err
	}

	m.logger.DebugWithFields("download completed", map[string]interface{}{
		"dest":     dest,
		"bytes":    n,
		"duration": time.Since(start),
	})
	return n, nil
}

func newTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// idleWatch cancels a request when no progress is made for timeout. The
// timer is armed before the request is sent and reset after every body
// read that returns data.
type idleWatch struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	timeout time.Duration
	expired atomic.Bool
}

func newIdleWatch(parent context.Context, timeout time.Duration) *idleWatch {
	w := &idleWatch{timeout: timeout}
	w.ctx, w.cancel = context.WithCancel(parent)
	w.timer = time.AfterFunc(timeout, func() {
		w.expired.Store(true)
		w.cancel()
	})
	return w
}

func (w *idleWatch) stop() {
	w.timer.Stop()
	w.cancel()
}

// cause replaces the cancellation caused by an idle timeout with a deadline
// error so that it is classified as a timeout.
func (w *idleWatch) cause(err error) error {
	if err != nil && err != io.EOF && w.expired.Load() {
		return fmt.Errorf("no data received for %s: %w", w.timeout, context.DeadlineExceeded)
	}
	return err
}

func (w *idleWatch) reader(r io.Reader) io.Reader {
	return &idleReader{r: r, watch: w}
}

type idleReader struct {
	r     io.Reader
	watch *idleWatch
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && !ir.watch.expired.Load() {
		ir.watch.timer.Reset(ir.watch.timeout)
	}
	return n, ir.watch.cause(err)
}

func unwrapCause(err error) error {
	if e, ok := err.(*errs.Error); ok && e.Err != nil {
		return e.Err
	}
	return err
}

// Close releases idle connections held by the client.
func (m *Manager) Close() error {
	m.httpClient.CloseIdleConnections()
	return nil
}
