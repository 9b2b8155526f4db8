package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
)

const s3URL = "https://wellbin-uploads.s3.amazonaws.com/reports/abc.pdf?X-Amz-Signature=deadbeef"

func newTestManager(cfg Config) *Manager {
	return NewManager(cfg, logger.NewNopLogger())
}

func assertNothingWritten(t *testing.T, dest string) {
	t.Helper()
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "expected no file at %s", dest)
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err), "expected no temporary file for %s", dest)
}

func TestFetchSuccess(t *testing.T) {
	body := bytes.Repeat([]byte("%PDF-1.7\n"), 4000)
	var gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(body)
	}))
	defer srv.Close()

	m := newTestManager(DefaultConfig())
	defer m.Close()

	dest := filepath.Join(t.TempDir(), "lab_reports", "20240604-lab-0.pdf")
	n, err := m.Fetch(context.Background(), srv.URL+"/doc.pdf", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, DefaultUserAgent, gotUA)

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, written)
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType errs.ErrorType
	}{
		{"expired link", http.StatusForbidden, errs.ErrorTypeURLExpired},
		{"not found", http.StatusNotFound, errs.ErrorTypeDownload},
		{"server error", http.StatusInternalServerError, errs.ErrorTypeDownload},
		{"unavailable", http.StatusServiceUnavailable, errs.ErrorTypeDownload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", s3URL, httpmock.NewStringResponder(tt.status, "<Error>denied</Error>"))

			cfg := DefaultConfig()
			cfg.Transport = transport
			m := newTestManager(cfg)

			dest := filepath.Join(t.TempDir(), "out.pdf")
			n, err := m.Fetch(context.Background(), s3URL, dest)
			require.Error(t, err)
			assert.Zero(t, n)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assertNothingWritten(t, dest)

			var typed *errs.Error
			require.True(t, errors.As(err, &typed))
			assert.Equal(t, tt.status, typed.StatusCode)
			assert.NotContains(t, err.Error(), "deadbeef")
			assert.Equal(t, 1, transport.GetTotalCallCount())
		})
	}
}

func TestFetchExpiredIsNotGenericOnly(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", s3URL, httpmock.NewStringResponder(http.StatusForbidden, ""))

	cfg := DefaultConfig()
	cfg.Transport = transport
	m := newTestManager(cfg)

	_, err := m.Fetch(context.Background(), s3URL, filepath.Join(t.TempDir(), "x.pdf"))
	assert.True(t, errors.Is(err, errs.ErrorTypeURLExpired))
	assert.True(t, errors.Is(err, errs.ErrorTypeDownload))
	assert.False(t, errs.IsRetryable(err))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	m := newTestManager(cfg)

	dest := filepath.Join(t.TempDir(), "slow.pdf")
	_, err := m.Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeTimeout, errs.TypeOf(err))
	assert.True(t, errs.IsRetryable(err))
	assertNothingWritten(t, dest)
}

func TestFetchSlowSteadyBodyIsNotATimeout(t *testing.T) {
	chunk := bytes.Repeat([]byte("x"), 512)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 10; i++ {
			w.Write(chunk)
			w.(http.Flusher).Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Timeout = 200 * time.Millisecond
	m := newTestManager(cfg)

	dest := filepath.Join(t.TempDir(), "steady.pdf")
	n, err := m.Fetch(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(10*len(chunk)), n)
}

func TestFetchStalledBodyTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("%PDF-1.7\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	m := newTestManager(cfg)

	dest := filepath.Join(t.TempDir(), "stalled.pdf")
	_, err := m.Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeTimeout, errs.TypeOf(err))
	assertNothingWritten(t, dest)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	m := newTestManager(DefaultConfig())
	dest := filepath.Join(t.TempDir(), "gone.pdf")

	_, err := m.Fetch(context.Background(), addr, dest)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeConnection, errs.TypeOf(err))
	assertNothingWritten(t, dest)
}

func TestFetchTransportErrorFromMock(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", s3URL, httpmock.NewErrorResponder(context.DeadlineExceeded))

	cfg := DefaultConfig()
	cfg.Transport = transport
	m := newTestManager(cfg)

	dest := filepath.Join(t.TempDir(), "x.pdf")
	_, err := m.Fetch(context.Background(), s3URL, dest)
	assert.Equal(t, errs.ErrorTypeTimeout, errs.TypeOf(err))
	assertNothingWritten(t, dest)
}

func TestFetchTruncatedBodyLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("%PDF-partial"))
		w.(http.Flusher).Flush()
		// drop the connection before Content-Length is reached
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	m := newTestManager(DefaultConfig())
	dest := filepath.Join(t.TempDir(), "cut.pdf")

	_, err := m.Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assertNothingWritten(t, dest)
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestManager(DefaultConfig())
	dest := filepath.Join(t.TempDir(), "c.pdf")
	_, err := m.Fetch(ctx, srv.URL, dest)
	require.Error(t, err)
	assert.False(t, errs.IsRetryable(err))
	assertNothingWritten(t, dest)
}
