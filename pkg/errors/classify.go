package errors

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// Classify maps a transport error or a non-200 status into the taxonomy.
// Transport errors take precedence over the status code; a nil error with a
// 200 status yields nil.
func Classify(err error, statusCode int, rawURL string) error {
	if err != nil {
		var typed *Error
		if stderrors.As(err, &typed) {
			return err
		}
		if isTimeout(err) {
			return NewTimeout(rawURL, err)
		}
		if isConnection(err) {
			return NewConnection(rawURL, err)
		}
		return Wrap(ErrorTypeNetwork, err, "request failed").WithDetails("URL: " + Truncate(rawURL, 50))
	}

	switch {
	case statusCode == 0, statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusForbidden:
		return NewURLExpired(rawURL)
	default:
		return NewDownload(statusCode, http.StatusText(statusCode), rawURL)
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func isConnection(err error) bool {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && stderrors.Is(urlErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET)
}

// IsRetryable reports whether a failed download may succeed when repeated
// unchanged. Only transient transport failures qualify; an expired link or
// any HTTP status answer never does.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	switch TypeOf(err) {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	}
	return false
}
