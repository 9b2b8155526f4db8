package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType identifies a node in the error hierarchy. ErrorType values are
// themselves errors so they can be used as errors.Is targets: a typed *Error
// matches its own type and every ancestor type.
type ErrorType string

const (
	ErrorTypeWellbin ErrorType = "wellbin"

	// Authentication
	ErrorTypeAuthentication     ErrorType = "authentication"
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeLoginFailed        ErrorType = "login_failed"
	ErrorTypeSessionExpired     ErrorType = "session_expired"

	// Network and download
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeDownload      ErrorType = "download"
	ErrorTypeObjectStorage ErrorType = "object_storage_download"
	ErrorTypeURLExpired    ErrorType = "url_expired"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeConnection    ErrorType = "connection"
	ErrorTypeMaxRetries    ErrorType = "max_retries_exceeded"

	// Browser automation
	ErrorTypeBrowser         ErrorType = "browser"
	ErrorTypeBrowserSetup    ErrorType = "browser_setup"
	ErrorTypePageLoad        ErrorType = "page_load"
	ErrorTypeElementNotFound ErrorType = "element_not_found"
	ErrorTypeNavigation      ErrorType = "navigation"

	// Data processing
	ErrorTypeDataProcessing   ErrorType = "data_processing"
	ErrorTypeDateExtraction   ErrorType = "date_extraction"
	ErrorTypePDFProcessing    ErrorType = "pdf_processing"
	ErrorTypePDFCorrupted     ErrorType = "pdf_corrupted"
	ErrorTypePDFTooLarge      ErrorType = "pdf_too_large"
	ErrorTypePDFExtraction    ErrorType = "pdf_extraction"
	ErrorTypeInvalidStudyType ErrorType = "invalid_study_type"

	// Configuration
	ErrorTypeConfiguration        ErrorType = "configuration"
	ErrorTypeMissingCredentials   ErrorType = "missing_credentials"
	ErrorTypeInvalidConfiguration ErrorType = "invalid_configuration"

	// Filesystem
	ErrorTypeFileSystem        ErrorType = "filesystem"
	ErrorTypeDirectoryCreation ErrorType = "directory_creation"
	ErrorTypeFileWrite         ErrorType = "file_write"
)

var parents = map[ErrorType]ErrorType{
	ErrorTypeAuthentication:     ErrorTypeWellbin,
	ErrorTypeInvalidCredentials: ErrorTypeAuthentication,
	ErrorTypeLoginFailed:        ErrorTypeAuthentication,
	ErrorTypeSessionExpired:     ErrorTypeAuthentication,

	ErrorTypeNetwork:       ErrorTypeWellbin,
	ErrorTypeDownload:      ErrorTypeNetwork,
	ErrorTypeObjectStorage: ErrorTypeDownload,
	ErrorTypeURLExpired:    ErrorTypeObjectStorage,
	ErrorTypeTimeout:       ErrorTypeNetwork,
	ErrorTypeConnection:    ErrorTypeNetwork,
	ErrorTypeMaxRetries:    ErrorTypeNetwork,

	ErrorTypeBrowser:         ErrorTypeWellbin,
	ErrorTypeBrowserSetup:    ErrorTypeBrowser,
	ErrorTypePageLoad:        ErrorTypeBrowser,
	ErrorTypeElementNotFound: ErrorTypeBrowser,
	ErrorTypeNavigation:      ErrorTypeBrowser,

	ErrorTypeDataProcessing:   ErrorTypeWellbin,
	ErrorTypeDateExtraction:   ErrorTypeDataProcessing,
	ErrorTypePDFProcessing:    ErrorTypeDataProcessing,
	ErrorTypePDFCorrupted:     ErrorTypePDFProcessing,
	ErrorTypePDFTooLarge:      ErrorTypePDFProcessing,
	ErrorTypePDFExtraction:    ErrorTypePDFProcessing,
	ErrorTypeInvalidStudyType: ErrorTypeDataProcessing,

	ErrorTypeConfiguration:        ErrorTypeWellbin,
	ErrorTypeMissingCredentials:   ErrorTypeConfiguration,
	ErrorTypeInvalidConfiguration: ErrorTypeConfiguration,

	ErrorTypeFileSystem:        ErrorTypeWellbin,
	ErrorTypeDirectoryCreation: ErrorTypeFileSystem,
	ErrorTypeFileWrite:         ErrorTypeFileSystem,
}

// Error implements the error interface so an ErrorType can be an errors.Is target.
func (t ErrorType) Error() string {
	return string(t)
}

// Parent returns the direct ancestor of t, or "" for the root.
func (t ErrorType) Parent() ErrorType {
	return parents[t]
}

// IsA reports whether t equals ancestor or descends from it.
func (t ErrorType) IsA(ancestor ErrorType) bool {
	for cur := t; cur != ""; cur = cur.Parent() {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Error is the single concrete error of the domain. Message is the short
// human description, Details optional context such as a truncated URL.
type Error struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Path       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " [%s]", e.Path)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, ": %s", e.Details)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrorType targets along the ancestry chain and *Error targets by type.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorType:
		return e.Type.IsA(t)
	case *Error:
		return t != nil && e.Type == t.Type
	}
	return false
}

// TypeOf returns the ErrorType of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

// New creates an error of the given type.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates an error of the given type around cause.
func Wrap(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Message: message, Err: cause}
}

// WithDetails returns e with details set.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func NewInvalidCredentials(message string) *Error {
	return New(ErrorTypeInvalidCredentials, message)
}

func NewLoginFailed(currentURL string) *Error {
	return New(ErrorTypeLoginFailed, "login failed").WithDetails("unexpected destination " + currentURL)
}

func NewSessionExpired(message string) *Error {
	return New(ErrorTypeSessionExpired, message)
}

// NewURLExpired is raised on HTTP 403 from object storage: the pre-signed
// link must be re-derived rather than retried.
func NewURLExpired(url string) *Error {
	return &Error{
		Type:       ErrorTypeURLExpired,
		Message:    "pre-signed URL has expired",
		Details:    "URL: " + Truncate(url, 50),
		StatusCode: 403,
	}
}

func NewDownload(statusCode int, reason, url string) *Error {
	return &Error{
		Type:       ErrorTypeDownload,
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, reason),
		Details:    "URL: " + Truncate(url, 50),
		StatusCode: statusCode,
	}
}

func NewTimeout(url string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Message: "connection timed out during download",
		Details: "URL: " + Truncate(url, 50),
		Err:     cause,
	}
}

func NewConnection(url string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeConnection,
		Message: "failed to connect to server",
		Details: "URL: " + Truncate(url, 50),
		Err:     cause,
	}
}

func NewMaxRetriesExceeded(attempts int, cause error) *Error {
	return Wrap(ErrorTypeMaxRetries, cause, fmt.Sprintf("gave up after %d attempts", attempts))
}

func NewBrowserSetup(cause error) *Error {
	return Wrap(ErrorTypeBrowserSetup, cause, "failed to start browser")
}

func NewPageLoad(url string, cause error) *Error {
	return Wrap(ErrorTypePageLoad, cause, "failed to load page").WithDetails(url)
}

func NewElementNotFound(selector string) *Error {
	return New(ErrorTypeElementNotFound, "element not found").WithDetails(selector)
}

func NewNavigation(url string, cause error) *Error {
	return Wrap(ErrorTypeNavigation, cause, "navigation failed").WithDetails(url)
}

func NewDateExtraction(source string) *Error {
	return New(ErrorTypeDateExtraction, "no valid date found").WithDetails(source)
}

func NewPDFProcessing(path string, cause error) *Error {
	return &Error{Type: ErrorTypePDFProcessing, Message: "failed to process PDF", Path: path, Err: cause}
}

func NewPDFCorrupted(path string, cause error) *Error {
	return &Error{Type: ErrorTypePDFCorrupted, Message: "PDF is corrupted", Path: path, Err: cause}
}

func NewPDFTooLarge(path string, size, limit int64) *Error {
	return &Error{
		Type:    ErrorTypePDFTooLarge,
		Message: "PDF exceeds size limit",
		Details: fmt.Sprintf("%d bytes > %d bytes", size, limit),
		Path:    path,
	}
}

func NewPDFExtraction(path string, cause error) *Error {
	return &Error{Type: ErrorTypePDFExtraction, Message: "failed to extract PDF content", Path: path, Err: cause}
}

func NewInvalidStudyType(tag string) *Error {
	return New(ErrorTypeInvalidStudyType, "unknown study type").WithDetails(tag)
}

func NewMissingCredentials(message string) *Error {
	return New(ErrorTypeMissingCredentials, message)
}

func NewInvalidConfiguration(message string) *Error {
	return New(ErrorTypeInvalidConfiguration, message)
}

func NewDirectoryCreation(path string, cause error) *Error {
	return &Error{Type: ErrorTypeDirectoryCreation, Message: "failed to create directory", Path: path, Err: cause}
}

func NewFileWrite(path string, cause error) *Error {
	return &Error{Type: ErrorTypeFileWrite, Message: "failed to write file", Path: path, Err: cause}
}

// Truncate shortens s to n bytes followed by "..." so that pre-signed
// query strings never end up in logs in full.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
