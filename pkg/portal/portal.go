// Package portal drives a logged-in session against the Wellbin web portal.
//
// Session owns the login state machine and knows the portal's URLs and form
// selectors. The actual page interaction is delegated to a Driver, so the
// same session logic runs over a real headless Chrome (portal/chrome) or a
// plain HTTP client that simulates form submission (portal/httpengine).
package portal

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/page"
	"wellbin/pkg/retry"
)

const (
	EmailSelector    = "input[type='email']"
	PasswordSelector = "input[type='password']"
	SubmitSelector   = "button[type='submit']"

	// Content waited for after navigating. Pages that never show it are
	// still read once the element wait runs out.
	ExplorerReadySelector = `a[href*="study/"]`
	StudyReadySelector    = page.ReportDateSelector + ", " + page.DownloadLinkSelector

	// AuthenticatedMarker must appear in the URL reached after submitting
	// the login form.
	AuthenticatedMarker = "dashboard"

	DefaultBaseURL      = "https://wellbin.co"
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
	DefaultUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultLoginSettle  = 3 * time.Second
	DefaultElementWait  = 10 * time.Second
)

// ErrClosed is returned by every operation on a closed session.
var ErrClosed = stderrors.New("portal session closed")

// Options is the fixed identity a driver is started with.
type Options struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	ElementWait  time.Duration
}

// Driver is the narrow set of page operations a session needs. Selectors
// are CSS selectors.
type Driver interface {
	Start(ctx context.Context, opts Options) error
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Close() error
}

type State int

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateAuthenticated
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds the portal endpoints and the driver identity.
type Config struct {
	LoginURL    string
	ExplorerURL string
	Options     Options
	LoginSettle time.Duration
	Logger      logger.Logger
}

// DefaultConfig targets the production portal.
func DefaultConfig() Config {
	return Config{
		LoginURL:    DefaultBaseURL + "/login",
		ExplorerURL: DefaultBaseURL + "/explorer",
		Options: Options{
			Headless:     true,
			UserAgent:    DefaultUserAgent,
			WindowWidth:  DefaultWindowWidth,
			WindowHeight: DefaultWindowHeight,
			ElementWait:  DefaultElementWait,
		},
		LoginSettle: DefaultLoginSettle,
	}
}

// Session is a single browser session. It allows one login attempt.
type Session struct {
	driver   Driver
	cfg      Config
	log      logger.Logger
	state    State
	started  bool
	loginErr error
	mu       sync.Mutex
}

func NewSession(driver Driver, cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		driver: driver,
		cfg:    cfg,
		log:    log.WithField("component", "portal"),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize starts the driver. Calling it again after a successful start
// is a no-op.
func (s *Session) Initialize(ctx context.Context, headless bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialize(ctx, headless)
}

func (s *Session) initialize(ctx context.Context, headless bool) error {
	if s.state == StateClosed {
		return errs.NewBrowserSetup(ErrClosed)
	}
	if s.started {
		return nil
	}

	opts := s.cfg.Options
	opts.Headless = headless
	if err := s.driver.Start(ctx, opts); err != nil {
		s.log.WithError(err).Error("Failed to start browser")
		return errs.NewBrowserSetup(err)
	}
	s.started = true

	s.log.DebugWithFields("Browser started", map[string]interface{}{
		"headless":   headless,
		"user_agent": opts.UserAgent,
		"window":     fmt.Sprintf("%dx%d", opts.WindowWidth, opts.WindowHeight),
	})
	return nil
}

// Login submits the login form once. Success is decided only by the URL
// reached after the settle delay. A session that already failed keeps
// returning its original error.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return errs.NewBrowserSetup(ErrClosed)
	case StateAuthenticated:
		return nil
	case StateFailed:
		return s.loginErr
	}

	if err := s.initialize(ctx, s.cfg.Options.Headless); err != nil {
		return err
	}

	s.state = StateAuthenticating
	s.log.InfoWithFields("Logging in", map[string]interface{}{
		"email": logger.MaskEmail(email),
		"url":   s.cfg.LoginURL,
	})

	if err := s.submitLogin(ctx, email, password); err != nil {
		return s.fail(err)
	}

	if err := retry.Wait(ctx, s.cfg.LoginSettle); err != nil {
		return s.fail(err)
	}

	current, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return s.fail(errs.NewNavigation(s.cfg.LoginURL, err))
	}
	if !strings.Contains(strings.ToLower(current), AuthenticatedMarker) {
		return s.fail(errs.NewLoginFailed(current))
	}

	s.state = StateAuthenticated
	s.log.InfoWithFields("Login successful", map[string]interface{}{"url": current})
	return nil
}

func (s *Session) submitLogin(ctx context.Context, email, password string) error {
	if err := s.driver.Navigate(ctx, s.cfg.LoginURL); err != nil {
		return errs.NewNavigation(s.cfg.LoginURL, err)
	}

	for _, sel := range []string{EmailSelector, PasswordSelector, SubmitSelector} {
		found, err := s.driver.Exists(ctx, sel)
		if err != nil {
			return errs.NewPageLoad(s.cfg.LoginURL, err)
		}
		if !found {
			return errs.NewElementNotFound(sel)
		}
	}

	if err := s.driver.Fill(ctx, EmailSelector, email); err != nil {
		return errs.Wrap(errs.ErrorTypeBrowser, err, "failed to fill email").WithDetails(EmailSelector)
	}
	if err := s.driver.Fill(ctx, PasswordSelector, password); err != nil {
		return errs.Wrap(errs.ErrorTypeBrowser, err, "failed to fill password").WithDetails(PasswordSelector)
	}
	if err := s.driver.Click(ctx, SubmitSelector); err != nil {
		return errs.NewNavigation(s.cfg.LoginURL, err)
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.loginErr = err
	s.log.WithError(err).Error("Login failed")
	return err
}

// ListStudyLinks loads the explorer page and returns every anchor on it.
func (s *Session) ListStudyLinks(ctx context.Context) ([]page.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthenticated(); err != nil {
		return nil, err
	}

	body, current, err := s.load(ctx, s.cfg.ExplorerURL, ExplorerReadySelector)
	if err != nil {
		return nil, err
	}

	anchors, err := page.ParseListing(strings.NewReader(body), current)
	if err != nil {
		return nil, errs.NewPageLoad(s.cfg.ExplorerURL, err)
	}
	s.log.DebugWithFields("Explorer page loaded", map[string]interface{}{"links": len(anchors)})
	return anchors, nil
}

// OpenStudy loads one study page.
func (s *Session) OpenStudy(ctx context.Context, studyURL string) (*page.StudyPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthenticated(); err != nil {
		return nil, err
	}

	body, current, err := s.load(ctx, studyURL, StudyReadySelector)
	if err != nil {
		return nil, err
	}

	sp, err := page.ParseStudy(strings.NewReader(body), current)
	if err != nil {
		return nil, errs.NewPageLoad(studyURL, err)
	}
	return sp, nil
}

func (s *Session) load(ctx context.Context, target, ready string) (string, string, error) {
	if err := s.driver.Navigate(ctx, target); err != nil {
		return "", "", errs.NewNavigation(target, err)
	}
	found, err := s.driver.Exists(ctx, ready)
	if ctx.Err() != nil {
		return "", "", errs.NewPageLoad(target, ctx.Err())
	}
	if err != nil || !found {
		s.log.WithError(err).DebugWithFields("Page content not found, reading it as is", map[string]interface{}{
			"url":      target,
			"selector": ready,
		})
	}
	body, err := s.driver.HTML(ctx)
	if err != nil {
		return "", "", errs.NewPageLoad(target, err)
	}
	current, err := s.driver.CurrentURL(ctx)
	if err != nil || current == "" {
		current = target
	}
	return body, current, nil
}

func (s *Session) requireAuthenticated() error {
	switch s.state {
	case StateAuthenticated:
		return nil
	case StateClosed:
		return errs.NewBrowserSetup(ErrClosed)
	}
	return errs.NewSessionExpired("session is not authenticated")
}

// Close releases the driver. Only the first call reaches the driver.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	if !s.started {
		return nil
	}
	if err := s.driver.Close(); err != nil {
		return errs.Wrap(errs.ErrorTypeBrowser, err, "failed to close browser")
	}
	s.log.Debug("Browser closed")
	return nil
}
