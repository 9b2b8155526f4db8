// Package chrome implements portal.Driver on a real Chrome instance through
// the DevTools protocol.
package chrome

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"wellbin/pkg/portal"
)

// ErrNotStarted is returned by every operation before Start.
var ErrNotStarted = stderrors.New("browser not started")

const defaultActionTimeout = 60 * time.Second

type Driver struct {
	execPath string

	browser     context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	wait        time.Duration
	mu          sync.Mutex
}

// Option configures a Driver.
type Option func(*Driver)

// WithExecPath points at a specific Chrome or Chromium binary.
func WithExecPath(path string) Option {
	return func(d *Driver) { d.execPath = path }
}

func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AllocatorOptions is the fixed command line Chrome is started with.
func AllocatorOptions(opts portal.Options, execPath string) []chromedp.ExecAllocatorOption {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = portal.DefaultWindowWidth, portal.DefaultWindowHeight
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}
	return allocOpts
}

// Start launches the browser. The browser outlives ctx; it is stopped by Close.
func (d *Driver) Start(_ context.Context, opts portal.Options) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(opts, d.execPath)...)
	browser, cancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and ties its lifetime to the
	// context it is given, so it must run on browser itself.
	if err := chromedp.Run(browser); err != nil {
		cancel()
		allocCancel()
		return err
	}

	d.browser = browser
	d.cancel = cancel
	d.allocCancel = allocCancel
	d.wait = opts.ElementWait
	if d.wait <= 0 {
		d.wait = portal.DefaultElementWait
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, defaultActionTimeout, chromedp.Navigate(url))
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	err := d.run(ctx, defaultActionTimeout, chromedp.Location(&location))
	return location, err
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, defaultActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	return d.run(ctx, d.wait,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, d.wait, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Exists waits up to the element wait for selector to appear.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	err := d.run(ctx, d.wait, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil
	}
	err := chromedp.Cancel(d.browser)
	d.cancel()
	d.allocCancel()
	d.browser = nil
	return err
}

func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()

	if browser == nil {
		return ErrNotStarted
	}
	runCtx, stop := d.bind(ctx, browser, timeout)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// bind derives a timeout context from the browser context that is also
// cancelled when the caller's ctx is.
func (d *Driver) bind(ctx, browser context.Context, timeout time.Duration) (context.Context, func()) {
	runCtx, cancel := context.WithTimeout(browser, timeout)
	unregister := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		unregister()
		cancel()
	}
}

var _ portal.Driver = (*Driver)(nil)
