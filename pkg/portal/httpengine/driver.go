// Package httpengine implements portal.Driver without a browser. Pages are
// fetched with resty over a cookie jar and forms are submitted by reading
// them with goquery, the way a browser would serialize them.
package httpengine

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"wellbin/pkg/portal"
)

// ErrNoPage is returned by page operations before the first navigation.
var ErrNoPage = stderrors.New("no page loaded")

// ErrNoSuchElement is returned when a selector matches nothing.
var ErrNoSuchElement = stderrors.New("no such element")

// Driver keeps the last loaded document and the values filled into it.
type Driver struct {
	client    *resty.Client
	transport http.RoundTripper

	current *url.URL
	body    string
	doc     *goquery.Document
	values  map[string]string
	mu      sync.Mutex
}

// Option configures a Driver.
type Option func(*Driver)

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(d *Driver) { d.transport = rt }
}

func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Start(ctx context.Context, opts portal.Options) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	if opts.ElementWait > 0 {
		client.SetTimeout(3 * opts.ElementWait)
	}
	if d.transport != nil {
		client.SetTransport(d.transport)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
	return nil
}

func (d *Driver) Navigate(ctx context.Context, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return portal.ErrClosed
	}
	ref, err := d.resolve(target)
	if err != nil {
		return err
	}
	res, err := d.client.R().SetContext(ctx).Get(ref)
	if err != nil {
		return err
	}
	return d.adopt(res)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return "", ErrNoPage
	}
	return d.current.String(), nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return "", ErrNoPage
	}
	return d.body, nil
}

// Fill records value for the first element matching selector. The value is
// sent when the enclosing form is submitted.
func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, err := d.first(selector)
	if err != nil {
		return err
	}
	name := el.AttrOr("name", "")
	if name == "" {
		return fmt.Errorf("element %q has no name", selector)
	}
	d.values[name] = value
	return nil
}

// Click follows a link or submits the form that contains the element.
func (d *Driver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, err := d.first(selector)
	if err != nil {
		return err
	}

	if goquery.NodeName(el) == "a" {
		href, ok := el.Attr("href")
		if !ok {
			return nil
		}
		ref, err := d.resolve(href)
		if err != nil {
			return err
		}
		res, err := d.client.R().SetContext(ctx).Get(ref)
		if err != nil {
			return err
		}
		return d.adopt(res)
	}

	form := el.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("element %q is not inside a form", selector)
	}
	return d.submit(ctx, form, el)
}

func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return false, ErrNoPage
	}
	return d.doc.Find(selector).Length() > 0, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		d.client.GetClient().CloseIdleConnections()
		d.client = nil
	}
	d.doc = nil
	d.current = nil
	return nil
}

func (d *Driver) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	data := serializeForm(form, submitter)
	for name, value := range d.values {
		data.Set(name, value)
	}

	action, err := d.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}

	req := d.client.R().SetContext(ctx)
	var res *resty.Response
	if strings.EqualFold(form.AttrOr("method", http.MethodGet), http.MethodPost) {
		res, err = req.SetFormDataFromValues(data).Post(action)
	} else {
		u, perr := url.Parse(action)
		if perr != nil {
			return perr
		}
		u.RawQuery = data.Encode()
		res, err = req.Get(u.String())
	}
	if err != nil {
		return err
	}
	return d.adopt(res)
}

// serializeForm collects the successful controls of form the way a browser
// does on submission, including the clicked submit button.
func serializeForm(form, submitter *goquery.Selection) url.Values {
	data := url.Values{}

	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, s *goquery.Selection) {
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		name := s.AttrOr("name", "")

		switch goquery.NodeName(s) {
		case "textarea":
			data.Add(name, s.Text())
			return
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = s.Find("option").First()
			}
			if opt.Length() > 0 {
				data.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
			return
		}

		switch strings.ToLower(s.AttrOr("type", "text")) {
		case "checkbox", "radio":
			if _, checked := s.Attr("checked"); checked {
				data.Add(name, s.AttrOr("value", "on"))
			}
		case "submit", "button", "image", "reset", "file":
		default:
			data.Add(name, s.AttrOr("value", ""))
		}
	})

	if name, ok := submitter.Attr("name"); ok && name != "" {
		data.Add(name, submitter.AttrOr("value", ""))
	}
	return data
}

func (d *Driver) adopt(res *resty.Response) error {
	if res.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode(), http.StatusText(res.StatusCode()))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return err
	}

	d.current = finalURL(res)
	d.body = string(res.Body())
	d.doc = doc
	d.values = make(map[string]string)
	return nil
}

// finalURL is the URL the response was served from after redirects.
func finalURL(res *resty.Response) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	if res.Request != nil && res.Request.RawRequest != nil {
		return res.Request.RawRequest.URL
	}
	u, _ := url.Parse(res.Request.URL)
	return u
}

func (d *Driver) first(selector string) (*goquery.Selection, error) {
	if d.doc == nil {
		return nil, ErrNoPage
	}
	el := d.doc.Find(selector).First()
	if el.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return el, nil
}

func (d *Driver) resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if d.current == nil {
		return u.String(), nil
	}
	return d.current.ResolveReference(u).String(), nil
}

var _ portal.Driver = (*Driver)(nil)
