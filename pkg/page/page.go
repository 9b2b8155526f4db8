// Package page extracts study links, dates and download links from portal
// HTML. All knowledge of the portal's markup lives here.
package page

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	ReportDateSelector   = "div.item-value.report-date"
	DownloadLinkSelector = `a[href*="wellbin-uploads.s3"]`
	DefaultLinkText      = "Download"
	maxDiagnosticLinks   = 10
)

var containerClasses = []string{"study", "card", "item", "row"}

var innerWhitespace = regexp.MustCompile(`\s+`)

// Anchor is a link found on the listing page together with the text of
// the card it sits in.
type Anchor struct {
	Href    string
	Text    string
	Context string
}

type Link struct {
	Href string
	Text string
}

// StudyPage is what a single study page exposes.
type StudyPage struct {
	URL          string
	ReportDate   string
	DownloadLink *Link
	Links        []Link
}

// ParseListing returns every anchor with an href, resolved against base, in
// document order.
func ParseListing(r io.Reader, base string) ([]Anchor, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(base)

	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		anchors = append(anchors, Anchor{
			Href:    resolve(baseURL, href),
			Text:    clean(a.Text()),
			Context: contextText(a),
		})
	})
	return anchors, nil
}

// ParseStudy reads the report date field and the object-storage download
// link of a study page.
func ParseStudy(r io.Reader, base string) (*StudyPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(base)

	p := &StudyPage{
		URL:        base,
		ReportDate: clean(doc.Find(ReportDateSelector).First().Text()),
	}

	if dl := doc.Find(DownloadLinkSelector).First(); dl.Length() > 0 {
		text := clean(dl.Text())
		if text == "" {
			text = DefaultLinkText
		}
		p.DownloadLink = &Link{Href: resolve(baseURL, dl.AttrOr("href", "")), Text: text}
	}

	doc.Find("a[href]").EachWithBreak(func(i int, a *goquery.Selection) bool {
		p.Links = append(p.Links, Link{Href: resolve(baseURL, a.AttrOr("href", "")), Text: clean(a.Text())})
		return len(p.Links) < maxDiagnosticLinks
	})
	return p, nil
}

// contextText joins the text of the nearest card-like ancestor with any
// date-looking text under the anchor's direct parent.
func contextText(a *goquery.Selection) string {
	var parts []string

	container := a.Parents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		class := s.AttrOr("class", "")
		for _, c := range containerClasses {
			if strings.Contains(class, c) {
				return true
			}
		}
		return false
	}).First()
	if container.Length() > 0 {
		parts = append(parts, clean(container.Text()))
	}

	a.Parent().Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.TextNode {
					continue
				}
				text := clean(c.Data)
				if text != "" && looksLikeDate(text) {
					parts = append(parts, text)
				}
			}
		}
	})

	return strings.Join(parts, " ")
}

func looksLikeDate(s string) bool {
	return strings.ContainsAny(s, "0123456789/")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func clean(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}
