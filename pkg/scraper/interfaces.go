package scraper

import (
	"context"

	"wellbin/pkg/page"
)

// Portal is the part of the browser session a run needs.
type Portal interface {
	Login(ctx context.Context, email, password string) error
	ListStudyLinks(ctx context.Context) ([]page.Anchor, error)
	OpenStudy(ctx context.Context, url string) (*page.StudyPage, error)
	Close() error
}

// Fetcher streams one URL to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
	Close() error
}
