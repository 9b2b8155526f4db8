package dates

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

type Source string

const (
	SourcePageField  Source = "page_field"
	SourceContainer  Source = "container"
	SourceIdentifier Source = "identifier"
	SourceFallback   Source = "fallback"
)

const DefaultCacheSize = 256

// Input carries the texts gathered for one study, most specific first.
type Input struct {
	PageDateText  string
	ContainerText string
	StudyURL      string
}

type Resolution struct {
	Date     string
	Source   Source
	Fallback bool
}

type parsed struct {
	date string
	ok   bool
}

// Resolver walks the fallback chain for a study. ParseText results are
// memoized by input text.
type Resolver struct {
	cache *lru.Cache[string, parsed]
}

func NewResolver(cacheSize int) *Resolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, parsed](cacheSize)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return &Resolver{cache: cache}
}

// Resolve tries the page field, then the container text, then the study
// identifier, and finally returns FallbackDate flagged as a fallback.
func (r *Resolver) Resolve(in Input) Resolution {
	if date, ok := r.parse(in.PageDateText); ok {
		return Resolution{Date: date, Source: SourcePageField}
	}
	if date, ok := r.parse(in.ContainerText); ok {
		return Resolution{Date: date, Source: SourceContainer}
	}
	if id := StudyIDFromURL(in.StudyURL); id != "" {
		if date, ok := FromStudyID(id); ok {
			return Resolution{Date: date, Source: SourceIdentifier}
		}
	}
	return Resolution{Date: FallbackDate, Source: SourceFallback, Fallback: true}
}

// ParseText is the memoized form of the package-level ParseText.
func (r *Resolver) ParseText(text string) (string, bool) {
	return r.parse(text)
}

func (r *Resolver) parse(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if p, ok := r.cache.Get(text); ok {
		return p.date, p.ok
	}
	date, ok := ParseText(text)
	r.cache.Add(text, parsed{date: date, ok: ok})
	return date, ok
}

// CacheLen reports how many texts are memoized.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}
