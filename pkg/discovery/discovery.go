// Package discovery turns the anchors of the study explorer into the
// ordered list of studies a run will process.
package discovery

import (
	"context"
	"strings"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/models"
	"wellbin/pkg/page"
)

// StudyPathMarker identifies study links.
const StudyPathMarker = "study/"

// Wildcard selects every known study type.
const Wildcard = "all"

// LinkSource lists the anchors of the explorer page in document order.
type LinkSource interface {
	ListStudyLinks(ctx context.Context) ([]page.Anchor, error)
}

// ParseTypeFilters splits a comma separated list of study type tags.
// Blank entries are dropped; an empty list yields nil.
func ParseTypeFilters(csv string) []string {
	var filters []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filters = append(filters, part)
		}
	}
	return filters
}

// Discover lists the studies whose type tag matches filters, in document
// order, each URL at most once. A positive limit truncates the filtered
// list. No match is not an error.
func Discover(ctx context.Context, src LinkSource, filters []string, limit int) ([]models.StudyReference, error) {
	anchors, err := src.ListStudyLinks(ctx)
	if err != nil {
		return nil, err
	}

	studies := Filter(anchors, filters, limit)

	log := logger.GetLogger().WithField("component", "discovery")
	for _, f := range UnknownTags(filters) {
		log.WithError(errs.NewInvalidStudyType(f)).Warn("Unrecognized study type, matching studies are saved under other_reports")
	}
	log.InfoWithFields("Studies discovered", map[string]interface{}{
		"links":   len(anchors),
		"matched": len(studies),
		"filters": strings.Join(filters, ","),
		"limit":   limit,
	})
	return studies, nil
}

// Filter applies the type filters, URL dedup and limit to anchors.
func Filter(anchors []page.Anchor, filters []string, limit int) []models.StudyReference {
	accept := acceptedTags(filters)
	seen := make(map[string]bool)
	var studies []models.StudyReference

	for _, a := range anchors {
		if !strings.Contains(a.Href, StudyPathMarker) {
			continue
		}
		tag := models.StudyTypeFromURL(a.Href)
		if tag == "" || !accept[tag] {
			continue
		}
		if seen[a.Href] {
			continue
		}
		seen[a.Href] = true

		studies = append(studies, models.StudyReference{
			URL:         a.Href,
			TypeTag:     tag,
			ContextText: a.Context,
		})
		if limit > 0 && len(studies) == limit {
			break
		}
	}
	return studies
}

// UnknownTags returns the filters that are neither the wildcard nor a known
// study tag.
func UnknownTags(filters []string) []string {
	var unknown []string
	for _, f := range filters {
		if !strings.EqualFold(f, Wildcard) && !models.IsKnownStudyTag(f) {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

func acceptedTags(filters []string) map[string]bool {
	accept := make(map[string]bool)
	for _, f := range filters {
		if strings.EqualFold(f, Wildcard) {
			for _, tag := range models.KnownStudyTags() {
				accept[tag] = true
			}
			continue
		}
		accept[f] = true
	}
	return accept
}
