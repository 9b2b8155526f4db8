package models

import (
	"fmt"
	"net/url"
	"sort"
)

const (
	TagFhirStudy  = "FhirStudy"
	TagDicomStudy = "DicomStudy"
)

// StudyType describes how a portal study tag maps onto local storage.
type StudyType struct {
	Tag         string `json:"tag" yaml:"tag"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Subdir      string `json:"subdir" yaml:"subdir"`
}

var studyTypes = map[string]StudyType{
	TagFhirStudy: {
		Tag:         TagFhirStudy,
		Name:        "lab",
		Description: "Laboratory Reports",
		Subdir:      "lab_reports",
	},
	TagDicomStudy: {
		Tag:         TagDicomStudy,
		Name:        "imaging",
		Description: "Medical Imaging",
		Subdir:      "imaging_reports",
	},
}

// LookupStudyType returns the registered type for tag. Unknown tags map to a
// generic "other" type and ok is false.
func LookupStudyType(tag string) (StudyType, bool) {
	if st, ok := studyTypes[tag]; ok {
		return st, true
	}
	return StudyType{Tag: tag, Name: "other", Description: "Other Reports", Subdir: "other_reports"}, false
}

// KnownStudyTags returns the registered tags in a stable order.
func KnownStudyTags() []string {
	tags := make([]string, 0, len(studyTypes))
	for tag := range studyTypes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func IsKnownStudyTag(tag string) bool {
	_, ok := studyTypes[tag]
	return ok
}

// StudyTypeFromURL extracts the "type" query parameter of a study link.
func StudyTypeFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("type")
}

// StudyReference is one discovered study. The date fields are filled exactly
// once, after the study page has been inspected.
type StudyReference struct {
	URL          string `json:"url"`
	TypeTag      string `json:"type"`
	ContextText  string `json:"context_text,omitempty"`
	ResolvedDate string `json:"resolved_date,omitempty"`
	DateSource   string `json:"date_source,omitempty"`
}

// AttachDate records the resolved date. It fails if a date is already set.
func (s *StudyReference) AttachDate(date, source string) error {
	if s.ResolvedDate != "" {
		return fmt.Errorf("study %s already has date %s", s.URL, s.ResolvedDate)
	}
	s.ResolvedDate = date
	s.DateSource = source
	return nil
}

func (s *StudyReference) Type() StudyType {
	st, _ := LookupStudyType(s.TypeTag)
	return st
}

// PDFDownloadTarget is a downloadable file located on a study page.
type PDFDownloadTarget struct {
	SourceURL     string          `json:"source_url"`
	Study         *StudyReference `json:"study"`
	Description   string          `json:"description"`
	SequenceIndex int             `json:"sequence_index"`
	LocalPath     string          `json:"local_path,omitempty"`
}

// DownloadRecord describes a file that was fully written to disk.
type DownloadRecord struct {
	LocalPath     string          `json:"local_path"`
	SourceURL     string          `json:"source_url"`
	Study         *StudyReference `json:"study"`
	Description   string          `json:"description"`
	SequenceIndex int             `json:"sequence_index"`
	Bytes         int64           `json:"bytes"`
	Pages         int             `json:"pages,omitempty"`
}

// NewDownloadRecord builds the record for a confirmed write of target.
func NewDownloadRecord(target PDFDownloadTarget, localPath string, bytes int64) DownloadRecord {
	return DownloadRecord{
		LocalPath:     localPath,
		SourceURL:     target.SourceURL,
		Study:         target.Study,
		Description:   target.Description,
		SequenceIndex: target.SequenceIndex,
		Bytes:         bytes,
	}
}
