// Package metadata writes a JSON sidecar next to every downloaded PDF so the
// origin of a file stays known after the pre-signed link has expired.
package metadata

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wellbin/pkg/models"
)

const sidecarSuffix = ".json"

// Document is the sidecar content for one PDF.
type Document struct {
	File        string `json:"file"`
	SourceURL   string `json:"source_url"`
	StudyURL    string `json:"study_url"`
	StudyType   string `json:"study_type"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	DateSource  string `json:"date_source"`
	Description string `json:"description,omitempty"`
	Sequence    int    `json:"sequence"`

	FileSize int64 `json:"file_size"`
	Pages    int   `json:"pages,omitempty"`

	DownloadedAt time.Time `json:"downloaded_at"`
}

// FromRecord builds the sidecar for a written file. The query string of the
// source URL carries the storage signature and is dropped.
func FromRecord(rec models.DownloadRecord) *Document {
	doc := &Document{
		File:         filepath.Base(rec.LocalPath),
		SourceURL:    stripQuery(rec.SourceURL),
		Description:  rec.Description,
		Sequence:     rec.SequenceIndex,
		FileSize:     rec.Bytes,
		Pages:        rec.Pages,
		DownloadedAt: time.Now().UTC(),
	}
	if rec.Study != nil {
		doc.StudyURL = rec.Study.URL
		doc.StudyType = rec.Study.TypeTag
		doc.Category = rec.Study.Type().Name
		doc.Date = rec.Study.ResolvedDate
		doc.DateSource = rec.Study.DateSource
	}
	return doc
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Path returns the sidecar path for a PDF.
func Path(pdfPath string) string {
	return pdfPath + sidecarSuffix
}

// Save writes the sidecar next to pdfPath.
func (d *Document) Save(pdfPath string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tmp := Path(pdfPath) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tmp, Path(pdfPath)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads the sidecar of pdfPath.
func Load(pdfPath string) (*Document, error) {
	data, err := os.ReadFile(Path(pdfPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &doc, nil
}

func Exists(pdfPath string) bool {
	_, err := os.Stat(Path(pdfPath))
	return err == nil
}

// CleanOrphaned removes sidecars whose PDF no longer exists and reports how
// many were removed.
func CleanOrphaned(directory string) (int, error) {
	removed := 0
	err := filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".pdf"+sidecarSuffix) {
			return nil
		}

		pdfPath := strings.TrimSuffix(path, sidecarSuffix)
		if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
