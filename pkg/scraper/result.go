package scraper

import (
	"sort"
	"time"

	"wellbin/pkg/models"
)

// Summary is the operator-facing tally of a run.
type Summary struct {
	Discovered  int           `json:"discovered"`
	Attempted   int           `json:"attempted"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Fallbacks   int           `json:"fallback_dates"`
	Bytes       int64         `json:"bytes"`
	LoginFailed bool          `json:"login_failed"`
	Cancelled   bool          `json:"cancelled"`
	Duration    time.Duration `json:"duration"`
}

// Failure is one study that could not be saved.
type Failure struct {
	StudyURL string `json:"study_url"`
	Stage    string `json:"stage"`
	Err      error  `json:"-"`
}

// Result is everything a run produced. Records holds only files that were
// fully written; Targets holds every download that was planned, including
// the dry-run ones.
type Result struct {
	Records  []models.DownloadRecord    `json:"records"`
	Targets  []models.PDFDownloadTarget `json:"targets"`
	Failures []Failure                  `json:"failures"`
	Summary  Summary                    `json:"summary"`
}

// TypeCount is the number of saved documents of one study type.
type TypeCount struct {
	Type  models.StudyType
	Count int
	Bytes int64
}

// ByType groups the saved records by study type, ordered by type name.
func (r *Result) ByType() []TypeCount {
	counts := make(map[string]*TypeCount)
	for _, rec := range r.Records {
		st := rec.Study.Type()
		tc, ok := counts[st.Name]
		if !ok {
			tc = &TypeCount{Type: st}
			counts[st.Name] = tc
		}
		tc.Count++
		tc.Bytes += rec.Bytes
	}

	out := make([]TypeCount, 0, len(counts))
	for _, tc := range counts {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type.Name < out[j].Type.Name })
	return out
}

// Empty reports whether the run saved nothing and planned nothing.
func (r *Result) Empty() bool {
	return len(r.Records) == 0 && len(r.Targets) == 0
}
