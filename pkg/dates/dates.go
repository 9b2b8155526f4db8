package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// FallbackDate is used when no date can be found for a study. It is
	// always reported with SourceFallback so it is never mistaken for a real date.
	FallbackDate = "20240101"

	MinYear = 1900
	MaxYear = 2099
)

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

var monthsByPrefix = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	// Spanish abbreviations that differ from English
	"ene": 1, "abr": 4, "ago": 8, "dic": 12,
}

type patternKind int

const (
	numericAmbiguous patternKind = iota
	numericISO
	dayMonthNameYear
	monthNameDayYear
)

type textPattern struct {
	kind patternKind
	re   *regexp.Regexp
}

// Priority order matters: the first calendar-valid candidate wins.
var textPatterns = []textPattern{
	{numericAmbiguous, regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)},
	{numericISO, regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)},
	{dayMonthNameYear, regexp.MustCompile(`(?i)(\d{1,2})\s+([a-z]{3,10})\.?\s+(\d{4})`)},
	{monthNameDayYear, regexp.MustCompile(`(?i)([a-z]{3,10})\.?\s+(\d{1,2}),?\s+(\d{4})`)},
}

var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
	regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
	regexp.MustCompile(`(\d{4})_(\d{2})_(\d{2})`),
}

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// IsValidDate reports whether the components form a real calendar date
// inside the supported year range.
func IsValidDate(year, month, day int) bool {
	if year < MinYear || year > MaxYear {
		return false
	}
	if month < 1 || month > 12 {
		return false
	}
	maxDay := daysInMonth[month-1]
	if month == 2 && IsLeapYear(year) {
		maxDay = 29
	}
	return day >= 1 && day <= maxDay
}

// Format renders the components as YYYYMMDD.
func Format(year, month, day int) string {
	return fmt.Sprintf("%04d%02d%02d", year, month, day)
}

// Split parses a YYYYMMDD string back into its components.
func Split(date string) (year, month, day int, err error) {
	if len(date) != 8 {
		return 0, 0, 0, fmt.Errorf("invalid date %q: want 8 digits", date)
	}
	n, err := strconv.Atoi(date)
	if err != nil || n < 0 {
		return 0, 0, 0, fmt.Errorf("invalid date %q: not numeric", date)
	}
	return n / 10000, n / 100 % 100, n % 100, nil
}

// MonthNumber maps an English or Spanish month name (any case, full or
// abbreviated) to its number using the first three letters.
func MonthNumber(name string) (int, bool) {
	if len(name) < 3 {
		return 0, false
	}
	m, ok := monthsByPrefix[strings.ToLower(name[:3])]
	return m, ok
}

// ParseText returns the first calendar-valid date found in text. Candidates
// that match structurally but fail validation are skipped.
func ParseText(text string) (string, bool) {
	for _, p := range textPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if date, ok := candidate(p.kind, m[1], m[2], m[3]); ok {
				return date, true
			}
		}
	}
	return "", false
}

func candidate(kind patternKind, a, b, c string) (string, bool) {
	var year, month, day int
	switch kind {
	case numericAmbiguous:
		first, second := atoi(a), atoi(b)
		year = atoi(c)
		switch {
		case first > 12:
			day, month = first, second
		case second > 12:
			month, day = first, second
		default:
			// Both fit as a month: day first.
			day, month = first, second
		}
	case numericISO:
		year, month, day = atoi(a), atoi(b), atoi(c)
	case dayMonthNameYear:
		m, ok := MonthNumber(b)
		if !ok {
			return "", false
		}
		day, month, year = atoi(a), m, atoi(c)
	case monthNameDayYear:
		m, ok := MonthNumber(a)
		if !ok {
			return "", false
		}
		month, day, year = m, atoi(b), atoi(c)
	}
	if !IsValidDate(year, month, day) {
		return "", false
	}
	return Format(year, month, day), true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// FromStudyID extracts a timestamp embedded in a study identifier.
func FromStudyID(id string) (string, bool) {
	for _, re := range idPatterns {
		for _, m := range re.FindAllStringSubmatch(id, -1) {
			year, month, day := atoi(m[1]), atoi(m[2]), atoi(m[3])
			if IsValidDate(year, month, day) {
				return Format(year, month, day), true
			}
		}
	}
	return "", false
}

// StudyIDFromURL returns the identifier segment that follows "/study/",
// without any query string.
func StudyIDFromURL(rawURL string) string {
	_, rest, found := strings.Cut(rawURL, "/study/")
	if !found {
		return ""
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
