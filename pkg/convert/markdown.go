package convert

import (
	"fmt"
	"strings"
	"time"
)

// Section names of lab and imaging reports that become headings.
var (
	mainSections = []string{
		"PATIENT INFORMATION", "LABORATORY RESULTS", "CLINICAL FINDINGS", "INTERPRETATION",
		"CONCLUSION", "RECOMMENDATION", "DIAGNOSIS", "LABORATORY DATA", "CHEMISTRY PANEL",
		"HEMATOLOGY", "IMAGING FINDINGS", "CLINICAL HISTORY", "EXAMINATION", "RESULTS",
		"FINDINGS", "IMPRESSION", "COMMENTS",
	}
	subSections = []string{
		"CHEMISTRY", "HEMATOLOGY", "LIPID PANEL", "GLUCOSE", "ELECTROLYTES", "LIVER FUNCTION",
		"KIDNEY FUNCTION", "CARDIAC MARKERS", "TUMOR MARKERS", "HORMONES", "VITAMINS",
		"PROTEINS", "CBC", "DIFFERENTIAL", "PLATELET", "COAGULATION",
	}
)

// HeadingPrefix returns the markdown heading marker for a line, or "" for
// body text. Sizes are in points.
func HeadingPrefix(line Line) string {
	upper := strings.ToUpper(line.Text)
	switch {
	case line.Size >= 12 && containsAny(upper, mainSections):
		return "## "
	case line.Size >= 10 && containsAny(upper, subSections):
		return "### "
	case line.Size >= 9 && strings.HasSuffix(line.Text, ":"):
		return "#### "
	}
	return ""
}

func containsAny(s string, names []string) bool {
	for _, n := range names {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Document is the text of one PDF, page by page.
type Document struct {
	Name      string
	Pages     [][]Line
	Extracted time.Time
}

// Markdown renders the document with a header block and one section per
// page.
func (d *Document) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Medical Report: %s\n\n", d.Name)
	fmt.Fprintf(&b, "**Source File:** `%s.pdf`\n", d.Name)
	fmt.Fprintf(&b, "**Extracted:** %s\n", d.Extracted.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Total Pages:** %d\n\n---\n", len(d.Pages))

	for i, lines := range d.Pages {
		fmt.Fprintf(&b, "\n## Page %d\n\n", i+1)
		for _, line := range lines {
			if prefix := HeadingPrefix(line); prefix != "" {
				fmt.Fprintf(&b, "%s%s\n\n", prefix, line.Text)
				continue
			}
			b.WriteString(line.Text)
			b.WriteString("\n\n")
		}
		if len(lines) == 0 {
			b.WriteString("_No text on this page._\n\n")
		}
	}
	return b.String()
}
