package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupStudyType(t *testing.T) {
	lab, ok := LookupStudyType("FhirStudy")
	require.True(t, ok)
	assert.Equal(t, "lab", lab.Name)
	assert.Equal(t, "lab_reports", lab.Subdir)

	img, ok := LookupStudyType("DicomStudy")
	require.True(t, ok)
	assert.Equal(t, "imaging", img.Name)
	assert.Equal(t, "imaging_reports", img.Subdir)

	other, ok := LookupStudyType("PathologyStudy")
	assert.False(t, ok)
	assert.Equal(t, "other", other.Name)
	assert.Equal(t, "other_reports", other.Subdir)
	assert.Equal(t, "PathologyStudy", other.Tag)
}

func TestKnownStudyTags(t *testing.T) {
	assert.Equal(t, []string{"DicomStudy", "FhirStudy"}, KnownStudyTags())
	assert.True(t, IsKnownStudyTag("FhirStudy"))
	assert.False(t, IsKnownStudyTag("fhirstudy"))
}

func TestStudyTypeFromURL(t *testing.T) {
	assert.Equal(t, "FhirStudy", StudyTypeFromURL("https://wellbin.co/study/abc?type=FhirStudy"))
	assert.Equal(t, "DicomStudy", StudyTypeFromURL("/study/20240604?x=1&type=DicomStudy"))
	assert.Equal(t, "", StudyTypeFromURL("https://wellbin.co/study/abc"))
	assert.Equal(t, "", StudyTypeFromURL("%zz"))
}

func TestAttachDateOnce(t *testing.T) {
	ref := &StudyReference{URL: "https://wellbin.co/study/1?type=FhirStudy", TypeTag: "FhirStudy"}

	require.NoError(t, ref.AttachDate("20240604", "page_field"))
	assert.Equal(t, "20240604", ref.ResolvedDate)
	assert.Equal(t, "page_field", ref.DateSource)

	err := ref.AttachDate("20240101", "fallback")
	assert.Error(t, err)
	assert.Equal(t, "20240604", ref.ResolvedDate)
}

func TestNewDownloadRecord(t *testing.T) {
	ref := &StudyReference{URL: "u", TypeTag: "DicomStudy"}
	target := PDFDownloadTarget{SourceURL: "s3", Study: ref, Description: "Informe", SequenceIndex: 2}

	rec := NewDownloadRecord(target, "/out/imaging_reports/x.pdf", 1234)
	assert.Equal(t, "s3", rec.SourceURL)
	assert.Equal(t, ref, rec.Study)
	assert.Equal(t, 2, rec.SequenceIndex)
	assert.Equal(t, int64(1234), rec.Bytes)
	assert.Equal(t, "imaging", rec.Study.Type().Name)
}
