package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSequence(t *testing.T) {
	a := NewAllocator()

	assert.Equal(t, "20240604-lab-0.pdf", a.Generate("FhirStudy", "20240604"))
	assert.Equal(t, "20240604-lab-1.pdf", a.Generate("FhirStudy", "20240604"))
	assert.Equal(t, "20240604-lab-2.pdf", a.Generate("FhirStudy", "20240604"))
	assert.Equal(t, 3, a.Count("FhirStudy", "20240604"))
}

func TestGenerateIndependentCounters(t *testing.T) {
	a := NewAllocator()

	a.Generate("FhirStudy", "20240604")
	assert.Equal(t, "20240605-lab-0.pdf", a.Generate("FhirStudy", "20240605"))
	assert.Equal(t, "20240604-imaging-0.pdf", a.Generate("DicomStudy", "20240604"))
	assert.Equal(t, "20240604-other-0.pdf", a.Generate("EcgStudy", "20240604"))
	assert.Equal(t, "20240604-other-0.pdf", a.Generate("NoteStudy", "20240604"))
}

func TestGenerateUniqueWithinRun(t *testing.T) {
	a := NewAllocator()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		for _, tag := range []string{"FhirStudy", "DicomStudy"} {
			name := a.Generate(tag, "20240101")
			assert.False(t, seen[name], name)
			seen[name] = true
		}
	}
}

// A fresh run reuses names from the previous run: allocation is not idempotent
// across runs and does not look at the filesystem.
func TestNewRunReusesNames(t *testing.T) {
	first := NewAllocator()
	firstNames := []string{first.Generate("FhirStudy", "20240604"), first.Generate("FhirStudy", "20240604")}

	second := NewAllocator()
	secondNames := []string{second.Generate("FhirStudy", "20240604"), second.Generate("FhirStudy", "20240604")}

	assert.Equal(t, firstNames, secondNames)
	assert.Equal(t, 2, first.Count("FhirStudy", "20240604"))
	assert.Equal(t, 0, first.Count("FhirStudy", "20240605"))
}
