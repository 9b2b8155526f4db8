// Package pdfcheck verifies that a downloaded file is a readable PDF.
package pdfcheck

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	errs "wellbin/pkg/errors"
)

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is the cause of a corruption error when the header is missing.
var ErrNotPDF = stderrors.New("missing %PDF- header")

var disableConfigDir sync.Once

// Report describes a file that passed validation.
type Report struct {
	Path  string
	Bytes int64
	Pages int
}

// Validator checks size, header and structure. A zero MaxBytes means no
// size limit.
type Validator struct {
	MaxBytes int64
	conf     *model.Configuration
}

func New(maxBytes int64) *Validator {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Validator{MaxBytes: maxBytes, conf: conf}
}

// Validate returns PDFTooLarge, PDFCorrupted or PDFExtraction errors.
func (v *Validator) Validate(path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.NewPDFProcessing(path, err)
	}
	if v.MaxBytes > 0 && info.Size() > v.MaxBytes {
		return nil, errs.NewPDFTooLarge(path, info.Size(), v.MaxBytes)
	}

	if err := checkHeader(path); err != nil {
		return nil, err
	}

	if err := api.ValidateFile(path, v.conf); err != nil {
		return nil, errs.NewPDFCorrupted(path, err)
	}

	pages, err := api.PageCountFile(path)
	if err != nil {
		return nil, errs.NewPDFExtraction(path, err)
	}

	return &Report{Path: path, Bytes: info.Size(), Pages: pages}, nil
}

func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.NewPDFProcessing(path, err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return errs.NewPDFCorrupted(path, ErrNotPDF)
	}
	return nil
}
