// Package convert turns downloaded report PDFs into markdown files that
// keep the page structure and the section headings of the report.
package convert

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"wellbin/pkg/config"
	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/models"
	"wellbin/pkg/storage"
)

// MarkdownSuffix names the output folder of each report folder when the
// structure is preserved.
const MarkdownSuffix = "_markdown"

// KindUnknown is the kind of a folder that holds no known report type.
const KindUnknown = "unknown"

var disableConfigDir sync.Once

// Options configure a conversion run.
type Options struct {
	InputDir          string
	OutputDir         string
	FileType          string
	PreserveStructure bool
	Logger            logger.Logger
	Now               func() time.Time
}

// OptionsFromConfig copies the convert settings.
func OptionsFromConfig(cfg *config.ConvertConfig) Options {
	return Options{
		InputDir:          cfg.InputDirectory,
		OutputDir:         cfg.OutputDirectory,
		FileType:          cfg.FileType,
		PreserveStructure: cfg.PreserveStructure,
	}
}

// Output is one markdown file written by a run.
type Output struct {
	Source string
	Path   string
	Pages  int
	Bytes  int64
}

// Failure is a PDF that could not be converted.
type Failure struct {
	Source string
	Err    error
}

// Result collects the outcome of a run. Skipped lists report folders left
// out by the file type filter.
type Result struct {
	Converted []Output
	Failed    []Failure
	Skipped   []string
}

// Bytes is the total size of the markdown written.
func (r *Result) Bytes() int64 {
	var n int64
	for _, o := range r.Converted {
		n += o.Bytes
	}
	return n
}

type Converter struct {
	opts Options
	log  logger.Logger
}

func New(opts Options) *Converter {
	disableConfigDir.Do(api.DisableConfigDir)

	if opts.FileType == "" {
		opts.FileType = config.FileTypeAll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Converter{opts: opts, log: log.WithField("component", "convert")}
}

// Run converts every PDF under the input directory. A PDF that fails is
// recorded and the run goes on; only an unreadable input directory or
// cancellation stop it.
func (c *Converter) Run(ctx context.Context) (*Result, error) {
	info, err := os.Stat(c.opts.InputDir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFileSystem, err, "cannot read input directory "+c.opts.InputDir)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.ErrorTypeFileSystem, "input is not a directory").WithDetails(c.opts.InputDir)
	}

	result := &Result{}
	if !c.opts.PreserveStructure {
		return result, c.convertDir(ctx, c.opts.InputDir, c.opts.OutputDir, result)
	}

	entries, err := os.ReadDir(c.opts.InputDir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFileSystem, err, "cannot read input directory "+c.opts.InputDir)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		kind := KindForDir(e.Name())
		if c.opts.FileType != config.FileTypeAll && c.opts.FileType != kind {
			c.log.DebugWithFields("Folder filtered out", map[string]interface{}{"folder": e.Name(), "kind": kind})
			result.Skipped = append(result.Skipped, e.Name())
			continue
		}
		in := filepath.Join(c.opts.InputDir, e.Name())
		out := filepath.Join(c.opts.OutputDir, e.Name()+MarkdownSuffix)
		if err := c.convertDir(ctx, in, out, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// KindForDir maps a report folder such as lab_reports to its type name.
func KindForDir(name string) string {
	for _, tag := range models.KnownStudyTags() {
		if st, _ := models.LookupStudyType(tag); st.Subdir == name {
			return st.Name
		}
	}
	return KindUnknown
}

func (c *Converter) convertDir(ctx context.Context, in, out string, result *Result) error {
	pdfs, err := findPDFs(in)
	if err != nil {
		return err
	}
	if len(pdfs) == 0 {
		c.log.WarnWithFields("No PDF files found", map[string]interface{}{"directory": in})
		return nil
	}
	if err := storage.EnsureDir(out); err != nil {
		return err
	}

	for _, src := range pdfs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, err := c.ConvertFile(src, out)
		if err != nil {
			c.log.WithError(err).WarnWithFields("Conversion failed", map[string]interface{}{"file": src})
			result.Failed = append(result.Failed, Failure{Source: src, Err: err})
			continue
		}
		c.log.DebugWithFields("Converted", map[string]interface{}{"file": src, "output": o.Path, "pages": o.Pages})
		result.Converted = append(result.Converted, *o)
	}
	return nil
}

func findPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFileSystem, err, "cannot read directory "+dir)
	}
	var pdfs []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			pdfs = append(pdfs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

// ConvertFile writes {name}.md for the PDF at src into outDir.
func (c *Converter) ConvertFile(src, outDir string) (*Output, error) {
	doc, err := Extract(src)
	if err != nil {
		return nil, err
	}
	doc.Extracted = c.opts.Now()

	dest := filepath.Join(outDir, doc.Name+".md")
	n, err := storage.WriteStream(strings.NewReader(doc.Markdown()), dest, 0)
	if err != nil {
		return nil, err
	}
	return &Output{Source: src, Path: dest, Pages: len(doc.Pages), Bytes: n}, nil
}

// Extract reads the text of every page of the PDF at path.
func Extract(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewPDFProcessing(path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTCONTENT

	pdf, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, errs.NewPDFCorrupted(path, err)
	}

	doc := &Document{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	for p := 1; p <= pdf.PageCount; p++ {
		r, err := pdfcpu.ExtractPageContent(pdf, p)
		if err != nil {
			return nil, errs.NewPDFExtraction(path, err)
		}
		var content []byte
		if r != nil {
			if content, err = io.ReadAll(r); err != nil {
				return nil, errs.NewPDFExtraction(path, err)
			}
		}
		doc.Pages = append(doc.Pages, ExtractLines(content))
	}
	return doc, nil
}
