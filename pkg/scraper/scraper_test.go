package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellbin/internal/portaltest"
	"wellbin/pkg/config"
	"wellbin/pkg/download"
	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/metadata"
	"wellbin/pkg/metrics"
	"wellbin/pkg/page"
	"wellbin/pkg/portal"
	"wellbin/pkg/portal/httpengine"
	"wellbin/pkg/ui"
)

const (
	testEmail    = "pat@example.org"
	testPassword = "s3cret-pass"
)

// countingFetcher wraps a Fetcher and records how it was used.
type countingFetcher struct {
	inner    Fetcher
	fetches  int
	closes   int
	closeErr error
	mu       sync.Mutex
}

func (c *countingFetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()
	return c.inner.Fetch(ctx, url, dest)
}

func (c *countingFetcher) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.inner != nil {
		_ = c.inner.Close()
	}
	return c.closeErr
}

type harness struct {
	cfg     *config.Config
	log     *logger.TestLogger
	out     *ui.Recorder
	metrics *metrics.Metrics
	fetcher *countingFetcher
	portal  *portal.Session
}

func newHarness(t *testing.T, srv *portaltest.Server, outputDir string) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Scrape.StudyTypes = "all"
	cfg.Output.BaseDirectory = outputDir
	cfg.RateLimit = config.RateLimitConfig{}

	log := logger.NewTestLogger()

	pcfg := portal.DefaultConfig()
	pcfg.LoginURL = srv.LoginURL()
	pcfg.ExplorerURL = srv.ExplorerURL()
	pcfg.LoginSettle = time.Millisecond
	pcfg.Logger = log

	return &harness{
		cfg:     cfg,
		log:     log,
		out:     &ui.Recorder{},
		metrics: metrics.New(),
		fetcher: &countingFetcher{inner: download.NewManager(download.DefaultConfig(), log)},
		portal:  portal.NewSession(httpengine.New(), pcfg),
	}
}

func (h *harness) session(email, password string) *Session {
	return New(Options{
		Config:   h.cfg,
		Portal:   h.portal,
		Fetcher:  h.fetcher,
		Email:    email,
		Password: password,
		Output:   h.out,
		Logger:   h.log,
		Metrics:  h.metrics,
	})
}

func threeStudies() []portaltest.Study {
	return []portaltest.Study{
		{ID: "lab-a", Type: "FhirStudy", ReportDate: "13/06/2024", LinkText: "Hemograma"},
		{ID: "lab-b", Type: "FhirStudy", CardText: "Uploaded 04/06/2024"},
		{ID: "img-opaque", Type: "DicomStudy", LinkText: "Chest X-ray"},
	}
}

func TestRunEndToEnd(t *testing.T) {
	srv := portaltest.New(testEmail, testPassword, threeStudies()...)
	defer srv.Close()

	out := t.TempDir()
	h := newHarness(t, srv, out)

	result := h.session(testEmail, testPassword).Run(context.Background())

	assert.Equal(t, Summary{
		Discovered: 3,
		Attempted:  3,
		Succeeded:  3,
		Fallbacks:  1,
		Bytes:      result.Summary.Bytes,
		Duration:   result.Summary.Duration,
	}, result.Summary)
	require.Len(t, result.Records, 3)

	want := []string{
		filepath.Join(out, "lab_reports", "20240613-lab-0.pdf"),
		filepath.Join(out, "lab_reports", "20240604-lab-0.pdf"),
		filepath.Join(out, "imaging_reports", "20240101-imaging-0.pdf"),
	}
	for i, path := range want {
		assert.Equal(t, path, result.Records[i].LocalPath)
		assert.Equal(t, i+1, result.Records[i].SequenceIndex)
		assert.FileExists(t, path)
	}

	assert.Equal(t, "Hemograma", result.Records[0].Description)
	assert.Equal(t, "Download", result.Records[1].Description)
	assert.Equal(t, "page_field", result.Records[0].Study.DateSource)
	assert.Equal(t, "container", result.Records[1].Study.DateSource)
	assert.Equal(t, "fallback", result.Records[2].Study.DateSource)
	assert.Equal(t, srv.FileURL(threeStudies()[0]), result.Records[0].SourceURL)

	assert.Equal(t, 1, h.log.CountMessages(FallbackMessage))
	assert.Equal(t, 3, h.fetcher.fetches)
	assert.Equal(t, 1, h.fetcher.closes)
	assert.Equal(t, portal.StateClosed, h.portal.State())

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Downloads.WithLabelValues("lab", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Downloads.WithLabelValues("imaging", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DateSources.WithLabelValues("fallback")))

	byType := result.ByType()
	require.Len(t, byType, 2)
	assert.Equal(t, "imaging", byType[0].Type.Name)
	assert.Equal(t, 1, byType[0].Count)
	assert.Equal(t, "lab", byType[1].Type.Name)
	assert.Equal(t, 2, byType[1].Count)
}

func TestRunIsolatesStudyFailures(t *testing.T) {
	studies := []portaltest.Study{
		{ID: "expired", Type: "FhirStudy", ReportDate: "01/02/2024", FileStatus: 403},
		{ID: "nolink", Type: "FhirStudy", ReportDate: "02/02/2024", NoDownload: true},
		{ID: "missing", Type: "DicomStudy", ReportDate: "03/02/2024", FileStatus: 404},
		{ID: "good", Type: "FhirStudy", ReportDate: "04/02/2024"},
	}
	srv := portaltest.New(testEmail, testPassword, studies...)
	defer srv.Close()

	out := t.TempDir()
	h := newHarness(t, srv, out)

	result := h.session(testEmail, testPassword).Run(context.Background())

	assert.Equal(t, 4, result.Summary.Discovered)
	assert.Equal(t, 3, result.Summary.Attempted)
	assert.Equal(t, 1, result.Summary.Succeeded)
	assert.Equal(t, 3, result.Summary.Failed)
	require.Len(t, result.Records, 1)
	assert.Equal(t, filepath.Join(out, "lab_reports", "20240204-lab-0.pdf"), result.Records[0].LocalPath)

	require.Len(t, result.Failures, 3)
	assert.Equal(t, stageDownload, result.Failures[0].Stage)
	assert.Equal(t, errs.ErrorTypeURLExpired, errs.TypeOf(result.Failures[0].Err))
	assert.Equal(t, stageLink, result.Failures[1].Stage)
	assert.Equal(t, errs.ErrorTypeElementNotFound, errs.TypeOf(result.Failures[1].Err))
	assert.Equal(t, errs.ErrorTypeDownload, errs.TypeOf(result.Failures[2].Err))

	assert.NoFileExists(t, filepath.Join(out, "lab_reports", "20240201-lab-0.pdf"))
	assert.NoFileExists(t, filepath.Join(out, "imaging_reports", "20240203-imaging-0.pdf"))

	logged := h.log.Find("Study failed")
	require.Len(t, logged, len(result.Failures))
	for i, f := range result.Failures {
		assert.Equal(t, zerolog.ErrorLevel, logged[i].Level)
		assert.Equal(t, f.StudyURL, logged[i].Fields["study_url"])
		assert.Equal(t, f.Stage, logged[i].Fields["stage"])
		assert.NotEmpty(t, logged[i].Fields["study_type"])
		assert.Equal(t, f.Err, logged[i].Err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ErrorsTotal.WithLabelValues(string(errs.ErrorTypeURLExpired))))
	assert.Equal(t, 3, h.out.Count("error"))
	assert.Equal(t, 1, h.fetcher.closes)
}

func TestRunLoginFailureReturnsEmptyResult(t *testing.T) {
	srv := portaltest.New(testEmail, testPassword, threeStudies()...)
	defer srv.Close()

	h := newHarness(t, srv, t.TempDir())

	result := h.session(testEmail, "wrong").Run(context.Background())

	assert.True(t, result.Summary.LoginFailed)
	assert.True(t, result.Empty())
	assert.Zero(t, result.Summary.Discovered)
	assert.Zero(t, h.fetcher.fetches)
	assert.Equal(t, 1, h.fetcher.closes)
	assert.Equal(t, portal.StateClosed, h.portal.State())
	assert.Equal(t, 1, srv.LoginPosts())
	assert.True(t, h.log.HasMessage("Login failed"))
}

func TestRunEmptyDiscoveryStopsCleanly(t *testing.T) {
	srv := portaltest.New(testEmail, testPassword, threeStudies()...)
	defer srv.Close()

	h := newHarness(t, srv, t.TempDir())
	h.cfg.Scrape.StudyTypes = "ProcedureStudy"

	result := h.session(testEmail, testPassword).Run(context.Background())

	assert.False(t, result.Summary.LoginFailed)
	assert.True(t, result.Empty())
	assert.Zero(t, result.Summary.Discovered)
	assert.Equal(t, 1, h.out.Count("warning"))
	assert.Equal(t, 1, h.fetcher.closes)
}

func TestRunDryRunPlansWithoutDownloading(t *testing.T) {
	studies := threeStudies()
	srv := portaltest.New(testEmail, testPassword, studies...)
	defer srv.Close()

	out := t.TempDir()
	h := newHarness(t, srv, out)
	h.cfg.Scrape.DryRun = true

	result := h.session(testEmail, testPassword).Run(context.Background())

	assert.Empty(t, result.Records)
	require.Len(t, result.Targets, 3)
	assert.Equal(t, 3, result.Summary.Skipped)
	assert.Zero(t, result.Summary.Attempted)
	assert.Equal(t, filepath.Join(out, "imaging_reports", "20240101-imaging-0.pdf"), result.Targets[2].LocalPath)
	for _, st := range studies {
		assert.Zero(t, srv.Downloads(st.ID))
	}
	assert.NoDirExists(t, filepath.Join(out, "lab_reports"))
}

// Counters start over on every run, so a second run over the same data
// allocates the same names and replaces the files of the first.
func TestRunReusesFilenamesAcrossRuns(t *testing.T) {
	srv := portaltest.New(testEmail, testPassword, threeStudies()...)
	defer srv.Close()

	out := t.TempDir()
	first := newHarness(t, srv, out).session(testEmail, testPassword).Run(context.Background())

	h := newHarness(t, srv, out)
	second := h.session(testEmail, testPassword).Run(context.Background())

	require.Len(t, first.Records, 3)
	require.Len(t, second.Records, 3)
	for i := range first.Records {
		assert.Equal(t, first.Records[i].LocalPath, second.Records[i].LocalPath)
	}
	assert.Equal(t, 3, h.log.CountMessages("Overwriting file from an earlier run"))

	entries, err := os.ReadDir(filepath.Join(out, "lab_reports"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunValidatesAndWritesMetadata(t *testing.T) {
	studies := []portaltest.Study{
		{ID: "good", Type: "FhirStudy", ReportDate: "10/05/2024", Body: portaltest.MinimalPDF(2)},
		{ID: "html", Type: "FhirStudy", ReportDate: "11/05/2024", Body: []byte("<html>login</html>")},
	}
	srv := portaltest.New(testEmail, testPassword, studies...)
	defer srv.Close()

	out := t.TempDir()
	h := newHarness(t, srv, out)
	h.cfg.Output.ValidatePDFs = true
	h.cfg.Output.WriteMetadata = true

	result := h.session(testEmail, testPassword).Run(context.Background())

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, 2, rec.Pages)
	require.True(t, metadata.Exists(rec.LocalPath))

	doc, err := metadata.Load(rec.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "20240510", doc.Date)
	assert.NotContains(t, doc.SourceURL, "X-Amz-Signature")

	require.Len(t, result.Failures, 1)
	assert.Equal(t, stageValidate, result.Failures[0].Stage)
	assert.Equal(t, errs.ErrorTypePDFCorrupted, errs.TypeOf(result.Failures[0].Err))
	assert.NoFileExists(t, filepath.Join(out, "lab_reports", "20240511-lab-0.pdf"))
}

// stubPortal serves fixed anchors and pages without any HTTP.
type stubPortal struct {
	anchors  []page.Anchor
	pages    map[string]*page.StudyPage
	loginErr error
	closeErr error
	closes   int
}

func (p *stubPortal) Login(ctx context.Context, email, password string) error { return p.loginErr }

func (p *stubPortal) ListStudyLinks(ctx context.Context) ([]page.Anchor, error) {
	return p.anchors, nil
}

func (p *stubPortal) OpenStudy(ctx context.Context, url string) (*page.StudyPage, error) {
	sp, ok := p.pages[url]
	if !ok {
		return nil, errs.NewPageLoad(url, stderrors.New("not found"))
	}
	return sp, nil
}

func (p *stubPortal) Close() error {
	p.closes++
	return p.closeErr
}

// flakyFetcher fails the first failures calls with err, then writes a file.
type flakyFetcher struct {
	failures int
	err      error
	calls    int
	closeErr error
	closes   int
}

func (f *flakyFetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}
	body := portaltest.MinimalPDF(1)
	return int64(len(body)), os.WriteFile(dest, body, 0644)
}

func (f *flakyFetcher) Close() error {
	f.closes++
	return f.closeErr
}

func stubStudy(id, tag string) (page.Anchor, *page.StudyPage) {
	url := "https://wellbin.co/study/" + id + "?type=" + tag
	return page.Anchor{Href: url, Text: "View"}, &page.StudyPage{
		URL:          url,
		ReportDate:   "15/03/2024",
		DownloadLink: &page.Link{Href: "https://wellbin-uploads.s3.amazonaws.com/" + id + ".pdf", Text: "Download"},
	}
}

func newStubPortal(ids ...string) *stubPortal {
	p := &stubPortal{pages: map[string]*page.StudyPage{}}
	for _, id := range ids {
		a, sp := stubStudy(id, "FhirStudy")
		p.anchors = append(p.anchors, a)
		p.pages[a.Href] = sp
	}
	return p
}

func stubConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.RateLimit = config.RateLimitConfig{}
	return cfg
}

func TestRunRetriesTransientErrorsWhenEnabled(t *testing.T) {
	cfg := stubConfig(t)
	cfg.Download.RetryAttempts = 2
	cfg.Download.RetryDelay = time.Millisecond

	m := metrics.New()
	f := &flakyFetcher{failures: 2, err: errs.NewTimeout("u", context.DeadlineExceeded)}
	result := New(Options{
		Config:  cfg,
		Portal:  newStubPortal("s1"),
		Fetcher: f,
		Logger:  logger.NewTestLogger(),
		Metrics: m,
	}).Run(context.Background())

	assert.Equal(t, 1, result.Summary.Succeeded)
	assert.Equal(t, 1, result.Summary.Attempted)
	assert.Equal(t, 3, f.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal))
}

func TestRunDoesNotRetryByDefault(t *testing.T) {
	f := &flakyFetcher{failures: 1, err: errs.NewConnection("u", stderrors.New("refused"))}
	result := New(Options{
		Config:  stubConfig(t),
		Portal:  newStubPortal("s1", "s2"),
		Fetcher: f,
		Logger:  logger.NewTestLogger(),
	}).Run(context.Background())

	assert.Equal(t, 2, f.calls)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 1, result.Summary.Succeeded)
}

func TestRunNeverRetriesExpiredLinks(t *testing.T) {
	cfg := stubConfig(t)
	cfg.Download.RetryAttempts = 3
	cfg.Download.RetryDelay = time.Millisecond

	f := &flakyFetcher{failures: 5, err: errs.NewURLExpired("u")}
	result := New(Options{
		Config:  cfg,
		Portal:  newStubPortal("s1"),
		Fetcher: f,
		Logger:  logger.NewTestLogger(),
	}).Run(context.Background())

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, errs.ErrorTypeURLExpired, errs.TypeOf(result.Failures[0].Err))
}

func TestCleanupFailuresAreSwallowed(t *testing.T) {
	p := newStubPortal("s1")
	p.closeErr = stderrors.New("browser already gone")
	f := &flakyFetcher{closeErr: stderrors.New("transport busy")}
	log := logger.NewTestLogger()

	result := New(Options{Config: stubConfig(t), Portal: p, Fetcher: f, Logger: log}).Run(context.Background())

	assert.Equal(t, 1, result.Summary.Succeeded)
	assert.Equal(t, 1, p.closes)
	assert.Equal(t, 1, f.closes)
	assert.True(t, log.HasMessage("Failed to close browser session"))
	assert.True(t, log.HasMessage("Failed to close download client"))
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newStubPortal("s1", "s2", "s3")
	f := &flakyFetcher{}
	result := New(Options{Config: stubConfig(t), Portal: p, Fetcher: f, Logger: logger.NewTestLogger()}).Run(ctx)

	assert.True(t, result.Summary.Cancelled)
	assert.Equal(t, 3, result.Summary.Skipped)
	assert.Zero(t, f.calls)
	assert.Equal(t, 1, p.closes)
	assert.Equal(t, 1, f.closes)
}

func TestRunReportsPageLoadFailures(t *testing.T) {
	p := newStubPortal("s1")
	p.anchors = append(p.anchors, page.Anchor{Href: "https://wellbin.co/study/gone?type=FhirStudy"})

	result := New(Options{Config: stubConfig(t), Portal: p, Fetcher: &flakyFetcher{}, Logger: logger.NewTestLogger()}).
		Run(context.Background())

	require.Len(t, result.Failures, 1)
	assert.Equal(t, stageOpen, result.Failures[0].Stage)
	assert.Equal(t, errs.ErrorTypePageLoad, errs.TypeOf(result.Failures[0].Err))
	assert.Equal(t, 1, result.Summary.Succeeded)
}

func TestSameDateSameTypeIncrementsCounter(t *testing.T) {
	cfg := stubConfig(t)
	result := New(Options{Config: cfg, Portal: newStubPortal("s1", "s2", "s3"), Fetcher: &flakyFetcher{}, Logger: logger.NewTestLogger()}).
		Run(context.Background())

	require.Len(t, result.Records, 3)
	for i, rec := range result.Records {
		assert.Equal(t, filepath.Join(cfg.Output.BaseDirectory, "lab_reports", fmt.Sprintf("20240315-lab-%d.pdf", i)), rec.LocalPath)
	}
}
