package scraper

import (
	"context"
	"fmt"
	"os"
	"time"

	"wellbin/pkg/config"
	"wellbin/pkg/dates"
	"wellbin/pkg/discovery"
	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/metadata"
	"wellbin/pkg/metrics"
	"wellbin/pkg/models"
	"wellbin/pkg/naming"
	"wellbin/pkg/page"
	"wellbin/pkg/pdfcheck"
	"wellbin/pkg/ratelimit"
	"wellbin/pkg/retry"
	"wellbin/pkg/storage"
	"wellbin/pkg/ui"
)

// FallbackMessage is logged once for every study whose date could not be
// resolved and was given the sentinel date.
const FallbackMessage = "fallback date used"

const (
	stageOpen     = "open_study"
	stageDate     = "resolve_date"
	stageLink     = "locate_link"
	stageDownload = "download"
	stageValidate = "validate"
)

// Options wires a Session. Portal and Fetcher are required; everything else
// has a default.
type Options struct {
	Config   *config.Config
	Portal   Portal
	Fetcher  Fetcher
	Email    string
	Password string

	Output  ui.Output
	Logger  logger.Logger
	Metrics *metrics.Metrics

	// NavigationLimiter paces study page loads and DownloadLimiter paces
	// fetches. Both default to the intervals in Config.RateLimit.
	NavigationLimiter ratelimit.Limiter
	DownloadLimiter   ratelimit.Limiter
}

// Session owns the portal and the downloader for one run.
type Session struct {
	cfg       *config.Config
	portal    Portal
	fetcher   Fetcher
	email     string
	password  string
	out       ui.Output
	log       logger.Logger
	metrics   *metrics.Metrics
	resolver  *dates.Resolver
	validator *pdfcheck.Validator
	navLimit  ratelimit.Limiter
	dlLimit   ratelimit.Limiter

	// per run
	allocator *naming.Allocator
	store     *storage.Manager
	result    *Result
}

func New(opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	out := opts.Output
	if out == nil {
		out = ui.Nop{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	navLimit := opts.NavigationLimiter
	if navLimit == nil {
		navLimit = intervalLimiter(cfg.RateLimit.NavigationInterval)
	}
	dlLimit := opts.DownloadLimiter
	if dlLimit == nil {
		dlLimit = downloadLimiter(cfg.RateLimit)
	}

	s := &Session{
		cfg:      cfg,
		portal:   opts.Portal,
		fetcher:  opts.Fetcher,
		email:    opts.Email,
		password: opts.Password,
		out:      out,
		log:      log.WithField("component", "scraper"),
		metrics:  opts.Metrics,
		resolver: dates.NewResolver(dates.DefaultCacheSize),
		navLimit: navLimit,
		dlLimit:  dlLimit,
	}
	if cfg.Output.ValidatePDFs {
		s.validator = pdfcheck.New(cfg.Output.MaxFileSize)
	}
	return s
}

func intervalLimiter(d time.Duration) ratelimit.Limiter {
	if d <= 0 {
		return ratelimit.Unlimited{}
	}
	return ratelimit.NewInterval(d)
}

func downloadLimiter(rl config.RateLimitConfig) ratelimit.Limiter {
	chain := ratelimit.Chain{intervalLimiter(rl.DownloadInterval)}
	if rl.DownloadsPerMinute > 0 {
		chain = append(chain, ratelimit.NewSlidingWindow(rl.DownloadsPerMinute, time.Minute))
	}
	return chain
}

// Run executes the whole pipeline. It never returns an error: failures are
// logged, counted and reflected in the Result.
func (s *Session) Run(ctx context.Context) *Result {
	started := time.Now()
	s.allocator = naming.NewAllocator()
	s.result = &Result{}
	result := s.result

	defer func() {
		s.cleanup()
		result.Summary.Duration = time.Since(started)
		s.log.InfoWithFields("Run finished", map[string]interface{}{
			"discovered": result.Summary.Discovered,
			"attempted":  result.Summary.Attempted,
			"succeeded":  result.Summary.Succeeded,
			"failed":     result.Summary.Failed,
			"skipped":    result.Summary.Skipped,
			"fallbacks":  result.Summary.Fallbacks,
			"duration":   result.Summary.Duration.String(),
		})
	}()

	logger.LogComponentStart("scraper", map[string]interface{}{
		"output_dir":  s.cfg.Output.BaseDirectory,
		"study_types": s.cfg.Scrape.StudyTypes,
		"limit":       s.cfg.Scrape.Limit,
		"dry_run":     s.cfg.Scrape.DryRun,
	})

	s.out.Action(fmt.Sprintf("Logging in as %s", logger.MaskEmail(s.email)))
	if err := s.portal.Login(ctx, s.email, s.password); err != nil {
		result.Summary.LoginFailed = true
		s.countError(err)
		s.log.WithError(err).Error("Login failed")
		s.out.Error(fmt.Sprintf("Login failed: %v", err))
		return result
	}
	s.out.Success("Logged in")

	studies, err := discovery.Discover(ctx, s.portal, discovery.ParseTypeFilters(s.cfg.Scrape.StudyTypes), s.cfg.Scrape.Limit)
	if err != nil {
		s.countError(err)
		s.log.WithError(err).Error("Study discovery failed")
		s.out.Error(fmt.Sprintf("Could not list studies: %v", err))
		return result
	}
	result.Summary.Discovered = len(studies)
	if len(studies) == 0 {
		s.log.Warn("No studies matched the requested types")
		s.out.Warning("No studies found for the requested types")
		return result
	}
	for _, st := range studies {
		s.metrics.IncDiscovered(st.Type().Name)
	}
	s.out.Info(fmt.Sprintf("Found %d studies", len(studies)))

	store, err := storage.NewManager(s.cfg.Output.BaseDirectory)
	if err != nil {
		s.countError(err)
		s.log.WithError(err).Error("Output directory unavailable")
		s.out.Error(err.Error())
		return result
	}
	s.store = store
	s.logExisting(studies)

	tracker := ui.NewTracker(s.out, len(studies))
	for i := range studies {
		if ctx.Err() != nil {
			result.Summary.Cancelled = true
			result.Summary.Skipped += len(studies) - i
			s.log.WarnWithFields("Run cancelled", map[string]interface{}{
				"remaining": len(studies) - i,
			})
			break
		}

		study := &studies[i]
		label := fmt.Sprintf("%s study %s", study.Type().Name, dates.StudyIDFromURL(study.URL))
		logger.LogStudyProgress(i+1, len(studies), study.URL)
		tracker.Start(label)

		stage, err := s.processStudy(ctx, study, i+1)
		switch {
		case err != nil:
			result.Summary.Failed++
			result.Failures = append(result.Failures, Failure{StudyURL: study.URL, Stage: stage, Err: err})
			s.countError(err)
			s.log.WithError(err).WithFields(map[string]interface{}{
				"study_url":  study.URL,
				"study_type": study.TypeTag,
				"stage":      stage,
			}).Error("Study failed")
			tracker.Fail(label, err)
		case s.cfg.Scrape.DryRun:
			result.Summary.Skipped++
			tracker.Skip(label, "dry run")
		default:
			rec := result.Records[len(result.Records)-1]
			tracker.Succeed(rec.LocalPath, rec.Bytes)
		}
	}
	tracker.Complete()

	if s.cfg.Output.WriteMetadata && !s.cfg.Scrape.DryRun {
		if removed, err := metadata.CleanOrphaned(s.store.OutputDir()); err != nil {
			s.log.WithError(err).Warn("Failed to clean orphaned metadata")
		} else if removed > 0 {
			s.log.InfoWithFields("Removed orphaned metadata", map[string]interface{}{"count": removed})
		}
	}
	s.log.DebugWithFields("Run caches", map[string]interface{}{
		"files_written": s.store.WrittenCount(),
		"parsed_dates":  s.resolver.CacheLen(),
	})

	return result
}

// logExisting reports documents left by earlier runs, which this run may
// overwrite.
func (s *Session) logExisting(studies []models.StudyReference) {
	seen := make(map[string]bool)
	for _, st := range studies {
		if seen[st.TypeTag] {
			continue
		}
		seen[st.TypeTag] = true

		files, err := s.store.ExistingDocuments(st.TypeTag)
		if err != nil || len(files) == 0 {
			continue
		}
		s.log.InfoWithFields("Output already holds documents", map[string]interface{}{
			"study_type": st.TypeTag,
			"directory":  s.store.DirFor(st.TypeTag),
			"count":      len(files),
		})
	}
}

// processStudy handles one study end to end. It returns the stage that
// failed along with the error.
func (s *Session) processStudy(ctx context.Context, study *models.StudyReference, seq int) (string, error) {
	if err := s.navLimit.Wait(ctx); err != nil {
		return stageOpen, err
	}
	sp, err := s.portal.OpenStudy(ctx, study.URL)
	if err != nil {
		return stageOpen, err
	}

	if err := s.resolveDate(study, sp); err != nil {
		return stageDate, err
	}

	if sp.DownloadLink == nil {
		s.log.WarnWithFields("No download link on study page", map[string]interface{}{
			"study_url": study.URL,
			"links":     describeLinks(sp.Links),
		})
		return stageLink, errs.NewElementNotFound(page.DownloadLinkSelector)
	}

	filename := s.allocator.Generate(study.TypeTag, study.ResolvedDate)
	dest := s.store.PathFor(study.TypeTag, filename)
	target := models.PDFDownloadTarget{
		SourceURL:     sp.DownloadLink.Href,
		Study:         study,
		Description:   sp.DownloadLink.Text,
		SequenceIndex: seq,
		LocalPath:     dest,
	}
	s.result.Targets = append(s.result.Targets, target)

	if s.store.Exists(dest) {
		s.log.WarnWithFields("Overwriting file from an earlier run", map[string]interface{}{
			"path":      dest,
			"study_url": study.URL,
		})
	}

	if s.cfg.Scrape.DryRun {
		s.metrics.ObserveDownload(study.Type().Name, metrics.OutcomePlanned, 0, 0)
		s.out.Debug(fmt.Sprintf("Would save %s", dest))
		return "", nil
	}

	if err := s.dlLimit.Wait(ctx); err != nil {
		return stageDownload, err
	}

	s.result.Summary.Attempted++
	began := time.Now()
	n, err := s.fetch(ctx, target.SourceURL, dest)
	if err != nil {
		s.metrics.ObserveDownload(study.Type().Name, metrics.OutcomeFailure, 0, time.Since(began))
		logger.LogDownload(study.URL, study.TypeTag, study.ResolvedDate, false, err)
		return stageDownload, err
	}
	s.metrics.ObserveDownload(study.Type().Name, metrics.OutcomeSuccess, n, time.Since(began))
	s.store.Track(dest)

	rec := models.NewDownloadRecord(target, dest, n)
	if s.validator != nil {
		report, err := s.validator.Validate(dest)
		if err != nil {
			if rmErr := os.Remove(dest); rmErr != nil {
				s.log.WithError(rmErr).WithField("path", dest).Warn("Could not remove invalid PDF")
			}
			return stageValidate, err
		}
		rec.Pages = report.Pages
	}

	if s.cfg.Output.WriteMetadata {
		if err := metadata.FromRecord(rec).Save(dest); err != nil {
			s.log.WithError(err).WithField("path", dest).Warn("Could not write metadata sidecar")
		}
	}

	s.result.Records = append(s.result.Records, rec)
	s.result.Summary.Succeeded++
	s.result.Summary.Bytes += n
	logger.LogDownload(study.URL, study.TypeTag, study.ResolvedDate, true, nil)
	return "", nil
}

func (s *Session) resolveDate(study *models.StudyReference, sp *page.StudyPage) error {
	res := s.resolver.Resolve(dates.Input{
		PageDateText:  sp.ReportDate,
		ContainerText: study.ContextText,
		StudyURL:      study.URL,
	})
	s.metrics.IncDateSource(string(res.Source))

	if res.Fallback {
		s.result.Summary.Fallbacks++
		s.log.WarnWithFields(FallbackMessage, map[string]interface{}{
			"study_url": study.URL,
			"date":      res.Date,
		})
		s.out.Warning(fmt.Sprintf("No date found for %s, using %s", study.URL, res.Date))
	} else {
		s.log.DebugWithFields("Date resolved", map[string]interface{}{
			"study_url": study.URL,
			"date":      res.Date,
			"source":    string(res.Source),
		})
	}
	return study.AttachDate(res.Date, string(res.Source))
}

// fetch runs a single download, or a bounded series of attempts for
// transient errors when retries are configured.
func (s *Session) fetch(ctx context.Context, url, dest string) (int64, error) {
	attempts := s.cfg.Download.RetryAttempts
	if attempts <= 0 {
		return s.fetcher.Fetch(ctx, url, dest)
	}

	return retry.DoWithResult(ctx, func(ctx context.Context) (int64, error) {
		return s.fetcher.Fetch(ctx, url, dest)
	}, &retry.Config{
		MaxRetries: attempts,
		Backoff:    &retry.ConstantBackoff{Delay: s.cfg.Download.RetryDelay},
		RetryIf:    errs.IsRetryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.metrics.IncRetries()
			s.out.Debug(fmt.Sprintf("Retrying download (attempt %d): %v", attempt+1, err))
		},
		Logger: s.log,
	})
}

// cleanup closes the portal and the downloader independently.
func (s *Session) cleanup() {
	if s.portal != nil {
		if err := s.portal.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close browser session")
		}
	}
	if s.fetcher != nil {
		if err := s.fetcher.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close download client")
		}
	}
	logger.LogComponentStop("scraper", "run complete")
}

func (s *Session) countError(err error) {
	s.metrics.IncError(string(errs.TypeOf(err)))
}

func describeLinks(links []page.Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, fmt.Sprintf("%s (%s)", errs.Truncate(l.Href, 80), l.Text))
	}
	return out
}
