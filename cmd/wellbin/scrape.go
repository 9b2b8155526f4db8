package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wellbin/pkg/auth"
	"wellbin/pkg/config"
	"wellbin/pkg/download"
	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
	"wellbin/pkg/metrics"
	"wellbin/pkg/portal"
	"wellbin/pkg/portal/chrome"
	"wellbin/pkg/portal/httpengine"
	"wellbin/pkg/scraper"
	"wellbin/pkg/ui"
	"wellbin/pkg/ui/tui"
)

var (
	tuiMode    bool
	chromePath string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Log in and download medical documents",
	Long: `Log in to the Wellbin portal, list your studies and download each one.

Credentials are taken from --email/--password, then WELLBIN_EMAIL and
WELLBIN_PASSWORD (a .env file is read too), then accounts saved with
'wellbin auth login'.

Running again re-downloads every study and overwrites files of the same
name.`,
	Example: `  # Download lab reports
  wellbin scrape

  # Lab and imaging reports, at most 5 studies
  wellbin scrape --types all --limit 5

  # See what would be downloaded
  wellbin scrape --dry-run

  # Without a browser, with a live dashboard
  wellbin scrape --engine http --tui`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addScrapeFlags(scrapeCmd)
}

func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("email", "", "portal account email")
	f.String("password", "", "portal account password")
	f.Int("limit", 0, "maximum number of studies to process (0 = all)")
	f.String("types", "", "study types: FhirStudy, DicomStudy, a comma separated list or all")
	f.StringP("output", "o", "", "output directory")
	f.Bool("headless", true, "run the browser without a window")
	f.Bool("show-browser", false, "show the browser window (same as --headless=false)")
	f.String("engine", "", "automation engine: chrome or http")
	f.Bool("dry-run", false, "resolve dates and file names without downloading")
	f.Int("retries", 0, "extra attempts for downloads that time out or lose the connection")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.Bool("validate-pdfs", false, "check that every downloaded file is a readable PDF")
	f.Bool("metadata", false, "write a JSON sidecar next to every file")
	f.BoolVar(&tuiMode, "tui", false, "show a live dashboard instead of plain output")
	f.StringVar(&chromePath, "chrome-path", "", "path to a Chrome or Chromium binary")
}

// collectFlags returns the flags the user set explicitly, keyed the way
// config.MergeCommandLineFlags expects.
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	f := cmd.Flags()

	for _, name := range []string{"email", "password", "types", "output", "engine", "metrics-addr"} {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"limit", "retries"} {
		if f.Changed(name) {
			v, _ := f.GetInt(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"headless", "dry-run", "validate-pdfs", "metadata"} {
		if f.Changed(name) {
			v, _ := f.GetBool(name)
			flags[name] = v
		}
	}
	if show, _ := f.GetBool("show-browser"); show {
		flags["headless"] = false
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	} else if tuiMode {
		// console logs would draw over the dashboard
		flags["log-level"] = "error"
	} else if verbose {
		flags["log-level"] = "debug"
	}
	return flags
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	email, password := cfg.Wellbin.Email, cfg.Wellbin.Password
	if manager, err := auth.NewManager(); err == nil {
		email, password = manager.Resolve(email, password)
	} else {
		log.WithError(err).Warn("Credential store unavailable")
	}
	if ok, msg := auth.ValidateCredentials(email, password); !ok {
		auth.WriteSetupGuide(os.Stderr)
		return errs.NewMissingCredentials(msg)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out ui.Output
	var dash *tui.TUI
	term := newTerminal()
	if tuiMode {
		dash = tui.New(verbose)
		dash.OnQuit(stop)
		out = dash
	} else {
		out = term
	}

	m := metrics.New()
	session := scraper.New(scraper.Options{
		Config:   cfg,
		Portal:   portal.NewSession(newDriver(cfg), portalConfig(cfg)),
		Fetcher:  download.NewManager(downloadConfig(cfg), log),
		Email:    email,
		Password: password,
		Output:   out,
		Metrics:  m,
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	if addr := cfg.Metrics.ListenAddress; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.InfoWithFields("Serving metrics", map[string]interface{}{"address": addr})
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var result *scraper.Result
	g.Go(func() error {
		defer finish()
		result = session.Run(runCtx)
		if dash != nil {
			dash.Done()
		}
		return nil
	})

	if dash != nil {
		if err := dash.Run(); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("dashboard: %w", err)
		}
		// the dashboard stays open after the run until the user quits
		stop()
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Run aborted")
		if result == nil {
			return err
		}
	}

	printSummary(term, result, cfg.Scrape.DryRun)
	if result.Summary.LoginFailed {
		return errs.New(errs.ErrorTypeLoginFailed, "login failed, no documents were downloaded")
	}
	saveJournal(cfg, email, result)
	return nil
}

func newDriver(cfg *config.Config) portal.Driver {
	if cfg.Scrape.Engine == config.EngineHTTP {
		return httpengine.New()
	}
	var opts []chrome.Option
	if chromePath != "" {
		opts = append(opts, chrome.WithExecPath(chromePath))
	}
	return chrome.New(opts...)
}

func portalConfig(cfg *config.Config) portal.Config {
	pc := portal.DefaultConfig()
	pc.LoginURL = cfg.Wellbin.LoginURL
	pc.ExplorerURL = cfg.Wellbin.ExplorerURL
	pc.Options.Headless = cfg.Scrape.Headless
	pc.Options.UserAgent = cfg.Wellbin.UserAgent
	pc.Options.ElementWait = cfg.Scrape.ElementWait
	pc.LoginSettle = cfg.Scrape.LoginSettle
	return pc
}

func downloadConfig(cfg *config.Config) download.Config {
	dc := download.DefaultConfig()
	dc.Timeout = cfg.Download.Timeout
	dc.ChunkSize = cfg.Download.ChunkSize
	dc.UserAgent = cfg.Wellbin.UserAgent
	return dc
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func printSummary(term *ui.Terminal, result *scraper.Result, dryRun bool) {
	s := result.Summary
	if s.LoginFailed {
		term.Error("Could not log in to Wellbin, check your email and password")
		return
	}

	term.Info("Summary")
	term.Field("Discovered", fmt.Sprintf("%d", s.Discovered))
	term.Field("Attempted", fmt.Sprintf("%d", s.Attempted))
	term.Field("Downloaded", fmt.Sprintf("%d (%s)", s.Succeeded, ui.FormatBytes(s.Bytes)))
	term.Field("Failed", fmt.Sprintf("%d", s.Failed))
	if s.Skipped > 0 {
		term.Field("Skipped", fmt.Sprintf("%d", s.Skipped))
	}
	if s.Fallbacks > 0 {
		term.Field("Fallback dates", fmt.Sprintf("%d", s.Fallbacks))
	}
	term.Field("Duration", ui.FormatDuration(s.Duration))

	for _, tc := range result.ByType() {
		term.Success(fmt.Sprintf("%s: %d files, %s in %s/", tc.Type.Description, tc.Count, ui.FormatBytes(tc.Bytes), tc.Type.Subdir))
	}
	if dryRun {
		for _, t := range result.Targets {
			term.Action(fmt.Sprintf("%s  %s", t.LocalPath, t.Description))
		}
	}
	for _, f := range result.Failures {
		term.Error(fmt.Sprintf("%s (%s): %v", f.StudyURL, f.Stage, f.Err))
	}
	if s.Cancelled {
		term.Warning("Run was interrupted before every study was processed")
	}
}
