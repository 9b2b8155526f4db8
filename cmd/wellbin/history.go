package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wellbin/pkg/config"
	"wellbin/pkg/journal"
	"wellbin/pkg/logger"
	"wellbin/pkg/models"
	"wellbin/pkg/scraper"
	"wellbin/pkg/ui"
)

var (
	historyPrevious bool
	historyClear    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show what the last run downloaded",
	Long: `Show the files written by the last 'wellbin scrape' and the studies that
failed. The run before that is kept too and shown with --previous.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyPrevious, "previous", false, "show the run before the last one")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "forget recorded runs")
}

func runHistory(cmd *cobra.Command, args []string) error {
	mgr, err := journal.NewDefaultManager()
	if err != nil {
		return err
	}
	term := newTerminal()

	if historyClear {
		if err := mgr.Delete(); err != nil {
			return err
		}
		term.Success("Run history cleared")
		return nil
	}

	load := mgr.Load
	if historyPrevious {
		load = mgr.LoadPrevious
	}
	j, err := load()
	if err != nil {
		return err
	}
	if j == nil {
		term.Info("No runs recorded yet")
		return nil
	}
	printJournal(term, j)
	return nil
}

func printJournal(term *ui.Terminal, j *journal.Journal) {
	term.Info(fmt.Sprintf("Run of %s", j.FinishedAt.Local().Format("2006-01-02 15:04")))
	term.Field("Account", j.Account)
	term.Field("Output", j.OutputDir)
	term.Field("Discovered", fmt.Sprintf("%d", j.Discovered))
	term.Field("Files", fmt.Sprintf("%d (%s)", len(j.Entries), ui.FormatBytes(j.Bytes())))
	term.Field("Duration", ui.FormatDuration(j.FinishedAt.Sub(j.StartedAt)))
	if j.DryRun {
		term.Warning("Dry run, nothing was downloaded")
	}
	for _, e := range j.Entries {
		term.Success(fmt.Sprintf("%s (date from %s)", e.Path, e.DateSource))
	}
	for _, f := range j.Failures {
		term.Error(fmt.Sprintf("%s (%s): %s", f.StudyURL, f.Stage, f.Error))
	}
}

// buildJournal records what a run did. Dry runs list their planned paths.
func buildJournal(cfg *config.Config, email string, result *scraper.Result) *journal.Journal {
	finished := time.Now()
	j := &journal.Journal{
		Account:    logger.MaskEmail(email),
		OutputDir:  cfg.Output.BaseDirectory,
		DryRun:     cfg.Scrape.DryRun,
		Discovered: result.Summary.Discovered,
		Skipped:    result.Summary.Skipped,
		Fallbacks:  result.Summary.Fallbacks,
		Cancelled:  result.Summary.Cancelled,
		StartedAt:  finished.Add(-result.Summary.Duration),
		FinishedAt: finished,
	}

	if cfg.Scrape.DryRun {
		for _, t := range result.Targets {
			j.Entries = append(j.Entries, entryFor(t.LocalPath, t.Study, 0))
		}
	} else {
		for _, rec := range result.Records {
			j.Entries = append(j.Entries, entryFor(rec.LocalPath, rec.Study, rec.Bytes))
		}
	}
	for _, f := range result.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		j.Failures = append(j.Failures, journal.Failure{StudyURL: f.StudyURL, Stage: f.Stage, Error: msg})
	}
	return j
}

func entryFor(path string, study *models.StudyReference, bytes int64) journal.Entry {
	e := journal.Entry{Path: path, Bytes: bytes}
	if study != nil {
		e.StudyURL = study.URL
		e.StudyType = study.TypeTag
		e.Date = study.ResolvedDate
		e.DateSource = study.DateSource
	}
	return e
}

// saveJournal is best effort; a run is not failed over its journal.
func saveJournal(cfg *config.Config, email string, result *scraper.Result) {
	log := logger.GetLogger()
	mgr, err := journal.NewDefaultManager()
	if err != nil {
		log.WithError(err).Warn("Run history unavailable")
		return
	}
	if err := mgr.Save(buildJournal(cfg, email, result)); err != nil {
		log.WithError(err).Warn("Failed to record run history")
	}
}
