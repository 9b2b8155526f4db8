package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"wellbin/pkg/logger"
	"wellbin/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "wellbin",
	Short: "Download your medical documents from the Wellbin portal",
	Long: `wellbin logs in to the Wellbin patient portal, finds your studies and
saves each report as a dated PDF.

Lab reports go to lab_reports/ and imaging reports to imaging_reports/
under the output directory. Files are named YYYYMMDD-<type>-<n>.pdf after
the date of the study. 'wellbin convert' turns them into markdown.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version
		if cmd.Name() == "scrape" && !quiet && !tuiMode {
			term := newTerminal()
			term.PrintBanner()
		}
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.wellbin.yaml or $HOME/.wellbin.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except warnings and errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show debug output")

	rootCmd.SetVersionTemplate(`wellbin {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func newTerminal() *ui.Terminal {
	term := ui.NewTerminal(os.Stdout)
	term.Quiet = quiet
	term.Verbose = verbose
	term.NoColor = noColor || os.Getenv("NO_COLOR") != ""
	return term
}
