package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wellbin/pkg/config"
	"wellbin/pkg/convert"
	"wellbin/pkg/logger"
	"wellbin/pkg/ui"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert downloaded PDFs to markdown",
	Long: `Convert the downloaded reports to markdown, one file per PDF, with a
section per page and the report headings kept as markdown headings.

With --preserve-structure (the default) every report folder is converted
into its own {folder}_markdown directory, e.g. lab_reports_markdown/.

Only text drawn with standard font encodings is recovered; scanned reports
come out empty.`,
	Example: `  # Convert everything in medical_data/
  wellbin convert

  # Lab reports only, into a different folder
  wellbin convert --file-type lab -o my_markdown

  # Convert a flat folder of PDFs
  wellbin convert -i ~/Downloads/reports --preserve-structure=false`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	addConvertFlags(convertCmd)
}

func addConvertFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input-dir", "i", "", "directory with the downloaded PDFs (default medical_data)")
	f.StringP("output-dir", "o", "", "directory for the markdown files (default markdown_reports)")
	f.StringP("file-type", "t", "", "reports to convert: lab, imaging or all")
	f.Bool("preserve-structure", true, "convert each report folder into its own {folder}_markdown directory")
}

func collectConvertFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	f := cmd.Flags()

	if f.Changed("input-dir") {
		flags["input-dir"], _ = f.GetString("input-dir")
	}
	if f.Changed("output-dir") {
		flags["markdown-dir"], _ = f.GetString("output-dir")
	}
	if f.Changed("file-type") {
		flags["file-type"], _ = f.GetString("file-type")
	}
	if f.Changed("preserve-structure") {
		flags["preserve-structure"], _ = f.GetBool("preserve-structure")
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	} else if verbose {
		flags["log-level"] = "debug"
	}
	return flags
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, collectConvertFlags(cmd))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := newTerminal()
	term.Info("Converting reports to markdown")
	term.Field("Input directory", cfg.Convert.InputDirectory)
	term.Field("Output directory", cfg.Convert.OutputDirectory)
	term.Field("File type", cfg.Convert.FileType)
	if cfg.Convert.PreserveStructure {
		term.Field("Layout", "one {folder}_markdown directory per report folder")
	}

	result, err := convert.New(convert.OptionsFromConfig(&cfg.Convert)).Run(ctx)
	if result != nil {
		printConvertSummary(term, result, cfg.Convert.OutputDirectory)
	}
	return err
}

func printConvertSummary(term *ui.Terminal, result *convert.Result, outDir string) {
	for _, folder := range result.Skipped {
		term.Action(fmt.Sprintf("Skipped %s/ (filtered out)", folder))
	}
	for _, o := range result.Converted {
		term.Success(fmt.Sprintf("%s (%d pages, %s)", o.Path, o.Pages, ui.FormatBytes(o.Bytes)))
	}
	for _, f := range result.Failed {
		term.Error(fmt.Sprintf("%s: %v", f.Source, f.Err))
	}

	term.Info("Summary")
	term.Field("Converted", fmt.Sprintf("%d (%s)", len(result.Converted), ui.FormatBytes(result.Bytes())))
	term.Field("Failed", fmt.Sprintf("%d", len(result.Failed)))
	if len(result.Converted) == 0 {
		term.Warning("No files were converted, check that the input directory contains PDF files")
		return
	}
	term.Field("Output directory", outDir)
}
