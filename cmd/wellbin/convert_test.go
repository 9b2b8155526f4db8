package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellbin/pkg/config"
	"wellbin/pkg/convert"
	"wellbin/pkg/ui"
)

func parseConvertFlags(t *testing.T, args ...string) map[string]interface{} {
	t.Helper()
	cmd := &cobra.Command{Use: "convert"}
	addConvertFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return collectConvertFlags(cmd)
}

func TestCollectConvertFlags(t *testing.T) {
	assert.Empty(t, parseConvertFlags(t))

	flags := parseConvertFlags(t, "-i", "pdfs", "-o", "md", "-t", "lab", "--preserve-structure=false")
	assert.Equal(t, "pdfs", flags["input-dir"])
	assert.Equal(t, "md", flags["markdown-dir"])
	assert.Equal(t, "lab", flags["file-type"])
	assert.Equal(t, false, flags["preserve-structure"])

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, config.ConvertConfig{InputDirectory: "pdfs", OutputDirectory: "md", FileType: config.FileTypeLab}, cfg.Convert)
	assert.Equal(t, "medical_data", cfg.Output.BaseDirectory, "-o of convert must not move the download folder")
}

func TestPrintConvertSummary(t *testing.T) {
	var buf bytes.Buffer
	term := ui.NewTerminal(&buf)
	term.NoColor = true

	printConvertSummary(term, &convert.Result{
		Converted: []convert.Output{{Source: "medical_data/lab_reports/20240604-lab-0.pdf", Path: "md/lab_reports_markdown/20240604-lab-0.md", Pages: 2, Bytes: 1024}},
		Failed:    []convert.Failure{{Source: "medical_data/lab_reports/bad.pdf", Err: errors.New("corrupted")}},
		Skipped:   []string{"imaging_reports"},
	}, "md")

	out := buf.String()
	assert.Contains(t, out, "Skipped imaging_reports/")
	assert.Contains(t, out, "md/lab_reports_markdown/20240604-lab-0.md (2 pages")
	assert.Contains(t, out, "medical_data/lab_reports/bad.pdf: corrupted")
	assert.Regexp(t, `Converted:\s+1 `, out)
	assert.Regexp(t, `Failed:\s+1\n`, out)
	assert.NotContains(t, out, "No files were converted")
}

func TestPrintConvertSummaryNothingConverted(t *testing.T) {
	var buf bytes.Buffer
	term := ui.NewTerminal(&buf)
	term.NoColor = true

	printConvertSummary(term, &convert.Result{}, "md")
	assert.Contains(t, buf.String(), "No files were converted")
}
