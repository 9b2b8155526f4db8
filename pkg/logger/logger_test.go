package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellbin/pkg/config"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNew(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "wellbin.log")

	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: logFile}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}

	_, err := os.Stat(logFile)
	assert.NoError(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		level, err := parseLogLevel(tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
		}
		if level != tt.expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.level, level, tt.expected)
		}
	}
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	logger.WithField("study_type", "FhirStudy").
		WithFields(map[string]interface{}{"bytes": int64(2048), "took": 1500 * time.Millisecond}).
		WithError(errors.New("boom")).
		Warn("download slow")

	entry := lastLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "download slow", entry["message"])
	assert.Equal(t, "FhirStudy", entry["study_type"])
	assert.Equal(t, float64(2048), entry["bytes"])
	assert.Equal(t, "boom", entry["error"])

	logger.InfoWithFields("saved", map[string]interface{}{"pages": 3, "validated": true})
	entry = lastLine(t, &buf)
	assert.Equal(t, float64(3), entry["pages"])
	assert.Equal(t, true, entry["validated"])
	_, leaked := entry["study_type"]
	assert.False(t, leaked, "fields from a derived logger must not leak into the parent")
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestGlobalLoggerHelpers(t *testing.T) {
	previous := GetLogger()
	defer SetLogger(previous)

	tl := NewTestLogger()
	SetLogger(tl)

	LogDownload("https://wellbin.co/study/1?type=FhirStudy", "FhirStudy", "20240604", true, nil)
	LogDownload("https://wellbin.co/study/2?type=FhirStudy", "FhirStudy", "20240101", false, errors.New("HTTP 404"))
	LogDownload("https://wellbin.co/study/3?type=DicomStudy", "DicomStudy", "20240101", false, nil)
	LogComponentStart("portal", map[string]interface{}{"engine": "http"})
	LogComponentStop("portal", "run finished")

	assert.True(t, tl.HasMessage("Download completed"))
	assert.True(t, tl.HasMessage("Download skipped"))
	assert.Equal(t, 2, tl.CountMessages("Component started")+tl.CountMessages("Component stopped"))

	errs := tl.AtLevel(zerolog.ErrorLevel)
	require.Len(t, errs, 1)
	assert.Equal(t, "Download failed", errs[0].Message)
	assert.EqualError(t, errs[0].Err, "HTTP 404")
}

func TestTestLoggerDerivedFields(t *testing.T) {
	tl := NewTestLogger()
	study := tl.WithField("component", "scraper").WithFields(map[string]interface{}{"study_url": "https://wellbin.co/study/9"})
	study.WithError(errors.New("gone")).ErrorWithFields("Study failed", map[string]interface{}{"stage": "download"})
	tl.Info("Run finished")

	failed := tl.Find("Study failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "scraper", failed[0].Fields["component"])
	assert.Equal(t, "https://wellbin.co/study/9", failed[0].Fields["study_url"])
	assert.Equal(t, "download", failed[0].Fields["stage"])
	assert.EqualError(t, failed[0].Err, "gone")

	finished := tl.Find("Run finished")
	require.Len(t, finished, 1)
	assert.Empty(t, finished[0].Fields, "derived fields must not leak into the parent")
	assert.Nil(t, finished[0].Err)
	assert.Len(t, tl.Entries(), 2)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@example.org", MaskEmail("ana@example.org"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@example.org"))
}

func TestNopLogger(t *testing.T) {
	n := NewNopLogger()
	n.WithField("k", "v").WithError(errors.New("x")).Error("ignored")
	assert.Nil(t, n.GetZerolog())
}
