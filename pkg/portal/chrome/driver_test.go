package chrome

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellbin/internal/portaltest"
	"wellbin/pkg/logger"
	"wellbin/pkg/portal"
)

func TestAllocatorOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)

	opts := AllocatorOptions(portal.Options{Headless: true, UserAgent: "ua"}, "")
	assert.Len(t, opts, base+6)

	opts = AllocatorOptions(portal.Options{Headless: false}, "/usr/bin/chromium")
	assert.Len(t, opts, base+6)
}

func TestNotStarted(t *testing.T) {
	d := New()
	ctx := context.Background()

	assert.ErrorIs(t, d.Navigate(ctx, "about:blank"), ErrNotStarted)
	_, err := d.HTML(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = d.Exists(ctx, "body")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, d.Close())
}

// TestChromeLogin drives a real browser and only runs when
// WELLBIN_CHROME_TESTS is set.
func TestChromeLogin(t *testing.T) {
	if os.Getenv("WELLBIN_CHROME_TESTS") == "" {
		t.Skip("set WELLBIN_CHROME_TESTS=1 to run against a local Chrome")
	}

	study := portaltest.Study{ID: "lab-1", Type: "FhirStudy", ReportDate: "2024-06-04"}
	srv := portaltest.New("pat@example.org", "s3cret", study)
	defer srv.Close()

	cfg := portal.DefaultConfig()
	cfg.LoginURL = srv.LoginURL()
	cfg.ExplorerURL = srv.ExplorerURL()
	cfg.LoginSettle = 500 * time.Millisecond
	cfg.Options.ElementWait = 2 * time.Second
	cfg.Logger = logger.NewTestLogger()

	s := portal.NewSession(New(WithExecPath(os.Getenv("WELLBIN_CHROME_PATH"))), cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, s.Initialize(ctx, true))
	require.NoError(t, s.Login(ctx, "pat@example.org", "s3cret"))

	sp, err := s.OpenStudy(ctx, srv.StudyURL(study))
	require.NoError(t, err)
	assert.Equal(t, "2024-06-04", sp.ReportDate)
	require.NotNil(t, sp.DownloadLink)
}
