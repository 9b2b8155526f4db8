// Package scraper runs one download session against the Wellbin portal.
//
// A Session logs in, lists the studies on the explorer page and then handles
// each study to completion before moving to the next:
//
//   - the study page is opened and its report date resolved through the
//     dates fallback chain (page field, listing card, URL identifier, and
//     finally the 20240101 sentinel)
//   - the download link on the page is located
//   - a filename of the form {date}-{type}-{n}.pdf is allocated
//   - the PDF is streamed into the per-type subdirectory of the output
//     directory
//
// Usage:
//
//	sess := scraper.New(scraper.Options{
//	    Config:   cfg,
//	    Portal:   portal.NewSession(chrome.New(), portalCfg),
//	    Fetcher:  download.NewManager(download.DefaultConfig(), log),
//	    Email:    email,
//	    Password: password,
//	})
//	result := sess.Run(ctx)
//	fmt.Println(result.Summary.Succeeded, "documents saved")
//
// Run never returns an error. A failed login or an empty explorer page ends
// the run early with an empty result, and a failure on one study is logged
// with its URL and counted without stopping the others. The portal and the
// downloader are closed on every exit path.
//
// Filename counters belong to a single Run. Running again over the same
// remote data allocates the same names and overwrites the earlier files.
package scraper
