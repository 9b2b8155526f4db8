// Package journal keeps a record of the most recent scrape run.
//
// The journal lists every file written by the run and every study that
// failed, so a user can see what the last run did without scanning the
// output directory. It does not make runs resumable: every run downloads
// all studies again and replaces the journal when it finishes.
//
// Journals are stored in platform-specific data directories:
//   - Linux: $XDG_DATA_HOME/wellbin or ~/.local/share/wellbin
//   - macOS: ~/Library/Application Support/wellbin
//   - Windows: %APPDATA%/wellbin
//
// Files are replaced atomically and the previous journal is kept as a
// backup next to the current one.
package journal
