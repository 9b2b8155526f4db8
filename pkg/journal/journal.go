package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"wellbin/pkg/logger"
)

const (
	fileName      = "last-run.json"
	backupSuffix  = ".prev"
	formatVersion = 1
)

// Journal is the record of one run.
type Journal struct {
	Account    string    `json:"account"`
	OutputDir  string    `json:"output_dir"`
	DryRun     bool      `json:"dry_run"`
	Entries    []Entry   `json:"entries"`
	Failures   []Failure `json:"failures"`
	Discovered int       `json:"discovered"`
	Skipped    int       `json:"skipped"`
	Fallbacks  int       `json:"fallback_dates"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Version    int       `json:"version"`
}

// Entry is one saved or planned file.
type Entry struct {
	Path       string `json:"path"`
	StudyURL   string `json:"study_url"`
	StudyType  string `json:"study_type"`
	Date       string `json:"date"`
	DateSource string `json:"date_source"`
	Bytes      int64  `json:"bytes"`
}

// Failure is one study that was not saved.
type Failure struct {
	StudyURL string `json:"study_url"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// Bytes is the total size of all entries.
func (j *Journal) Bytes() int64 {
	var n int64
	for _, e := range j.Entries {
		n += e.Bytes
	}
	return n
}

// Manager reads and writes the journal file.
type Manager struct {
	path   string
	logger logger.Logger
}

// NewManager stores the journal in dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Manager{
		path:   filepath.Join(dir, fileName),
		logger: logger.GetLogger().WithField("component", "journal"),
	}, nil
}

// NewDefaultManager stores the journal in the user data directory.
func NewDefaultManager() (*Manager, error) {
	dir, err := dataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManager(dir)
}

func (m *Manager) Path() string { return m.path }

// Load returns nil, nil when no journal has been written yet.
func (m *Manager) Load() (*Journal, error) {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	var j Journal
	if err := json.NewDecoder(file).Decode(&j); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	if j.Version > formatVersion {
		return nil, fmt.Errorf("journal version %d is newer than supported version %d", j.Version, formatVersion)
	}
	return &j, nil
}

// Save backs up the current journal and atomically replaces it with j.
func (m *Manager) Save(j *Journal) error {
	if j.FinishedAt.IsZero() {
		j.FinishedAt = time.Now()
	}
	j.Version = formatVersion

	if err := m.backup(); err != nil {
		m.logger.WithError(err).Warn("Failed to back up previous journal")
	}

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary journal file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(j); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync journal file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close journal file: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace journal file: %w", err)
	}

	m.logger.DebugWithFields("Journal saved", map[string]interface{}{
		"path":     m.path,
		"entries":  len(j.Entries),
		"failures": len(j.Failures),
	})
	return nil
}

// Delete removes the journal and its backup.
func (m *Manager) Delete() error {
	for _, p := range []string{m.path, m.path + backupSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete journal: %w", err)
		}
	}
	return nil
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// LoadPrevious returns the journal of the run before the last one.
func (m *Manager) LoadPrevious() (*Journal, error) {
	prev := &Manager{path: m.path + backupSuffix, logger: m.logger}
	return prev.Load()
}

func (m *Manager) backup() error {
	if !m.Exists() {
		return nil
	}

	src, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(m.path + backupSuffix)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// dataDirectory returns the per-user data directory for the current OS.
func dataDirectory() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "wellbin"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "wellbin"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "wellbin"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "wellbin"), nil
	}
}
