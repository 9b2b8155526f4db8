package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/models"
)

// DefaultChunkSize is the buffer used when streaming a body to disk.
const DefaultChunkSize = 8192

const partSuffix = ".part"

// Manager lays out downloaded documents under one output directory,
// one subdirectory per study type.
type Manager struct {
	outputDir string
	written   map[string]bool
	mu        sync.RWMutex
}

// NewManager creates the output directory if needed.
func NewManager(outputDir string) (*Manager, error) {
	if err := EnsureDir(outputDir); err != nil {
		return nil, err
	}
	return &Manager{
		outputDir: outputDir,
		written:   make(map[string]bool),
	}, nil
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.NewDirectoryCreation(dir, err)
	}
	return nil
}

// DirFor returns the subdirectory for a study type tag.
func (m *Manager) DirFor(typeTag string) string {
	st, _ := models.LookupStudyType(typeTag)
	return filepath.Join(m.outputDir, st.Subdir)
}

// PathFor returns where filename is stored for a study type tag.
func (m *Manager) PathFor(typeTag, filename string) string {
	return filepath.Join(m.DirFor(typeTag), filename)
}

// Exists reports whether a completed file is already at path.
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ExistingDocuments lists the PDFs already present for a study type tag,
// including ones left by earlier runs.
func (m *Manager) ExistingDocuments(typeTag string) ([]string, error) {
	entries, err := os.ReadDir(m.DirFor(typeTag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// WriteStream copies r to dest through a temporary sibling file, reading in
// chunks of chunkSize bytes, and renames it into place once complete. On any
// failure the temporary file is removed and dest is left untouched.
func WriteStream(r io.Reader, dest string, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return 0, err
	}

	tempFile := dest + partSuffix
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, errs.NewFileWrite(dest, err)
	}

	n, err := copyChunks(out, r, chunkSize)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, errs.NewFileWrite(dest, err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, errs.NewFileWrite(dest, closeErr)
	}

	if err := os.Rename(tempFile, dest); err != nil {
		os.Remove(tempFile)
		return 0, errs.NewFileWrite(dest, err)
	}
	return n, nil
}

// Track records a file written during this run.
func (m *Manager) Track(path string) {
	m.mu.Lock()
	m.written[path] = true
	m.mu.Unlock()
}

// WrittenCount returns how many files this run has written.
func (m *Manager) WrittenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.written)
}

func (m *Manager) OutputDir() string {
	return m.outputDir
}

// copyChunks is io.CopyBuffer without the ReaderFrom shortcut of *os.File,
// so memory stays bounded by chunkSize whatever r is.
func copyChunks(w io.Writer, r io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		nr, rerr := r.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
