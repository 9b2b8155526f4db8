package config

import (
	"fmt"
	"os"
)

const envTemplate = `# Wellbin Medical Data Downloader Configuration
# Edit the values below to match your setup

# =============================================================================
# AUTHENTICATION - Required for Wellbin login
# =============================================================================
# Your Wellbin account email address
WELLBIN_EMAIL=your-email@example.com

# Your Wellbin account password
WELLBIN_PASSWORD=your-password

# =============================================================================
# SCRAPER CONFIGURATION - Optional overrides
# =============================================================================

# Output directory for downloaded medical files
# Default: medical_data
WELLBIN_OUTPUT_DIR=medical_data

# Study download limit (0 = no limit, download all studies)
# Default: 0
WELLBIN_STUDY_LIMIT=0

# Study types to download
# Options: FhirStudy (lab reports), DicomStudy (imaging), all (both types)
# Combine types with a comma: FhirStudy,DicomStudy
# Default: FhirStudy
WELLBIN_STUDY_TYPES=FhirStudy

# Run the browser without a visible window
# Options: true, false
# Default: true
WELLBIN_HEADLESS=true

# Automation engine
# Options: chrome (headless Chrome), http (plain HTTP form login)
# Default: chrome
WELLBIN_ENGINE=chrome

# Extra attempts for downloads that time out or lose the connection
# Default: 0
WELLBIN_RETRY_ATTEMPTS=0

# Prometheus metrics listen address, e.g. :9090 (empty = disabled)
WELLBIN_METRICS_ADDR=

# =============================================================================
# CONVERTER CONFIGURATION - Optional overrides
# =============================================================================

# Directory holding the downloaded PDFs
# Default: medical_data
WELLBIN_INPUT_DIR=medical_data

# Directory for the markdown files
# Default: markdown_reports
WELLBIN_MARKDOWN_DIR=markdown_reports

# Reports to convert
# Options: lab, imaging, all
# Default: all
WELLBIN_FILE_TYPE=all

# Convert each report folder into its own {folder}_markdown directory
# Default: true
WELLBIN_PRESERVE_STRUCTURE=true

# Log level: debug, info, warn, error
WELLBIN_LOG_LEVEL=info
`

// ErrEnvFileExists is returned by WriteEnvTemplate when path exists and
// overwrite is false.
var ErrEnvFileExists = fmt.Errorf(".env file already exists")

// WriteEnvTemplate writes a commented .env file with placeholder credentials.
func WriteEnvTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return ErrEnvFileExists
		}
	}
	if err := os.WriteFile(path, []byte(envTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
