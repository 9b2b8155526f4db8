package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteSetupGuide prints how to provide portal credentials.
func WriteSetupGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "WELLBIN CREDENTIALS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The scraper logs in to https://wellbin.co with your portal account.")
	fmt.Fprintln(w, "Credentials are looked up in this order:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. --email / --password flags")
	fmt.Fprintf(w, "  2. %s / %s environment variables (a .env file is read too)\n", EnvEmail, EnvPassword)
	fmt.Fprintln(w, "  3. accounts saved with 'wellbin auth login'")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Saved accounts go to the system keychain when one is available and")
	fmt.Fprintln(w, "otherwise to an encrypted file in your user config directory.")
	fmt.Fprintf(w, "Set %s to choose the file passphrase yourself.\n", EnvPassphrase)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'wellbin config init' to create a .env template.")
	fmt.Fprintln(w, rule)
}
