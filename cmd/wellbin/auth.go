package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wellbin/pkg/auth"
)

var logoutAll bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage saved portal credentials",
	Long: `Save, list and remove Wellbin portal accounts.

Credentials are stored in:
  - the system keychain (when available)
  - an encrypted file in your user config directory

Never share your credentials or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Save portal credentials",
	Long: `Save the email and password you use on https://wellbin.co.

The password is read without echo. Saved credentials are used by
'wellbin scrape' when no --email/--password or WELLBIN_* variables are set.`,
	Example: `  # Interactive login
  wellbin auth login

  # Login with email
  wellbin auth login patient@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [email]",
	Short: "Remove saved credentials",
	Long: `Remove saved credentials.

Without an email you are shown the saved accounts to choose from.`,
	Example: `  # Interactive logout
  wellbin auth logout

  # Remove every saved account
  wellbin auth logout --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain where credentials are read from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.WriteSetupGuide(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every saved account")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	out := newTerminal()
	reader := bufio.NewReader(os.Stdin)

	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		email, err = prompt(reader, "Email: ")
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}

	if existing, _ := manager.Retrieve(email); existing != nil {
		answer, _ := prompt(reader, fmt.Sprintf("Account '%s' already exists. Update it? (y/N): ", email))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	fmt.Print("Password: ")
	password, err := readPassword(reader)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if ok, msg := auth.ValidateCredentials(email, password); !ok {
		return fmt.Errorf("%s", msg)
	}

	if err := manager.Store(&auth.Account{Email: email, Password: password}); err != nil {
		return err
	}

	out.Success("Account saved: " + email)
	if auth.IsKeyringAvailable() {
		out.Field("Stored in", "system keychain")
	} else {
		out.Field("Stored in", "encrypted file")
	}
	out.Info("Run 'wellbin scrape' to download your documents")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	out := newTerminal()
	reader := bufio.NewReader(os.Stdin)

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove accounts: %w", err)
		}
		out.Success("All accounts removed")
		return nil
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		out.Success("Account removed: " + args[0])
		return nil
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		out.Warning("No saved accounts found")
		return nil
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Email)
	}
	fmt.Printf("  0. Cancel\n\n")

	input, _ := prompt(reader, "Choice: ")
	var choice int
	fmt.Sscanf(input, "%d", &choice)
	if choice < 1 || choice > len(accounts) {
		return nil
	}

	email := accounts[choice-1].Email
	if err := manager.Delete(email); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	out.Success("Account removed: " + email)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	writeAccounts(cmd.OutOrStdout(), accounts)
	return nil
}

func writeAccounts(w io.Writer, accounts []*auth.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No saved accounts. Run 'wellbin auth login' to add one.")
		return
	}
	for _, account := range accounts {
		clean := auth.SanitizeAccount(account)
		fmt.Fprintf(w, "  %-32s saved %s\n", clean.Email, clean.LastModified.Format("2006-01-02 15:04"))
	}
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	input, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword reads without echo from a terminal and falls back to a plain
// line read when stdin is piped.
func readPassword(reader *bufio.Reader) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	b, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
