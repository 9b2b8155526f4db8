package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wellbin/pkg/auth"
	"wellbin/pkg/config"
)

var (
	initForce   bool
	initWithEnv bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage wellbin configuration.

Values are taken from, highest priority first:
  - Command line flags
  - WELLBIN_* environment variables (a .env file is read too)
  - The configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file and a .env template",
	Long: `Write the default configuration to .wellbin.yaml, or to the path given
with --config, and a .env template for your credentials.

The password is never written to the YAML file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. The password is masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it.

Missing credentials are reported as a warning since they can still be
given on the command line or saved with 'wellbin auth login'.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing files")
	initCmd.Flags().BoolVar(&initWithEnv, "env", true, "also write a .env template")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	term := newTerminal()

	path := configFile
	if path == "" {
		path = ".wellbin.yaml"
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}
	term.Success("Configuration file created: " + path)

	if initWithEnv {
		err := config.WriteEnvTemplate(".env", initForce)
		switch {
		case stderrors.Is(err, config.ErrEnvFileExists):
			term.Warning(".env already exists, left unchanged")
		case err != nil:
			return err
		default:
			term.Success(".env template created")
		}
	}

	term.Info("Next steps:")
	term.Field("1", "Put your portal email and password in .env or run 'wellbin auth login'")
	term.Field("2", "Run 'wellbin config validate' to check the configuration")
	term.Field("3", "Start downloading with 'wellbin scrape'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	display := *cfg
	if display.Wellbin.Password != "" {
		display.Wellbin.Password = "********"
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	term := newTerminal()

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		term.Error(err.Error())
		return err
	}

	if ok, msg := auth.ValidateCredentials(cfg.Wellbin.Email, cfg.Wellbin.Password); !ok {
		term.Warning(msg)
	}
	if cfg.Logging.File != "" {
		term.Field("Log file", cfg.Logging.File)
	}

	term.Success("Configuration is valid")
	term.Field("Portal", cfg.Wellbin.BaseURL)
	term.Field("Study types", cfg.Scrape.StudyTypes)
	term.Field("Engine", cfg.Scrape.Engine)
	term.Field("Output directory", cfg.Output.BaseDirectory)
	term.Field("Retries", fmt.Sprintf("%d", cfg.Download.RetryAttempts))
	term.Field("Log level", cfg.Logging.Level)
	return nil
}
