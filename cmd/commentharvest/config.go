package main

import (
	"errors"
	"fmt"
	"os"

	"commentharvest/pkg/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage commentharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (COMMENTHARVEST_*)
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write the default configuration to .commentharvest.yaml, or to the path
given with --config. Session values are never written; supply them through
the environment (COMMENTHARVEST_IG_*) or keep them in the system keychain
under the service "commentharvest" and set instagram.keyring_account.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Session values and
the Redis password are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".commentharvest.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	fmt.Println("Configuration file created:", path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the file (platform, input_file, sink)")
	fmt.Println("2. For Instagram, export COMMENTHARVEST_IG_* or set instagram.keyring_account")
	fmt.Println("3. Run 'commentharvest config validate', then 'commentharvest run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := *cfg
	display.Instagram.SessionID = masked(display.Instagram.SessionID)
	display.Instagram.UserID = masked(display.Instagram.UserID)
	display.Instagram.CSRFToken = masked(display.Instagram.CSRFToken)
	display.Instagram.ClientID = masked(display.Instagram.ClientID)
	display.Dedup.RedisPassword = masked(display.Dedup.RedisPassword)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, map[string]interface{}{"log-level": logLevel})
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Harvest.InputFile == "" {
		warnings = append(warnings, "no input file configured; pass --input to run")
	} else if _, err := os.Stat(cfg.Harvest.InputFile); err != nil {
		warnings = append(warnings, fmt.Sprintf("input file not readable: %v", err))
	}
	if cfg.Harvest.Platform == "instagram" {
		session := sessionFromConfig(cfg)
		if session.IsEmpty() && cfg.Instagram.KeyringAccount == "" {
			warnings = append(warnings, "no Instagram session configured (environment or keyring_account)")
		}
	}
	if cfg.Sink.Backend == "sqlite" && cfg.Sink.DSN == "" {
		if err := os.MkdirAll(cfg.Sink.Directory, 0755); err != nil {
			return errors.Join(errors.New("output directory is not writable"), err)
		}
	}

	for _, w := range warnings {
		fmt.Println("warning:", w)
	}
	fmt.Println("Configuration is valid")
	fmt.Printf("  Platform:  %s\n", cfg.Harvest.Platform)
	fmt.Printf("  Workers:   %d\n", cfg.Harvest.Workers)
	fmt.Printf("  Sink:      %s (%s)\n", cfg.Sink.Backend, cfg.Sink.Directory)
	fmt.Printf("  Dedup:     %s\n", cfg.Dedup.Backend)
	fmt.Printf("  Pacing:    %s min interval, %d requests/minute\n", cfg.RateLimit.MinInterval, cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Attempts:  %d\n", cfg.Retry.MaxAttempts)
	return nil
}

func masked(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}
