// Package config provides the config command for creating and maintaining
// the configuration file.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/clinicdesk/patientkeeper/internal/conf"
)

// SkipLoadAnnotation marks commands that must run without loading settings.
const SkipLoadAnnotation = "skip-config-load"

const redacted = "[REDACTED]"

// Command creates and returns the config command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect the configuration file",
	}

	cmd.AddCommand(initCommand(), showCommand(settings), setPasswordCommand(settings))
	return cmd
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a default configuration file with a fresh session secret",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{SkipLoadAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initPath(args)
			if err != nil {
				return err
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", path)
			return err
		},
	}
}

func initPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	paths, err := conf.GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(paths[0], "config.yaml"), nil
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if used := viper.ConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(out, "# %s\n", used)
			}
			data, err := yaml.Marshal(redact(settings))
			if err != nil {
				return fmt.Errorf("failed to marshal settings: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

// redact returns a copy of settings with credentials masked.
func redact(settings *conf.Settings) conf.Settings {
	c := *settings
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Security.Password)
	mask(&c.Security.PasswordHash)
	mask(&c.Security.SessionSecret)
	mask(&c.Database.MySQL.Password)
	mask(&c.BlobStore.S3.SecretAccessKey)
	return c
}

func setPasswordCommand(settings *conf.Settings) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Store a bcrypt hash of the login password in the configuration file",
		Long: `Set-password hashes the given password, stores the hash as security.password_hash
and removes any plain-text security.password from the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			path := viper.ConfigFileUsed()
			if path == "" {
				return fmt.Errorf("no configuration file in use")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			settings.Security.PasswordHash = string(hash)
			settings.Security.Password = ""

			if err := conf.SaveYAMLConfig(path, settings); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "password hash saved to %s\n", path)
			return err
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New login password (required)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
