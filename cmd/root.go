// Package cmd assembles the patientkeeper command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/clinicdesk/patientkeeper/cmd/config"
	"github.com/clinicdesk/patientkeeper/cmd/file"
	"github.com/clinicdesk/patientkeeper/cmd/inspect"
	"github.com/clinicdesk/patientkeeper/cmd/observation"
	"github.com/clinicdesk/patientkeeper/cmd/patient"
	"github.com/clinicdesk/patientkeeper/cmd/serve"
	"github.com/clinicdesk/patientkeeper/cmd/version"
	"github.com/clinicdesk/patientkeeper/internal/conf"
)

// RootCommand creates and returns the root command. Settings are loaded
// once flags are parsed and shared with every subcommand.
func RootCommand() *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "patientkeeper",
		Short:         "Patient records for a small clinic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	rootCmd.AddCommand(
		patient.Command(settings),
		observation.Command(settings),
		file.Command(settings),
		inspect.Command(settings),
		serve.Command(settings),
		configcmd.Command(settings),
	)
	versionCmd := version.Command()
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd || skipLoad(cmd) {
			return nil
		}
		return initialize(configFile, settings)
	}

	return rootCmd
}

// skipLoad reports whether cmd runs without settings: help, shell
// completion and commands annotated by the config package.
func skipLoad(cmd *cobra.Command) bool {
	if cmd.Annotations[configcmd.SkipLoadAnnotation] == "true" {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// initialize loads configuration into settings before any subcommand runs
func initialize(configFile string, settings *conf.Settings) error {
	conf.SetConfigFile(configFile)

	loaded, err := conf.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	*settings = *loaded
	return nil
}
