// Package serve provides the serve command, which runs the JSON API.
package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clinicdesk/patientkeeper/internal/api"
	"github.com/clinicdesk/patientkeeper/internal/app"
	"github.com/clinicdesk/patientkeeper/internal/conf"
)

// Command creates and returns the serve command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the patient-record HTTP API",
		Long:  `Serve starts the JSON API and runs until interrupted with SIGINT or SIGTERM.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, settings)
		},
	}

	cmd.Flags().String("host", "", "Listen address (overrides webserver.host)")
	cmd.Flags().String("port", "", "Listen port (overrides webserver.port)")
	_ = viper.BindPFlag("webserver.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("webserver.port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(cmd *cobra.Command, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, settings, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.New(settings, a.Records,
		api.WithLogger(a.Logger("api")),
		api.WithMetrics(a.Metrics))
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	return server.Run(ctx)
}
