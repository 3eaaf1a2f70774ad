// Package version provides the version command
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinicdesk/patientkeeper/cmd/cliutil"
	"github.com/clinicdesk/patientkeeper/internal/buildinfo"
)

// Command creates and returns the version command
func Command() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get()
			if asJSON {
				return cliutil.PrintJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info)
			return err
		},
	}

	cliutil.AddJSONFlag(cmd, &asJSON)
	return cmd
}
