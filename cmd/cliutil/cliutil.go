// Package cliutil holds helpers shared by the subcommands.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clinicdesk/patientkeeper/internal/app"
	"github.com/clinicdesk/patientkeeper/internal/conf"
)

// OpenApp opens the application for a command. Console logs go to the
// command's stderr so stdout carries only command output.
func OpenApp(cmd *cobra.Command, settings *conf.Settings) (*app.App, error) {
	return app.Open(cmd.Context(), settings, app.Options{
		Console:        cmd.ErrOrStderr(),
		DisableMetrics: true,
	})
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// NewTable returns a tab-aligned writer. Callers must Flush it.
func NewTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 4, 8, 2, ' ', 0)
}

// ParseID parses a positive integer argument.
func ParseID(name, raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return uint(id), nil
}

// AddJSONFlag registers the shared --json output flag.
func AddJSONFlag(cmd *cobra.Command, target *bool) {
	cmd.Flags().BoolVar(target, "json", false, "Print output as JSON")
}
