// Package file provides the file command for patient attachments.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clinicdesk/patientkeeper/cmd/cliutil"
	"github.com/clinicdesk/patientkeeper/internal/conf"
)

// Command creates and returns the file command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Store, list and read patient attachments",
	}

	cmd.AddCommand(saveCommand(settings), listCommand(settings), readCommand(settings))
	return cmd
}

func saveCommand(settings *conf.Settings) *cobra.Command {
	var (
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "save <patient-id> <path>",
		Short: "Store a local file as an attachment of a patient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := cliutil.ParseID("patient ID", args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			if name == "" {
				name = filepath.Base(args[1])
			}

			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.Records.SaveFile(cmd.Context(), patientID, data, name, description)
			if err != nil {
				return err
			}
			for _, w := range saved.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "file %d stored as %s (%d bytes)\n", saved.FileID, saved.StoredPath, saved.Size)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Original file name to record (default: base name of path)")
	cmd.Flags().StringVar(&description, "description", "", "Description of the attachment")
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <patient-id>",
		Short: "List a patient's attachments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := cliutil.ParseID("patient ID", args[0])
			if err != nil {
				return err
			}

			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Records.ListFiles(cmd.Context(), patientID)
			if err != nil {
				return err
			}
			if asJSON {
				return cliutil.PrintJSON(cmd.OutOrStdout(), list)
			}

			w := cliutil.NewTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(w, "ID\tUPLOADED\tNAME\tKIND\tSIZE\tEXISTS\tSTORED PATH")
			for _, f := range list {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\t%s\n",
					f.ID, f.UploadDate.Format("2006-01-02 15:04:05"), f.FileName, f.Kind, f.Size, f.Exists, f.StoredPath)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush writer: %w", err)
			}
			return nil
		},
	}

	cliutil.AddJSONFlag(cmd, &asJSON)
	return cmd
}

func readCommand(settings *conf.Settings) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "read <stored-path>",
		Short: "Write the bytes of a stored attachment to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.Records.ReadFileBytes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this path instead of stdout")
	return cmd
}
