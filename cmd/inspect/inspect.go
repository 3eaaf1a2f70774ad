// Package inspect provides the inspect command, which prints the stored
// state and cross-checks file rows against the blob store.
package inspect

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinicdesk/patientkeeper/cmd/cliutil"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// Command creates and returns the inspect command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		asJSON bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe stored records and report integrity warnings",
		Long: `Inspect counts patients, observations and files, checks that every file row
still has its bytes in the blob store, and lists blobs that no row references.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Records.Describe(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				err = cliutil.PrintJSON(cmd.OutOrStdout(), snap)
			} else {
				err = printSnapshot(cmd, snap)
			}
			if err != nil {
				return err
			}

			if strict && len(snap.Warnings) > 0 {
				return fmt.Errorf("%d integrity warnings found", len(snap.Warnings))
			}
			return nil
		},
	}

	cliutil.AddJSONFlag(cmd, &asJSON)
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when integrity warnings are found")
	return cmd
}

func printSnapshot(cmd *cobra.Command, snap *records.Snapshot) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Generated:    %s\n", snap.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	_, _ = fmt.Fprintf(out, "Blob driver:  %s\n", snap.BlobDriver)
	_, _ = fmt.Fprintf(out, "Patients:     %d\n", snap.Patients)
	_, _ = fmt.Fprintf(out, "Observations: %d\n", snap.Observations)
	_, _ = fmt.Fprintf(out, "Files:        %d (%d missing)\n", snap.Files, snap.MissingCount())
	if snap.Disk != nil {
		_, _ = fmt.Fprintf(out, "Disk:         %s, %.1f%% used, %d bytes free\n",
			snap.Disk.Path, snap.Disk.UsedPct, snap.Disk.FreeBytes)
	}

	if len(snap.FileChecks) > 0 {
		_, _ = fmt.Fprintln(out)
		w := cliutil.NewTable(out)
		_, _ = fmt.Fprintln(w, "FILE\tPATIENT\tNAME\tEXISTS\tSIZE\tSTORED PATH")
		for _, c := range snap.FileChecks {
			exists := fmt.Sprintf("%t", c.Exists)
			if c.CheckError != "" {
				exists = "error: " + c.CheckError
			}
			_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n", c.FileID, c.PatientID, c.FileName, exists, c.Size, c.StoredPath)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to flush writer: %w", err)
		}
	}

	if len(snap.Warnings) > 0 {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, "Warnings:")
		for _, warn := range snap.Warnings {
			_, _ = fmt.Fprintf(out, "  %s\n", warn)
		}
	}
	return nil
}
