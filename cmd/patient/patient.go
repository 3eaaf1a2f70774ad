// Package patient provides the patient command for registering and looking up patients.
package patient

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinicdesk/patientkeeper/cmd/cliutil"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// Command creates and returns the patient command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Register and look up patients",
	}

	cmd.AddCommand(addCommand(settings), getCommand(settings), listCommand(settings))
	return cmd
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var in records.NewPatient

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.Records.AddPatient(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "patient %d registered\n", id)
			return err
		},
	}

	cmd.Flags().StringVar(&in.NationalID, "national-id", "", "National identity number (required)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&in.DateOfBirth, "dob", "", "Date of birth as YYYY-MM-DD")
	cmd.Flags().StringVar(&in.Gender, "gender", "", "male, female or other")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&in.Address, "address", "", "Postal address")
	_ = cmd.MarkFlagRequired("national-id")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func getCommand(settings *conf.Settings) *cobra.Command {
	var byID bool

	cmd := &cobra.Command{
		Use:   "get <national-id>",
		Short: "Show one patient by national ID, or by record ID with --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			var p *records.Patient
			if byID {
				id, perr := cliutil.ParseID("patient ID", args[0])
				if perr != nil {
					return perr
				}
				p, err = a.Records.GetPatient(cmd.Context(), id)
			} else {
				p, err = a.Records.GetPatientByNationalID(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return cliutil.PrintJSON(cmd.OutOrStdout(), p)
		},
	}

	cmd.Flags().BoolVar(&byID, "id", false, "Treat the argument as a record ID")
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all patients sorted by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Records.ListPatients(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return cliutil.PrintJSON(cmd.OutOrStdout(), list)
			}

			w := cliutil.NewTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(w, "ID\tNATIONAL ID\tNAME\tDOB\tGENDER\tPHONE")
			for _, p := range list {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.NationalID, p.Name, p.DateOfBirth, p.Gender, p.Phone)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush writer: %w", err)
			}

			total, err := a.Records.CountPatients(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "\nTotal patients: %d\n", total)
			return err
		},
	}

	cliutil.AddJSONFlag(cmd, &asJSON)
	return cmd
}
