// Package observation provides the observation command for recording vital signs.
package observation

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinicdesk/patientkeeper/cmd/cliutil"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// Command creates and returns the observation command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observation",
		Short: "Record and list patient observations",
	}

	cmd.AddCommand(addCommand(settings), listCommand(settings))
	return cmd
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var (
		in          records.NewObservation
		glucose     float64
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "add <patient-id>",
		Short: "Record an observation for a patient",
		Long: `Records blood pressure, glucose, temperature and notes for a patient.
A glucose of 0 or a temperature of 37.0 is stored as "not entered".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := cliutil.ParseID("patient ID", args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("glucose") {
				in.GlucoseLevel = &glucose
			}
			if cmd.Flags().Changed("temperature") {
				in.Temperature = &temperature
			}

			a, err := cliutil.OpenApp(cmd, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.Records.AddObservation(cmd.Context(), patientID, in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "observation %d recorded\n", id)
			return err
		},
	}

	cmd.Flags().StringVar(&in.BloodPressure, "bp", "", "Blood pressure, e.g. 120/80")
	cmd.Flags().Float64Var(&glucose, "glucose", 0, "Glucose level in mg/dL")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Body temperature in °C")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Free-text notes")

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <patient-id>",
		Short: "List a patient's observations, newest first",
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

			list, err := a.Records.ListObservations(cmd.Context(), patientID)
			if err != nil {
				return err
			}
			if asJSON {
				return cliutil.PrintJSON(cmd.OutOrStdout(), list)
			}

			w := cliutil.NewTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(w, "ID\tDATE\tBP\tGLUCOSE\tTEMP\tNOTES")
			for _, o := range list {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.RecordDate.Format("2006-01-02 15:04"), o.BloodPressure,
					reading(o.GlucoseLevel), reading(o.Temperature), o.Notes)
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

// reading formats an optional measurement; absent readings print as "-".
func reading(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
