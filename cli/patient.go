package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/patients"
	"github.com/warp/clinic-core/record"
	"github.com/warp/clinic-core/validate"
)

// PatientOptions holds flags for the patient commands.
type PatientOptions struct {
	*RootOptions
	Reg   patients.Registration
	Where []string
}

func NewPatientCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PatientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Register and look up patients",
	}

	register := &cobra.Command{
		Use:   "register",
		Short: "Register a new patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatientRegister(opts, cmd)
		},
	}
	f := register.Flags()
	f.StringVar(&opts.Reg.FirstName, "first", "", "first name (required)")
	f.StringVar(&opts.Reg.LastName, "last", "", "last name (required)")
	f.StringVar(&opts.Reg.DateOfBirth, "dob", "", "date of birth, YYYY-MM-DD (required)")
	f.StringVar(&opts.Reg.Gender, "gender", "", "Male, Female or Other (required)")
	f.StringVar(&opts.Reg.Phone, "phone", "", "phone number (required)")
	f.StringVar(&opts.Reg.Email, "email", "", "email address")
	f.StringVar(&opts.Reg.Address, "address", "", "postal address")
	f.StringVar(&opts.Reg.BloodGroup, "blood-group", "", "blood group, e.g. O+")
	f.StringVar(&opts.Reg.EmergencyContact, "emergency-contact", "", "emergency contact")

	search := &cobra.Command{
		Use:   "search [term]",
		Short: "Search active patients by name, id or phone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			return runPatientSearch(opts, cmd, term)
		},
	}
	search.Flags().StringArrayVar(&opts.Where, "where", nil, "field=value filter (repeatable)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one patient, active or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatientShow(opts, cmd, args[0])
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Mark a patient inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatientDeactivate(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(register, search, show, deactivate)
	return cmd
}

func (o *PatientOptions) manager(st record.Store) *patients.Manager {
	return patients.NewManager(st, patients.Config{Now: o.now, Logger: o.logger})
}

func runPatientRegister(opts *PatientOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := opts.manager(st).Register(cmd.Context(), opts.Reg)
	if err != nil {
		return patientExit("failed to register patient", err)
	}
	return writeJSON(cmd, p.Record())
}

func runPatientSearch(opts *PatientOptions, cmd *cobra.Command, term string) error {
	filters, err := parseWhere(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	found, err := opts.manager(st).Search(cmd.Context(), term, filters)
	if err != nil {
		return patientExit("failed to search patients", err)
	}
	out := make([]record.Record, 0, len(found))
	for _, p := range found {
		out = append(out, p.Record())
	}
	return writeJSON(cmd, out)
}

func runPatientShow(opts *PatientOptions, cmd *cobra.Command, id string) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p, ok, err := opts.manager(st).Get(cmd.Context(), id)
	if err != nil {
		return patientExit("failed to load patient", err)
	}
	if !ok {
		return NewExitError(ExitFailure, "patient "+id+" not found")
	}
	return writeJSON(cmd, p.Record())
}

func runPatientDeactivate(opts *PatientOptions, cmd *cobra.Command, id string) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	m := opts.manager(st)
	ok, err := m.SoftDelete(cmd.Context(), id)
	if err != nil {
		return patientExit("failed to deactivate patient", err)
	}
	if !ok {
		return NewExitError(ExitFailure, "patient "+id+" not found")
	}
	p, _, err := m.Get(cmd.Context(), id)
	if err != nil {
		return patientExit("failed to load patient", err)
	}
	return writeJSON(cmd, p.Record())
}

// patientExit maps rejected input to a command error and everything else
// to a failure.
func patientExit(msg string, err error) error {
	if errors.Is(err, validate.ErrValidation) {
		return WrapExitError(ExitCommandError, msg, err)
	}
	return WrapExitError(ExitFailure, msg, err)
}
