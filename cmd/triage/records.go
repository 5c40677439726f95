package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
	"github.com/ehr/fieldtriage/internal/termui"
)

// applyAssignments sets each "field=value" pair on f through the table.
func applyAssignments(table *assessment.FieldTable, f *assessment.Fields, pairs []string) error {
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%q is not of the form field=value", p)
		}
		if err := table.SetField(f, strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCmd(author *string) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "new [field=value ...]",
		Short: "Start a new assessment record",
		Example: `  triage new name="John Smith" gcs=14 respiratoryRate=22
  triage new --id H8K3M7 bleeding=true bleedingLocation="left thigh"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				sess, err := a.session(*author)
				if err != nil {
					return err
				}
				fields := assessment.DefaultFields()
				if err := applyAssignments(a.table, &fields, args); err != nil {
					return err
				}
				rec, err := a.svc.Create(cmd.Context(), sess, assessment.CreateInput{PatientID: id, Fields: fields})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), termui.RecordView(rec))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Patient ID to use instead of a generated one")
	return cmd
}

func editCmd(author *string) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <patient-id> field=value [field=value ...]",
		Short: "Change fields of an existing record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				sess, err := a.session(*author)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				current, err := a.svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fields := current.Fields.Clone()
				if err := applyAssignments(a.table, &fields, args[1:]); err != nil {
					return err
				}
				rec, err := a.svc.Edit(ctx, sess, current.PatientID, fields)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if rec.Revision == current.Revision {
					termui.Warning(out, "no tracked changes; %s stays at revision %d", rec.PatientID, rec.Revision)
					return nil
				}
				fmt.Fprintln(out, termui.RecordView(rec))
				return nil
			})
		},
	}
}

func outcomeCmd(author *string) *cobra.Command {
	var in assessment.OutcomeInput
	var outcome string
	cmd := &cobra.Command{
		Use:   "outcome <patient-id>",
		Short: "Record the patient's disposition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				sess, err := a.session(*author)
				if err != nil {
					return err
				}
				in.Outcome = assessment.Outcome(strings.ToLower(strings.TrimSpace(outcome)))
				rec, err := a.svc.UpdateOutcome(cmd.Context(), sess, args[0], in)
				if err != nil {
					return err
				}
				termui.Success(cmd.OutOrStdout(), "%s is %s (revision %d)", rec.PatientID, rec.Fields.Outcome, rec.Revision)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "pending, survived, deceased, discharged or transferred")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Outcome notes")
	cmd.Flags().StringVar(&in.TimeOfDeath, "time-of-death", "", "Time of death (deceased only)")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <patient-id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				rec, err := a.svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				fmt.Fprintln(cmd.OutOrStdout(), termui.RecordView(rec))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored record as JSON")
	return cmd
}

func listCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				records, err := a.svc.Search(cmd.Context(), query)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), termui.RecordTable(records))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Free-text filter")
	return cmd
}

func statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize outcomes and triage priorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				st, err := a.svc.Statistics(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), st)
				}
				fmt.Fprintln(cmd.OutOrStdout(), termui.StatsView(st))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func followUpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow-ups",
		Short: "List red pending patients not updated within FOLLOW_UP_AFTER",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				return printFollowUps(cmd.Context(), a, cmd.OutOrStdout())
			})
		},
	}
}

func printFollowUps(ctx context.Context, a *app, w io.Writer) error {
	records, err := a.svc.FollowUps(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		termui.Success(w, "no patients need follow-up")
		return nil
	}
	for _, rec := range records {
		termui.Warning(w, "%s last updated %s: %s", rec.PatientID,
			rec.LastUpdatedAt.Format("15:04"), assessment.Summary(rec.PatientID, rec.Fields))
	}
	return nil
}
