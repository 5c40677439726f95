package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
	"github.com/ehr/fieldtriage/internal/platform/db"
	"github.com/ehr/fieldtriage/internal/termui"
	"github.com/ehr/fieldtriage/internal/transport"
)

const maxBlobBytes = 1 << 20

func exportCmd() *cobra.Command {
	var outFile, qrFile string
	cmd := &cobra.Command{
		Use:   "export <patient-id>",
		Short: "Encode a record for transfer to another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				rec, err := a.svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				blob, err := a.codec.Encode(rec)
				if err != nil {
					return err
				}

				if qrFile != "" {
					png, err := transport.RenderQR(blob, a.cfg.QRSize)
					if err != nil {
						return err
					}
					if err := os.WriteFile(qrFile, png, 0o600); err != nil {
						return fmt.Errorf("write qr image: %w", err)
					}
					termui.Success(cmd.ErrOrStderr(), "wrote QR code for %s to %s", rec.PatientID, qrFile)
				}

				switch {
				case outFile != "":
					if err := os.WriteFile(outFile, blob, 0o600); err != nil {
						return fmt.Errorf("write blob: %w", err)
					}
					termui.Success(cmd.ErrOrStderr(), "wrote %s revision %d to %s", rec.PatientID, rec.Revision, outFile)
				case qrFile == "":
					_, err = cmd.OutOrStdout().Write(append(blob, '\n'))
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the blob to a file instead of stdout")
	cmd.Flags().StringVar(&qrFile, "qr", "", "Also render the blob as a PNG QR code to this file")
	return cmd
}

func readBlob(cmd *cobra.Command, args []string) ([]byte, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("open blob: %w", err)
		}
		defer f.Close()
		r = f
	}
	return io.ReadAll(io.LimitReader(r, maxBlobBytes))
}

// importChoice maps the import flags to an arbitration mode and an optional
// preselected resolution.
func importChoice(adopt, keep, auto bool) (assessment.Arbitration, assessment.Resolution, error) {
	set := 0
	for _, b := range []bool{adopt, keep, auto} {
		if b {
			set++
		}
	}
	if set > 1 {
		return assessment.Arbitration{}, "", errors.New("only one of --adopt, --keep and --auto may be given")
	}
	switch {
	case auto:
		return assessment.AutoArbitration, "", nil
	case adopt:
		return assessment.ManualArbitration, assessment.AdoptIncoming, nil
	case keep:
		return assessment.ManualArbitration, assessment.KeepLocal, nil
	default:
		return assessment.ManualArbitration, "", nil
	}
}

func importCmd() *cobra.Command {
	var adopt, keep, auto, accessible bool
	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Reconcile a record received from another device",
		Long: `Decodes a transfer blob and compares it with the local copy. Without a
flag the differences are shown and you are asked which record to keep.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arb, preset, err := importChoice(adopt, keep, auto)
			if err != nil {
				return err
			}
			blob, err := readBlob(cmd, args)
			if err != nil {
				return err
			}
			return withApp(func(a *app) error {
				var arbiter termui.Arbiter = termui.HuhArbiter{Accessible: accessible}
				if preset != "" {
					arbiter = termui.ArbiterFunc(func(assessment.Decision) (assessment.Resolution, error) {
						return preset, nil
					})
				}
				return runImport(cmd.Context(), a, blob, arb, arbiter, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&adopt, "adopt", false, "Adopt the incoming record on conflict")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the local record on conflict")
	cmd.Flags().BoolVar(&auto, "auto", false, "Let the newer record win without asking")
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Use a plain-text prompt")
	return cmd
}

func runImport(ctx context.Context, a *app, blob []byte, arb assessment.Arbitration, arbiter termui.Arbiter, w io.Writer) error {
	incoming, err := a.codec.Decode(blob)
	if err != nil {
		return err
	}
	d, err := a.svc.Import(ctx, incoming, arb)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, termui.DecisionView(d))

	if d, err = termui.Settle(d, arbiter); err != nil {
		return err
	}
	rec, err := a.svc.Commit(ctx, d)
	if err != nil {
		return err
	}
	if d.Kind == assessment.DecisionAdoptIncoming {
		termui.Success(w, "adopted %s revision %d", rec.PatientID, rec.Revision)
	} else {
		termui.Warning(w, "kept local %s revision %d", rec.PatientID, rec.Revision)
	}
	return nil
}

func syncCmd() *cobra.Command {
	var pull, push bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Exchange records with the remote store",
		Long:  "Pulls newer remote records and pushes newer local ones. Photos stay on the device.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if err := a.cfg.RequireDatabase(); err != nil {
					return err
				}
				ctx := cmd.Context()
				pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()

				syncer := assessment.NewSyncer(a.svc, assessment.NewRecordRepoPG(pool), a.logger)
				start := time.Now()
				var report assessment.SyncReport
				switch {
				case pull && !push:
					report, err = syncer.Pull(ctx)
				case push && !pull:
					report, err = syncer.Push(ctx)
				default:
					report, err = syncer.Sync(ctx)
				}
				fmt.Fprintln(cmd.OutOrStdout(), termui.SyncView(report, time.Since(start)))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "Only pull remote records")
	cmd.Flags().BoolVar(&push, "push", false, "Only push local records")
	return cmd
}
