package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medtransfer/dss/internal/config"
	"github.com/medtransfer/dss/internal/domain/transfer"
)

const defaultReport = "Patient has chest pain and shortness of breath. Suspected myocardial infarction. Needs Cardiology."

// paramFlags registers the synthetic-world flags. Zero values fall back to
// the configured defaults.
func paramFlags(cmd *cobra.Command, p *transfer.Params) {
	cmd.Flags().IntVar(&p.NHospitals, "n-hospitals", 0, "Number of synthetic hospitals (5-15)")
	cmd.Flags().IntVar(&p.NTransfers, "n-transfers", 0, "Number of synthetic training cases (50-400)")
	cmd.Flags().Uint64Var(&p.SeedH, "seed-h", 0, "Hospitals seed (1-9999)")
	cmd.Flags().Uint64Var(&p.SeedT, "seed-t", 0, "Transfers seed (1-9999)")
	cmd.Flags().IntVar(&p.TopK, "top-k", 0, "Number of ranked hospitals to show (1-15)")
}

// cliService builds a service from the environment with quiet logging.
func cliService() (*transfer.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("demo defaults: %w", err)
	}
	return transfer.NewService(zerolog.Nop(), cfg.Defaults, 1), nil
}

func recommendCmd() *cobra.Command {
	var p transfer.Params
	var report string
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Analyze a transfer report and rank hospitals",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService()
			if err != nil {
				return err
			}
			rec, err := svc.Recommend(context.Background(), p, report)
			if err != nil {
				return err
			}
			printRecommendation(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	paramFlags(cmd, &p)
	cmd.Flags().StringVar(&report, "report", defaultReport, "Medical report text")
	return cmd
}

func hospitalsCmd() *cobra.Command {
	var p transfer.Params
	cmd := &cobra.Command{
		Use:   "hospitals",
		Short: "Print the synthetic hospital table",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService()
			if err != nil {
				return err
			}
			hs, err := svc.Hospitals(context.Background(), p)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-12s %-40s %-9s %-9s %-6s %s\n", "HOSPITAL", "SPECIALTIES", "BEDS", "ICU", "LOAD", "DISTANCE")
			for _, h := range hs {
				fmt.Fprintf(w, "%-12s %-40s %-9s %-9s %-6.3f %dkm\n",
					h.Name, strings.Join(h.Specialties, ", "),
					fmt.Sprintf("%d/%d", h.BedsFree, h.BedsTotal),
					fmt.Sprintf("%d/%d", h.ICUFree, h.ICUTotal),
					h.Load, h.DistanceKm)
			}
			return nil
		},
	}
	paramFlags(cmd, &p)
	return cmd
}

func transfersCmd() *cobra.Command {
	var p transfer.Params
	var limit int
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Print the synthetic training cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService()
			if err != nil {
				return err
			}
			cases, err := svc.Transfers(context.Background(), p)
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(cases) {
				cases = cases[:limit]
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-6s %-12s %-9s %s\n", "CASE", "SPECIALTY", "SEVERITY", "REPORT")
			for _, c := range cases {
				fmt.Fprintf(w, "%-6s %-12s %-9s %s\n", c.CaseID, c.TrueSpecialty, c.TrueSeverity, c.ReportText)
			}
			return nil
		},
	}
	paramFlags(cmd, &p)
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum rows to print (0 for all)")
	return cmd
}

func printRecommendation(w io.Writer, rec *transfer.Recommendation) {
	pred := rec.Prediction
	fmt.Fprintf(w, "Predicted specialty: %s\n", pred.Specialty)
	fmt.Fprintf(w, "Predicted severity:  %s\n\n", pred.Severity)

	fmt.Fprintln(w, "Specialty probabilities:")
	for _, lp := range rec.TopSpecialties {
		fmt.Fprintf(w, "  %-12s %.4f\n", lp.Label, lp.Probability)
	}
	fmt.Fprintln(w, "Severity probabilities:")
	for _, lp := range rec.TopSeverities {
		fmt.Fprintf(w, "  %-12s %.4f\n", lp.Label, lp.Probability)
	}
	fmt.Fprintln(w)

	if rec.NoMatch {
		fmt.Fprintf(w, "No hospital offers %s.\n\n", pred.Specialty)
	} else {
		best := rec.Best
		fmt.Fprintf(w, "Recommended hospital: %s\n", best.Name)
		fmt.Fprintf(w, "  Decision score: %.4f\n", best.Score)
		fmt.Fprintf(w, "  Distance:       %dkm\n", best.DistanceKm)
		fmt.Fprintf(w, "  Beds free:      %d/%d\n", best.BedsFree, best.BedsTotal)
		fmt.Fprintf(w, "  ICU free:       %d/%d\n", best.ICUFree, best.ICUTotal)
		fmt.Fprintf(w, "  Current load:   %.2f\n", best.Load)
		fmt.Fprintln(w, "Why this hospital:")
		for _, r := range rec.Reasons {
			fmt.Fprintf(w, "  - %s\n", r)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%-12s %-40s %-10s %s\n", "HOSPITAL", "SPECIALTIES", "SCORE", "REASON")
	for _, r := range rec.Ranked {
		fmt.Fprintf(w, "%-12s %-40s %-10.4f %s\n", r.Name, strings.Join(r.Specialties, ", "), r.Score, r.Reason)
	}
}
