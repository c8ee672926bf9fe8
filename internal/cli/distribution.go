package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/bifrost/internal/bucketing"
)

func newDistributionCmd() *cobra.Command {
	var (
		idsFile     string
		synthetic   int
		prefix      string
		random      int
		salt        string
		percentages []float64
		tolerance   float64
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Measure how identities spread over a percentage split",
		Long: `Replay the bucketing hash over a population and report the share of
each configured percentage. Exactly one population source is required.

Examples:
  bifrost distribution --synthetic 10000 --salt exp123 --pct 0.5 --pct 0.5
  bifrost distribution --ids users.txt --salt exp123 --pct 0.1
  bifrost distribution --random 50000 --salt exp123 --pct 0.2 --pct 0.2 --tolerance 0.01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(percentages) == 0 {
				return fmt.Errorf("at least one --pct is required")
			}
			sum := 0.0
			for _, p := range percentages {
				if p < 0 || p > 1 {
					return fmt.Errorf("percentage %v out of range [0, 1]", p)
				}
				sum += p
			}
			if sum > 1.0+1e-9 {
				return fmt.Errorf("percentages sum to %v, above 1", sum)
			}

			var ids []string
			switch {
			case idsFile != "":
				var err error
				if ids, err = readIdentities(idsFile, cmd.InOrStdin()); err != nil {
					return err
				}
			case synthetic > 0:
				ids = make([]string, synthetic)
				for i := range ids {
					ids[i] = prefix + strconv.Itoa(i)
				}
			case random > 0:
				ids = make([]string, random)
				for i := range ids {
					ids[i] = uuid.NewString()
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no identities: use --ids, --synthetic or --random")
			}

			report := bucketing.Distribution(ids, salt, percentages...)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "identities: %d  bucketed: %d\n", report.ExpectedTotal, report.ActualTotal)
				for i, b := range report.Buckets {
					fmt.Fprintf(out, "  bucket %d  pct %.4f  count %d  observed %.4f\n", i, b.Percentage, b.Count, b.Fraction)
				}
			}

			if tolerance > 0 && !report.WithinTolerance(tolerance) {
				return fmt.Errorf("distribution deviates by more than %v", tolerance)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&idsFile, "ids", "", "file with one identity per line (- for stdin)")
	cmd.Flags().IntVar(&synthetic, "synthetic", 0, "generate N identities as <prefix><index>")
	cmd.Flags().StringVar(&prefix, "prefix", "user", "prefix for --synthetic identities")
	cmd.Flags().IntVar(&random, "random", 0, "generate N random UUID identities")
	cmd.Flags().StringVar(&salt, "salt", "", "experiment id appended to each identity")
	cmd.Flags().Float64SliceVar(&percentages, "pct", nil, "variant percentage, repeat per variant")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "fail when any bucket deviates by more than this fraction")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.MarkFlagsMutuallyExclusive("ids", "synthetic", "random")
	_ = cmd.MarkFlagRequired("salt")

	return cmd
}
