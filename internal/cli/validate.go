package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var feeds feedFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the feeds parse and list their experiments",
		Long: `Load both feeds exactly as the service would and report what they define.
Experiments that reference unknown segments are listed because they never admit anyone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadService(cmd.Context(), feeds)
			if err != nil {
				return err
			}

			snap := svc.Catalog().Snapshot()
			nExp, nSeg := snap.Counts()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: %d experiments, %d segments\n", nExp, nSeg)

			now := time.Now()
			for _, name := range svc.Catalog().Names() {
				exp, _ := snap.Experiment(name)

				state := "inactive"
				if exp.IsActive(now) {
					state = "active"
				}
				fmt.Fprintf(out, "  %-30s %-8s variants=%d", name, state, len(exp.Variants))

				var missing []string
				for _, seg := range exp.Segments {
					if _, ok := snap.Segment(seg); !ok {
						missing = append(missing, seg)
					}
				}
				if len(missing) > 0 {
					slices.Sort(missing)
					fmt.Fprintf(out, "  missing segments: %v", missing)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	feeds.register(cmd)
	return cmd
}
