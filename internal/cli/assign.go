package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/bifrost/internal/experiments"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

func newAssignCmd() *cobra.Command {
	var (
		feeds   feedFlags
		name    string
		variant string
		user    ruleengine.UserContext
		at      string
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Preview the assignment of one user",
		Long: `Load the feeds and evaluate one user against one experiment.

Examples:
  bifrost assign --name checkout --identity 1000123 --storefront US --subscriber
  bifrost assign --name checkout --identity 1000123 --variant new --at 2024-06-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []experiments.Option
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				opts = append(opts, experiments.WithClock(func() time.Time { return ts }))
			}

			svc, err := loadService(cmd.Context(), feeds, opts...)
			if err != nil {
				return err
			}
			if _, ok := svc.Experiment(name); !ok {
				return fmt.Errorf("experiment %q not found", name)
			}

			res := svc.InExperiment(cmd.Context(), name, variant, user)
			return printJSON(cmd.OutOrStdout(), struct {
				Experiment string `json:"experiment"`
				Active     bool   `json:"active"`
				experiments.Result
			}{
				Experiment: name,
				Active:     svc.ExperimentActive(name),
				Result:     res,
			})
		},
	}

	feeds.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "experiment name")
	cmd.Flags().StringVar(&variant, "variant", "", "variant to test membership of (default: any)")
	cmd.Flags().StringVar(&user.Identity, "identity", "", "stable user identity")
	cmd.Flags().StringVar(&user.Locale, "locale", "", "user locale, e.g. en_US")
	cmd.Flags().StringVar(&user.Storefront, "storefront", "", "storefront code, e.g. US")
	cmd.Flags().BoolVar(&user.Subscriber, "subscriber", false, "user holds an active subscription")
	cmd.Flags().StringSliceVar(&user.Entitlements, "entitlement", nil, "owned offer, repeatable")
	cmd.Flags().StringVar(&at, "at", "", "evaluate activity at this RFC3339 time instead of now")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
