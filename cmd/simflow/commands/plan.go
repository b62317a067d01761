package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/simflow/simflow/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile    string
		groups     []string
		scenarios  []string
		steps      []string
		skipSteps  []string
		distribute bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compile templates into an execution plan",
		Long: `Compile the project's workflow and scenario templates into a fully
resolved execution plan. Nothing is executed and no sandbox file is
touched; the plan is emitted as JSON for external runners.`,
		Example: `  # Plan the default group of the default project
  simflow plan --out plan.json

  # Plan one scenario of a named group
  simflow plan -g group1 -S tax-25 --out plan.json

  # Distributed plan with dependency tokens, skipping a step
  simflow plan --distribute --skip-step diff --out plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, section, err := loadStore()
			if err != nil {
				return err
			}
			logger, err := newLogger(store, section)
			if err != nil {
				return err
			}
			metrics := newMetrics()

			plan, err := buildPlan(store, section, logger, metrics, engine.PlanOptions{
				Distribute: distribute,
				Groups:     groups,
				Scenarios:  scenarios,
				Steps:      steps,
				Skip:       skipSteps,
			})
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			if outFile == "" || outFile == "-" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(outFile, append(data, '\n'), 0644); err != nil {
				return err
			}
			logger.WithProject(plan.Project).Infof("wrote plan with %d nodes to %s", len(plan.Nodes), outFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output plan file path (default stdout)")
	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "scenario groups to plan")
	cmd.Flags().StringSliceVarP(&scenarios, "scenario", "S", nil, "scenarios to plan")
	cmd.Flags().StringSliceVar(&steps, "step", nil, "only these steps")
	cmd.Flags().StringSliceVar(&skipSteps, "skip-step", nil, "skip these steps")
	cmd.Flags().BoolVar(&distribute, "distribute", false, "emit submission tokens and dependencies")

	return cmd
}
