package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/simflow/simflow/pkg/engine"
	"github.com/simflow/simflow/pkg/stores"
)

func newRunCommand() *cobra.Command {
	var (
		dryRun     bool
		groups     []string
		scenarios  []string
		steps      []string
		skipSteps  []string
		distribute bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and hand off to the configured runner",
		Long: `Run compiles the plan and, with --dry-run, prints the command sequence
without touching anything. Otherwise the plan and a pending run record
are written to the plan store for an external runner to pick up; the
engine itself never executes commands.`,
		Example: `  # Show what would run for the default group
  simflow run --dry-run

  # Record a distributed plan for the external runner
  simflow run --distribute`,
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

			if dryRun {
				renderDryRun(plan)
				return nil
			}

			storePath, err := store.GetRequired(section, "Sim.StorePath")
			if err != nil {
				return err
			}
			payload, err := json.Marshal(plan)
			if err != nil {
				return err
			}

			db, err := stores.NewSQLiteStore(storePath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := db.Init(ctx); err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			now := time.Now().UTC()
			planID := uuid.NewString()
			if err := db.SavePlan(ctx, &stores.PlanRecord{
				ID:          planID,
				Project:     plan.Project,
				Distributed: plan.Distributed,
				NodeCount:   len(plan.Nodes),
				Payload:     string(payload),
				CreatedAt:   now,
			}); err != nil {
				return err
			}

			runID := uuid.NewString()
			if err := db.CreateRun(ctx, &stores.RunRecord{
				ID:        runID,
				PlanID:    planID,
				Status:    stores.RunStatusPending,
				StartedAt: now,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}

			logger.WithProject(plan.Project).
				Infof("recorded plan %s with pending run %s", planID, runID)
			fmt.Printf("plan %s\nrun %s\n", planID, runID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the command sequence without recording anything")
	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "scenario groups to run")
	cmd.Flags().StringSliceVarP(&scenarios, "scenario", "S", nil, "scenarios to run")
	cmd.Flags().StringSliceVar(&steps, "step", nil, "only these steps")
	cmd.Flags().StringSliceVar(&skipSteps, "skip-step", nil, "skip these steps")
	cmd.Flags().BoolVar(&distribute, "distribute", false, "emit submission tokens and dependencies")

	return cmd
}

func renderDryRun(plan *engine.Plan) {
	for _, node := range plan.Nodes {
		kind := "policy"
		if node.IsBaseline {
			kind = "baseline"
		}
		fmt.Printf("%s (%s)\n", node.ID, kind)
		if node.DependsOn != "" {
			fmt.Printf("  depends on %s\n", node.DependsOn)
		}
		for _, step := range node.Steps {
			fmt.Printf("  [%d] %s: %s\n", step.Seq, step.Name, step.Command)
		}
	}
}
