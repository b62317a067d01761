package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Compile the project's templates and report errors",
		Long: `Validate runs the full compile pipeline: configuration resolution,
conditional evaluation, iterator expansion, action interpretation with
baseline inheritance, and step merging. It produces no plan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, section, err := loadStore()
			if err != nil {
				return err
			}
			logger, err := newLogger(store, section)
			if err != nil {
				return err
			}

			compiled, err := compileProject(store, logger, newMetrics())
			if err != nil {
				return err
			}

			fmt.Printf("project %s: %d groups, %d steps, ok\n",
				compiled.Project.Name, len(compiled.Setup.Groups), len(compiled.Steps.Steps()))
			return nil
		},
	}
}
