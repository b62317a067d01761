package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simflow/simflow/pkg/engine"
)

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List groups, scenarios, or steps of a project",
	}

	cmd.AddCommand(newShowGroupsCommand())
	cmd.AddCommand(newShowScenariosCommand())
	cmd.AddCommand(newShowStepsCommand())
	return cmd
}

func compileForShow() (*engine.Compiled, error) {
	store, section, err := loadStore()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(store, section)
	if err != nil {
		return nil, err
	}
	return compileProject(store, logger, newMetrics())
}

func newShowGroupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List scenario groups, default marked",
		RunE: func(cmd *cobra.Command, args []string) error {
			compiled, err := compileForShow()
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(compiled.Setup.GroupNames())
			}
			for _, name := range compiled.Setup.GroupNames() {
				if name == compiled.Setup.DefaultGroup {
					fmt.Printf("%s (default)\n", name)
				} else {
					fmt.Println(name)
				}
			}
			return nil
		},
	}
}

func newShowScenariosCommand() *cobra.Command {
	var groupName string

	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List scenarios of a group, baseline first",
		RunE: func(cmd *cobra.Command, args []string) error {
			compiled, err := compileForShow()
			if err != nil {
				return err
			}

			name := groupName
			if name == "" {
				name = compiled.Setup.DefaultGroup
			}
			group := compiled.Setup.Group(name)
			if group == nil {
				return fmt.Errorf("unknown scenario group %q", name)
			}

			names := []string{group.Baseline}
			for _, s := range group.Scenarios {
				if !s.IsBaseline {
					names = append(names, s.Name)
				}
			}
			if jsonOutput {
				return printJSON(names)
			}
			for i, n := range names {
				if i == 0 {
					fmt.Printf("%s (baseline)\n", n)
				} else {
					fmt.Println(n)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&groupName, "group", "g", "", "scenario group (default: the default group)")
	return cmd
}

func newShowStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List step names in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			compiled, err := compileForShow()
			if err != nil {
				return err
			}

			names := compiled.Steps.Names()
			if jsonOutput {
				return printJSON(names)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
