package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"myhelper/internal/display"
	"myhelper/internal/listener"
	"myhelper/internal/planner"
)

var (
	triggerJSON string
	asJSON      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <task_id> [key=value ...]",
	Short: "Create a queued mission for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trigger, err := listener.ParseTrigger(args[1:])
		if err != nil {
			return err
		}
		if triggerJSON != "" {
			extra := map[string]any{}
			if err := json.Unmarshal([]byte(triggerJSON), &extra); err != nil {
				return fmt.Errorf("--trigger: %w", err)
			}
			for k, v := range extra {
				trigger[k] = v
			}
		}

		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.intake.Create(cmd.Context(), args[0], trigger)
		if id != "" {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <mission_id>",
	Short: "Show a mission and its execution log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.intake.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), m)
		}
		fmt.Fprint(cmd.OutOrStdout(), display.FormatMission(&m))
		if m.FinalSummary != nil {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), *m.FinalSummary)
		}
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List catalog tools and tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if asJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{"tools": a.catalog.Tools(), "tasks": a.catalog.Tasks()})
		}
		fmt.Fprint(cmd.OutOrStdout(), display.FormatTools(a.catalog.Tools()))
		fmt.Fprintln(cmd.OutOrStdout())
		for _, t := range a.catalog.Tasks() {
			fmt.Fprintf(cmd.OutOrStdout(), "task %-20s tools: %v\n", t.ID, t.Tools)
		}
		return nil
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans [task_id]",
	Short: "List the plans file, or print one task's plan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		fp, err := planner.LoadFilePlanner(cfg.PlansPath)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			fmt.Fprint(cmd.OutOrStdout(), display.FormatPlansCatalog(cfg.PlansPath, fp.Tasks(), fp.Steps, a.catalog))
			return nil
		}
		steps, ok := fp.Steps(args[0])
		if !ok {
			return fmt.Errorf("no plan on file for task %s", args[0])
		}
		if task, ok := a.catalog.Task(args[0]); ok {
			if err := planner.ValidatePlan(steps, task); err != nil {
				cmd.PrintErrln("warning:", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), display.FormatPlan(steps, a.catalog))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&triggerJSON, "trigger", "", "trigger context as a JSON object, merged over key=value pairs")
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw mission record")
	toolsCmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
}
