package main

import (
	"fmt"
	"io"

	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"github.com/Carmen-Shannon/oxy-sort/engine/sorter"
	"github.com/spf13/cobra"
)

var planLogLen, planGroupLog uint32

var planInfo = "print the dispatch plan for 2^log_len elements"
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: planInfo,
	Long:  planInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		if planGroupLog > kernel.MaxGroupCapacityLog {
			return fmt.Errorf("group_log %d exceeds %d", planGroupLog, kernel.MaxGroupCapacityLog)
		}
		printPlan(cmd.OutOrStdout(), planLogLen, planGroupLog)
		return nil
	},
}

func initPlanCmd() {
	RootCmd.AddCommand(planCmd)
	planCmd.Flags().Uint32Var(&planLogLen, "log_len", 4, "plan for 2^log_len elements")
	planCmd.Flags().Uint32Var(&planGroupLog, "group_log", kernel.DefaultGroupCapacityLog, "log2 of kernel lanes per workgroup")
}

func printPlan(w io.Writer, logLen, groupLog uint32) {
	plan := sequencer.Compute(logLen)
	grid := sorter.DispatchGrid(logLen, groupLog)
	fmt.Fprintf(w, "log_len %d: %d dispatches, grid (%d, %d, %d)\n", logLen, len(plan), grid[0], grid[1], grid[2])
	step := 0
	for s, stage := range plan.Stages() {
		for t, params := range stage {
			fmt.Fprintf(w, "%4d  stage %d step %d  %s\n", step, s+1, t, params)
			step++
		}
	}
}
