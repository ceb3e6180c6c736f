package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine"
	"github.com/Carmen-Shannon/oxy-sort/engine/config"
	"github.com/Carmen-Shannon/oxy-sort/engine/profiler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runInfo = "sort a random array and report phase timings"
var runCmd = &cobra.Command{
	Use:   "run",
	Short: runInfo,
	Long:  runInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runSort(ctx, cmd.OutOrStdout(), cfg)
	},
}

func initRunCmd() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().String("backend", "wgpu", "compute backend: wgpu or host")
	runCmd.Flags().Bool("fallback", false, "force the software fallback adapter")
	runCmd.Flags().Int("host_workers", 0, "host backend workers (0: NumCPU-1)")
	runCmd.Flags().Uint32("log_len", 20, "sort 2^log_len elements")
	runCmd.Flags().String("element", "f32", "element type: f32, u32, i32")
	runCmd.Flags().Uint64("seed", 0, "input generator seed")
	runCmd.Flags().Uint32("group_log", 8, "log2 of kernel lanes per workgroup, 0 selects the default")
	runCmd.Flags().Int("attempts", 1, "attempts before a failed sort is reported")
	runCmd.Flags().Bool("verify", true, "check the result against a CPU sort")
	runCmd.Flags().Bool("profile", true, "log phase timings")

	viper.BindPFlag("backend.type", runCmd.Flags().Lookup("backend"))
	viper.BindPFlag("backend.force_fallback_adapter", runCmd.Flags().Lookup("fallback"))
	viper.BindPFlag("backend.host_workers", runCmd.Flags().Lookup("host_workers"))
	viper.BindPFlag("run.log_len", runCmd.Flags().Lookup("log_len"))
	viper.BindPFlag("run.element", runCmd.Flags().Lookup("element"))
	viper.BindPFlag("run.seed", runCmd.Flags().Lookup("seed"))
	viper.BindPFlag("sort.group_capacity_log", runCmd.Flags().Lookup("group_log"))
	viper.BindPFlag("sort.max_attempts", runCmd.Flags().Lookup("attempts"))
	viper.BindPFlag("sort.verify", runCmd.Flags().Lookup("verify"))
	viper.BindPFlag("run.profile", runCmd.Flags().Lookup("profile"))
}

func runSort(ctx context.Context, w io.Writer, cfg config.Config) error {
	logger, err := common.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	kind, err := cfg.ElementKind()
	if err != nil {
		return err
	}

	e := engine.NewEngine(engine.WithConfig(cfg), engine.WithLogger(logger))
	defer e.Release()
	if err := e.Init(); err != nil {
		return err
	}

	n := common.Pow2(cfg.Run.LogLen)
	if limit := e.Backend().Limits().MaxElements(); n > limit {
		return fmt.Errorf("2^%d elements exceeds the device limit of %d", cfg.Run.LogLen, limit)
	}

	started := time.Now()
	input := generateInput(kind, n, cfg.Run.Seed, max(runtime.NumCPU()-1, 1))
	logger.Info("generated input", zap.Int("elements", n), zap.Stringer("element", kind), zap.Duration("took", time.Since(started)))

	started = time.Now()
	if _, err := e.SortEncoded(ctx, kind, input); err != nil {
		return err
	}
	total := time.Since(started)

	fmt.Fprintf(w, "device:   %s\n", e.Backend().Name())
	fmt.Fprintf(w, "elements: 2^%d (%d x %s)\n", cfg.Run.LogLen, n, kind)
	fmt.Fprintf(w, "verified: %t\n", cfg.Sort.Verify)
	fmt.Fprintf(w, "total:    %s\n", total)
	p := e.Profiler()
	for _, phase := range profiler.Phases() {
		fmt.Fprintf(w, "  %-15s %s\n", phase.String()+":", p.Duration(phase))
	}
	return nil
}
