package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/myth/coroner/internal/sweep"
	"github.com/spf13/cobra"
)

var (
	axes    []string
	rankBy  string
	workers int
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "solve over a grid of parameter values",
		Example: `  coroner sweep --axis beta=0.1:0.5:0.1 --axis recovery_days=5,7,10
  coroner sweep --preset norway --axis infectious=10,100,1000 --rank peak_day`,
		Args: cobra.NoArgs,
		RunE: runSweep,
	}
	cmd.Flags().StringArrayVar(&axes, "axis", nil, "swept parameter, name=v1,v2 or name=from:to:step (repeatable)")
	cmd.Flags().StringVar(&rankBy, "rank", "peak_infectious", "report the cell minimizing this metric ("+strings.Join(metricNames(), ", ")+")")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent solves (default: number of CPUs)")
	return cmd
}

func metricNames() []string {
	names := make([]string, 0, len(sweep.Metrics))
	for name := range sweep.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSweep(cmd *cobra.Command, args []string) error {
	if len(axes) == 0 {
		return fmt.Errorf("at least one --axis is required")
	}
	metric, ok := sweep.Metrics[rankBy]
	if !ok {
		return fmt.Errorf("unknown metric: %s (available: %v)", rankBy, metricNames())
	}

	parsed := make([]sweep.Axis, 0, len(axes))
	for _, a := range axes {
		axis, err := sweep.ParseAxis(a)
		if err != nil {
			return err
		}
		parsed = append(parsed, axis)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	grid := sweep.NewGrid(parsed...).WithWorkers(workers)
	logger.Info("sweeping", "cells", grid.Size(), "horizon", cfg.Horizon)
	points, err := grid.Run(cmd.Context(), cfg.Params(), opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	var header []string
	for _, a := range parsed {
		header = append(header, a.Name)
	}
	header = append(header, "R0", "peak_day", "peak_infectious", "attack_rate", "")
	fmt.Fprintln(w, strings.Join(header, "\t"))

	failed := 0
	for _, pt := range points {
		var row []string
		for _, a := range parsed {
			row = append(row, fmt.Sprintf("%g", pt.Values[a.Name]))
		}
		if pt.Err != nil {
			failed++
			logger.Debug("cell rejected", "values", pt.Values, "error", pt.Err)
			row = append(row, "-", "-", "-", "-", "")
		} else {
			s := pt.Summary
			row = append(row,
				fmt.Sprintf("%.2f", s.R0),
				fmt.Sprintf("%d", s.PeakDay),
				fmt.Sprintf("%.0f", s.PeakInfectious),
				fmt.Sprintf("%.1f%%", s.AttackRate*100),
				"")
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		fmt.Fprintf(out, "\n%d of %d cells rejected\n", failed, len(points))
	}
	if best, ok := sweep.Best(points, metric); ok {
		var parts []string
		for _, a := range parsed {
			parts = append(parts, fmt.Sprintf("%s=%g", a.Name, best.Values[a.Name]))
		}
		fmt.Fprintf(out, "\nlowest %s: %s (%g)\n", rankBy, strings.Join(parts, " "), metric(best.Summary))
	}
	return nil
}

