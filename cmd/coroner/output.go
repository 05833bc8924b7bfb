package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/myth/coroner/internal/integrators"
	"github.com/myth/coroner/internal/lab"
	"github.com/spf13/cobra"
)

func runOnce(cmd *cobra.Command, args []string) error {
	if every < 1 {
		return fmt.Errorf("--every must be at least 1, got %d", every)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	ctrl, err := newController(cfg, logger)
	if err != nil {
		return err
	}

	traj, err := ctrl.Recompute()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "table":
		return writeTable(out, traj, every)
	case "csv":
		return writeCSV(out, traj, every)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(traj)
	default:
		return fmt.Errorf("unknown format: %s (available: table, csv, json)", format)
	}
}

// sampledDays returns every nth day plus the last one.
func sampledDays(traj *lab.Trajectory, n int) []int {
	last := traj.Len() - 1
	var days []int
	for d := 0; d <= last; d += n {
		days = append(days, d)
	}
	if last%n != 0 {
		days = append(days, last)
	}
	return days
}

func writeTable(out io.Writer, traj *lab.Trajectory, n int) error {
	p := traj.Params()
	sum := traj.Summary()
	fmt.Fprintf(out, "N=%d beta=%.3f gamma=%.4f R0=%.2f normalization=%s\n\n",
		p.TotalCount, p.TransmissionRate, p.Gamma(), sum.R0, traj.Normalization())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "day\tsusceptible\tinfectious\tremoved\t")
	for _, d := range sampledDays(traj, n) {
		s, _ := traj.At(d)
		fmt.Fprintf(w, "%d\t%.0f\t%.0f\t%.0f\t\n", s.Day, s.Susceptible, s.Infectious, s.Removed)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\npeak: day %d, %.0f infectious\n", sum.PeakDay, sum.PeakInfectious)
	fmt.Fprintf(out, "attack rate: %.1f%%\n", sum.AttackRate*100)
	return nil
}

func writeCSV(out io.Writer, traj *lab.Trajectory, n int) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"day", "susceptible", "infectious", "removed"}); err != nil {
		return err
	}
	for _, d := range sampledDays(traj, n) {
		s, _ := traj.At(d)
		row := []string{
			strconv.Itoa(s.Day),
			strconv.FormatFloat(s.Susceptible, 'f', 6, 64),
			strconv.FormatFloat(s.Infectious, 'f', 6, 64),
			strconv.FormatFloat(s.Removed, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		names = integrators.Names()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := cfg.Params()
	fmt.Fprintf(out, "comparing integrators (N=%d, beta=%.3f, recovery=%dd, horizon=%dd)\n\n",
		p.TotalCount, p.TransmissionRate, p.RecoveryPeriodDays, p.HorizonDays)
	fmt.Fprintf(out, "%-10s  %8s  %14s  %14s  %12s  %10s\n", "integrator", "peak_day", "peak_I", "final_R", "max_dev", "time_ms")
	fmt.Fprintln(out, strings.Repeat("-", 76))

	var reference *lab.Trajectory
	for _, name := range names {
		cfg.Integrator = name
		ctrl, err := newController(cfg, logger)
		if err != nil {
			fmt.Fprintf(out, "%-10s  error: %v\n", name, err)
			continue
		}

		start := time.Now()
		traj, err := ctrl.Recompute()
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(out, "%-10s  error: %v\n", name, err)
			continue
		}
		if reference == nil {
			reference = traj
		}

		sum := traj.Summary()
		fmt.Fprintf(out, "%-10s  %8d  %14.2f  %14.2f  %12.3e  %10.3f\n",
			name, sum.PeakDay, sum.PeakInfectious, sum.FinalRemoved,
			maxDeviation(reference, traj), float64(elapsed.Microseconds())/1000)
	}

	return nil
}

// maxDeviation is the largest absolute difference between two trajectories
// over all compartments and days.
func maxDeviation(a, b *lab.Trajectory) float64 {
	var dev float64
	series := [][2][]float64{
		{a.Susceptible(), b.Susceptible()},
		{a.Infectious(), b.Infectious()},
		{a.Removed(), b.Removed()},
	}
	for _, pair := range series {
		for d := range pair[0] {
			dev = math.Max(dev, math.Abs(pair[0][d]-pair[1][d]))
		}
	}
	return dev
}
