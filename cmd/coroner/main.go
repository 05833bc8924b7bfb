package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/myth/coroner/internal/config"
	"github.com/myth/coroner/internal/integrators"
	"github.com/myth/coroner/internal/lab"
	"github.com/myth/coroner/internal/metrics"
	"github.com/myth/coroner/internal/tui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configFile    string
	preset        string
	logLevel      string
	population    int
	horizon       int
	infectious    int
	removed       int
	beta          float64
	recoveryDays  int
	integrator    string
	normalization string
	// lab
	metricsAddr string
	logFile     string
	// run
	format string
	every  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "coroner",
		Short:         "SIR epidemic lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLab,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "start from a named preset")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.IntVar(&population, "population", config.DefaultPopulation, "reference population")
	pf.IntVar(&horizon, "horizon", config.DefaultHorizon, "days to simulate")
	pf.IntVar(&infectious, "infectious", config.DefaultInfectious, "initially infectious")
	pf.IntVar(&removed, "removed", 0, "initially removed")
	pf.Float64Var(&beta, "beta", config.DefaultBeta, "transmission rate")
	pf.IntVar(&recoveryDays, "recovery-days", config.DefaultRecoveryDays, "mean recovery period in days")
	pf.StringVar(&integrator, "integrator", integrators.Default, "integrator ("+strings.Join(integrators.Names(), ", ")+")")
	pf.StringVar(&normalization, "normalization", string(lab.NormalizeTotal), "normalization (total, exclude-removed)")

	labCmd := &cobra.Command{
		Use:   "lab",
		Short: "interactive parameter editor",
		RunE:  runLab,
	}
	for _, c := range []*cobra.Command{rootCmd, labCmd} {
		c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
		c.Flags().StringVar(&logFile, "log-file", "", "write logs here while the editor owns the terminal")
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "solve once and print the trajectory",
		Args:  cobra.NoArgs,
		RunE:  runOnce,
	}
	runCmd.Flags().StringVar(&format, "format", "table", "output format (table, csv, json)")
	runCmd.Flags().IntVar(&every, "every", 1, "print every Nth day")

	compareCmd := &cobra.Command{
		Use:   "compare [integrator1] [integrator2] ...",
		Short: "compare integrators on the same parameters",
		RunE:  compareIntegrators,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the effective configuration to a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(labCmd, runCmd, compareCmd, newSweepCmd(), presetsCmd, initCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers preset, config file and explicitly set flags, in that
// order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("population") {
		cfg.Population = population
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("infectious") {
		cfg.Lab.Infectious = infectious
	}
	if flags.Changed("removed") {
		cfg.Lab.Removed = removed
	}
	if flags.Changed("beta") {
		cfg.Lab.Beta = beta
	}
	if flags.Changed("recovery-days") {
		cfg.Lab.RecoveryDays = recoveryDays
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("normalization") {
		cfg.Normalization = normalization
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	})), nil
}

func newController(cfg *config.Config, logger *slog.Logger, extra ...lab.Option) (*lab.Controller, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, lab.WithLogger(logger))
	opts = append(opts, extra...)
	return lab.New(cfg.Params(), opts...)
}

func runLab(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// the editor owns stdout and stderr, so logs go to a file or nowhere
	logOut := io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger, err := newLogger(logOut)
	if err != nil {
		return err
	}

	var extra []lab.Option
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		extra = append(extra, lab.WithObserver(metrics.NewCollector(reg)))

		srv := metrics.NewServer(metricsAddr, reg, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctrl, err := newController(cfg, logger, extra...)
	if err != nil {
		return err
	}
	return tui.Run(ctrl)
}

func listPresets(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "presets:")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name).Params()
		fmt.Fprintf(out, "  %-10s  N=%d I=%d R=%d beta=%.2f recovery=%dd horizon=%dd R0=%.2f\n",
			name, p.TotalCount, p.InitialInfectious, p.InitialRemoved,
			p.TransmissionRate, p.RecoveryPeriodDays, p.HorizonDays, p.R0())
	}
	return nil
}
