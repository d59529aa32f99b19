package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/rolltune/internal/analysis"
	"github.com/san-kum/rolltune/internal/config"
	"github.com/san-kum/rolltune/internal/control"
	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/experiment"
	"github.com/san-kum/rolltune/internal/metrics"
	"github.com/san-kum/rolltune/internal/monitoring"
	"github.com/san-kum/rolltune/internal/optim"
	"github.com/san-kum/rolltune/internal/plant"
	"github.com/san-kum/rolltune/internal/report"
	"github.com/san-kum/rolltune/internal/storage"
	"github.com/san-kum/rolltune/internal/storage/sqlite"
)

var (
	dataDir    string
	configFile string
	preset     string
	quiet      bool
	// sqlite history: opt-in for tune, read by history
	tuneHistoryDB string
	historyPath   string
	// overrides
	iterations int
	kp         float64
	ki         float64
	kd         float64
	policy     string
	timeout    string
	integrator string
	controller string
	seedGrid   string
	// plot
	iteration int
	pngOut    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rolltune",
		Short: "roll controller tuning lab",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if quiet {
				monitoring.SetLogger(nil)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rolltune", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-iteration log lines")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "iteratively tune PID gains against the reference plant",
		RunE:  runTune,
	}
	addSessionFlags(tuneCmd)
	tuneCmd.Flags().IntVar(&iterations, "iterations", 0, "number of tuning iterations")
	tuneCmd.Flags().StringVar(&policy, "policy", "", "failure policy: skip or abort")
	tuneCmd.Flags().StringVar(&timeout, "timeout", "", "per-iteration simulation timeout (e.g. 30s)")
	tuneCmd.Flags().StringVar(&tuneHistoryDB, "history-db", "", "sqlite database to record snapshots in")
	tuneCmd.Flags().StringVar(&seedGrid, "seed-grid", "", "grid search starting gains first: kp1,kp2;ki1,ki2;kd1,kd2")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "fly once with fixed gains and analyze the response",
		RunE:  runSimulate,
	}
	addSessionFlags(simulateCmd)
	simulateCmd.Flags().StringVar(&controller, "controller", "", "controller (roll, none)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	historyCmd := &cobra.Command{
		Use:   "history [run_id]",
		Short: "show snapshots recorded in the history database",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showHistory,
	}
	historyCmd.Flags().StringVar(&historyPath, "history-db", "rolltune.db", "sqlite history database")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot gain history and a recorded flight",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&iteration, "iteration", -1, "iteration whose trace to plot (default: latest)")
	plotCmd.Flags().BoolVar(&pngOut, "png", false, "also write PNG plots into the run directory")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("presets:")
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")

	rootCmd.AddCommand(tuneCmd, simulateCmd, listCmd, historyCmd, plotCmd, presetsCmd, initCmd)
	return rootCmd
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&integrator, "integrator", "", "integrator (euler, rk4)")
	cmd.Flags().Float64Var(&kp, "kp", 0, "initial proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", 0, "initial integral gain")
	cmd.Flags().Float64Var(&kd, "kd", 0, "initial derivative gain")
}

// loadConfig resolves defaults, then preset, then config file.
func loadConfig() (*config.Config, error) {
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
	return cfg, nil
}

// applyFlags lets explicit command-line flags override the configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("kp") {
		cfg.Controller.Gains.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.Controller.Gains.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.Controller.Gains.Kd = kd
	}
	if flags.Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}
	if flags.Lookup("iterations") != nil && flags.Changed("iterations") {
		cfg.Loop.Iterations = iterations
	}
	if flags.Lookup("policy") != nil && flags.Changed("policy") {
		cfg.Loop.FailurePolicy = policy
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		cfg.Loop.IterationTimeout = timeout
	}
	if flags.Lookup("controller") != nil && flags.Changed("controller") {
		cfg.Sim.Controller = controller
	}
}

func newEngine(cfg *config.Config) (*plant.Engine, error) {
	integ, err := experiment.NewRegistry().GetIntegrator(cfg.Sim.Integrator)
	if err != nil {
		return nil, err
	}
	engine, err := plant.NewEngine(plant.NewRollPlant(cfg.Plant), integ, cfg.SimConfig())
	if err != nil {
		return nil, err
	}
	cc := cfg.ControlConfig()
	for _, m := range metrics.Default(cc.StartTime, cc.MaxFinAngle) {
		engine.AddMetric(m)
	}
	return engine, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	tuner, err := optim.NewGainTuner(cfg.Tuning)
	if err != nil {
		return err
	}
	loopCfg, err := cfg.LoopConfig()
	if err != nil {
		return err
	}
	ctrlCfg := cfg.ControlConfig()

	initial := ctrlCfg.Gains
	if seedGrid != "" {
		initial, err = searchSeed(ctx, cfg, engine, seedGrid)
		if err != nil {
			return err
		}
		fmt.Printf("grid search picked %v\n", initial)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Create(storage.RunMetadata{
		Kind:         "tune",
		Preset:       preset,
		Integrator:   cfg.Sim.Integrator,
		Controller:   "roll",
		Dt:           cfg.Sim.Dt,
		Duration:     cfg.Sim.Duration,
		SetpointDeg:  cfg.Controller.SetpointDeg,
		Iterations:   loopCfg.Iterations,
		InitialGains: initial,
	})
	if err != nil {
		return err
	}

	reporters := report.MultiReporter{report.NewConsole(os.Stdout), st.Reporter(runID)}
	if tuneHistoryDB != "" {
		db, err := sqlite.Open(tuneHistoryDB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.RecordRun(ctx, runID, "tune", cfg.Controller.SetpointDeg); err != nil {
			return err
		}
		reporters = append(reporters, db.Reporter(runID))
	}

	loop, err := experiment.NewLoop(loopCfg, ctrlCfg, engine, tuner, reporters)
	if err != nil {
		return err
	}

	fmt.Printf("tuning %d iterations from %v...\n", loopCfg.Iterations, initial)
	start := time.Now()

	res, runErr := loop.Run(ctx, initial)

	if err := st.Finish(runID, res, runErr); err != nil {
		return err
	}
	if len(res.History) > 0 {
		gainsPNG := filepath.Join(dataDir, runID, "gains.png")
		if err := report.SaveGainsPNG(gainsPNG, append(res.History, res.Gains)); err != nil {
			monitoring.Logf("gain plot: %v", err)
		}
	}

	fmt.Printf("\ncompleted in %v\n", time.Since(start))
	fmt.Printf("run id: %s\n", runID)
	fmt.Println(report.Summary(res, runErr))

	return runErr
}

// searchSeed parses "kp1,kp2;ki1;kd1,kd2" and returns the best scoring
// candidate from a single flight each.
func searchSeed(ctx context.Context, cfg *config.Config, engine *plant.Engine, spec string) (dynamo.GainVector, error) {
	axes := strings.Split(spec, ";")
	if len(axes) != 3 {
		return dynamo.GainVector{}, fmt.Errorf("seed grid needs three ';'-separated axes, got %d", len(axes))
	}
	values := make([][]float64, 3)
	for i, axis := range axes {
		for _, f := range strings.Split(axis, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return dynamo.GainVector{}, fmt.Errorf("seed grid: %w", err)
			}
			values[i] = append(values[i], v)
		}
	}

	ctrlCfg := cfg.ControlConfig()
	analyzer := analysis.Analyzer{StartTime: ctrlCfg.StartTime, ManeuverLevel: cfg.Loop.ManeuverLevel}
	grid := optim.NewGridSearch(values[0], values[1], values[2])
	fmt.Printf("grid search over %d candidates...\n", grid.Size())

	best, score, err := grid.Search(ctx, func(ctx context.Context, g dynamo.GainVector) (float64, error) {
		c := ctrlCfg
		c.Gains = g
		trace, err := engine.Simulate(ctx, control.NewRoll(c))
		if err != nil {
			return 0, err
		}
		m, err := analyzer.Analyze(trace, c.SetpointRoll)
		if err != nil {
			return 0, err
		}
		return optim.Cost(m, cfg.Tuning), nil
	})
	if err != nil {
		return dynamo.GainVector{}, err
	}
	fmt.Printf("best cost: %.4f\n", score)
	return best, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	ctrlCfg := cfg.ControlConfig()
	ctrl, err := experiment.NewRegistry().GetController(cfg.Sim.Controller, ctrlCfg)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("flying %s controller with %v...\n", cfg.Sim.Controller, ctrlCfg.Gains)
	start := time.Now()

	trace, err := engine.Simulate(context.Background(), ctrl)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Create(storage.RunMetadata{
		Kind:         "simulate",
		Preset:       preset,
		Integrator:   cfg.Sim.Integrator,
		Controller:   cfg.Sim.Controller,
		Dt:           cfg.Sim.Dt,
		Duration:     cfg.Sim.Duration,
		SetpointDeg:  cfg.Controller.SetpointDeg,
		InitialGains: ctrlCfg.Gains,
		FinalGains:   ctrlCfg.Gains,
		Metrics:      engine.Metrics(),
	})
	if err != nil {
		return err
	}
	if err := st.SaveTrace(runID, 0, trace); err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("samples: %d\n", trace.Len())

	m, err := analysis.Analyzer{StartTime: ctrlCfg.StartTime, ManeuverLevel: cfg.Loop.ManeuverLevel}.Analyze(trace, ctrlCfg.SetpointRoll)
	if err != nil {
		return err
	}
	fmt.Printf("\nresponse: %v\n", m)
	for _, level := range []int{-50, -20, -5, 0} {
		if at, ok := m.TimeToErrorLevel.At(level); ok {
			fmt.Printf("  reached %+d%% at %.3fs\n", level, at)
		} else {
			fmt.Printf("  never reached %+d%%\n", level)
		}
	}
	if freq, err := analysis.DominantFrequency(trace.Since(ctrlCfg.StartTime)); err == nil {
		fmt.Printf("  dominant roll-rate oscillation: %.3f Hz\n", freq)
	}

	fmt.Println("\nmetrics:")
	vals := engine.Metrics()
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, vals[name])
	}

	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tITER\tINTEG\tFINAL GAINS\tSTATUS")

	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = run.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%v\t%s\n",
			run.ID,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Completed,
			run.Iterations,
			run.Integrator,
			run.FinalGains,
			status,
		)
	}

	return w.Flush()
}

func showHistory(cmd *cobra.Command, args []string) error {
	db, err := sqlite.Open(historyPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}
	rows, err := db.Snapshots(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no snapshots found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tITER\tKP\tKI\tKD\tOVERSHOOT\tOSC\tSSE\tSAT")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%.6g\t%.6g\t%.6g\t%.2f%%\t%d\t%.3f%%\t%d\n",
			r.RunID, r.Iteration, r.Gains.Kp, r.Gains.Ki, r.Gains.Kd,
			r.OvershootPercent, r.OscillationCount, r.SteadyStateErrorPercent, r.Saturations)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s (%s)\n\n", meta.ID, meta.Kind)

	history, err := st.LoadHistory(runID)
	if err == nil && len(history) > 0 {
		fmt.Println(report.GainsASCII(history))
		fmt.Println()
		if pngOut {
			if err := report.SaveGainsPNG(filepath.Join(dataDir, runID, "gains.png"), history); err != nil {
				return err
			}
		}
	}

	iter := iteration
	if iter < 0 {
		iter = latestTrace(filepath.Join(dataDir, runID))
	}
	trace, err := st.LoadTrace(runID, iter)
	if err != nil {
		return fmt.Errorf("no trace for iteration %d: %w", iter, err)
	}
	if trace.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("iteration %d, samples: %d\n\n", iter, trace.Len())
	fmt.Println(report.TraceASCII(trace))

	if pngOut {
		path := filepath.Join(dataDir, runID, fmt.Sprintf("trace_%03d.png", iter))
		if err := report.SaveTracePNG(path, trace); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", path)
	}
	return nil
}

func latestTrace(dir string) int {
	matches, _ := filepath.Glob(filepath.Join(dir, "trace_*.csv"))
	latest := 0
	for _, m := range matches {
		base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "trace_"), ".csv")
		if n, err := strconv.Atoi(base); err == nil && n > latest {
			latest = n
		}
	}
	return latest
}
