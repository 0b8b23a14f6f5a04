package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/jointctl/internal/analysis"
	"github.com/san-kum/jointctl/internal/config"
	"github.com/san-kum/jointctl/internal/export"
	"github.com/san-kum/jointctl/internal/filter"
	"github.com/san-kum/jointctl/internal/loop"
	"github.com/san-kum/jointctl/internal/optim"
	"github.com/san-kum/jointctl/internal/service"
	"github.com/san-kum/jointctl/internal/storage"
	"github.com/san-kum/jointctl/internal/viz"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	robot      string
	preset     string
	ticks      int
	seed       int64
	debugLevel int
	addr       string
	outFile    string
	columns    []string
	svgPrefix  string
	// filter design
	order    int
	cutoffHz float64
	sampleHz float64
	points   int
	// tuning
	grid    []string
	metric  string
	workers int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jointctl",
		Short: "joint torque filtering, orientation estimation and tracking control",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".jointctl", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	addConfigFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
		cmd.Flags().StringVar(&robot, "robot", "arm2", "preset robot")
		cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
		cmd.Flags().Int64Var(&seed, "seed", 1, "sensor noise seed")
		cmd.Flags().IntVar(&debugLevel, "debug", 0, "loop debug level (1 = every 200 ticks, 2 = every tick)")
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the loop on the synthetic robot and store the result",
		Args:  cobra.NoArgs,
		RunE:  runLoop,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().IntVar(&ticks, "ticks", config.DefaultTicks, "number of ticks")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json (latest when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (stdout when empty)")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run columns (latest when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringArrayVar(&columns, "graph", []string{"raw0+filtered0", "command0", "accel_angle+angle", "target+current"}, "columns of one graph joined by +, repeat for more graphs")
	plotCmd.Flags().StringVar(&svgPrefix, "svg", "", "also write each graph to <prefix>_<n>.svg")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "power spectrum of raw versus filtered torque",
		Args:  cobra.MaximumNArgs(1),
		RunE:  analyzeRun,
	}

	designCmd := &cobra.Command{
		Use:   "design",
		Short: "print a butterworth torque_filter_params property",
		RunE:  designFilter,
	}
	addDesignFlags(designCmd)

	responseCmd := &cobra.Command{
		Use:   "response",
		Short: "plot the magnitude response of a filter design",
		RunE:  filterResponse,
	}
	addDesignFlags(responseCmd)
	responseCmd.Flags().IntVar(&points, "points", 200, "frequency points")

	presetsCmd := &cobra.Command{
		Use:   "presets [robot]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "live terminal monitor with parameter tuning",
		RunE:  runMonitor,
	}
	addConfigFlags(monitorCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the loop in real time with the http parameter service",
		RunE:  serve,
	}
	addConfigFlags(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (config server.addr when empty)")
	serveCmd.Flags().IntVar(&ticks, "ticks", 0, "stop after this many ticks, 0 runs until interrupted")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search gains against a run metric",
		RunE:  tuneGains,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().IntVar(&ticks, "ticks", config.DefaultTicks, "ticks per evaluation")
	tuneCmd.Flags().StringArrayVar(&grid, "grid", []string{"ke=1:20:8", "tc=0:0.2:5"}, "name=lo:hi:n, repeat per parameter")
	tuneCmd.Flags().StringVar(&metric, "metric", "tracking_error", "metric to minimize")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "parallel evaluations (0 = all cores)")

	rootCmd.AddCommand(runCmd, listCmd, exportCmd, plotCmd, analyzeCmd, designCmd, responseCmd, presetsCmd, monitorCmd, serveCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addDesignFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&order, "order", config.DefaultOrder, "filter order")
	cmd.Flags().Float64Var(&cutoffHz, "cutoff", config.DefaultCutoffHz, "cutoff frequency (Hz)")
	cmd.Flags().Float64Var(&sampleHz, "rate", 1/config.DefaultDt, "sample rate (Hz)")
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
}

// loadConfig resolves --config, then --robot/--preset, then defaults, and
// applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	case preset != "":
		cfg = config.GetPreset(robot, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %s/%s (available: %s)", robot, preset, strings.Join(config.ListPresets(robot), ", "))
		}
	default:
		cfg = config.DefaultConfig()
	}

	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("debug") {
		cfg.DebugLevel = debugLevel
	}
	if f := cmd.Flags().Lookup("ticks"); f != nil && (f.Changed || cmd.Name() == "serve") {
		cfg.Ticks = ticks
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(cfg.LogLevel(log.GetLevel()))
	return cfg, nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Ticks == 0 {
		return fmt.Errorf("run needs a tick count")
	}

	l, err := cfg.NewLoop()
	if err != nil {
		return err
	}
	feed, err := cfg.NewFeed()
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := l.Run(context.Background(), feed, feed)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	_, ff, fb, err := cfg.FilterSpec()
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		Robot:      cfg.Robot,
		Preset:     preset,
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		Joints:     cfg.Joints(),
		Controller: cfg.Controller.Type,
		Filter:     config.FormatFilterParams(ff, fb),
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", runID)
	fmt.Printf("ticks: %d (%d skipped) in %v\n", result.Ticks, result.Skipped, elapsed.Round(time.Microsecond))
	fmt.Printf("per tick: %v\n\n", (elapsed / time.Duration(max(result.Ticks, 1))).Round(time.Nanosecond))
	printMetrics(result.Metrics)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("  %-16s %.6f\n", k, m[k])
	}
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
	fmt.Fprintln(w, "ID\tROBOT\tTIME\tTICKS\tSKIPPED\tDT\tCTRL")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4fs\t%s\n",
			run.ID,
			run.Robot,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Ticks,
			run.Skipped,
			run.Dt,
			run.Controller,
		)
	}

	return w.Flush()
}

// openRun loads the named run, or the latest one when args is empty.
func openRun(args []string) (*storage.RunMetadata, []loop.Record, error) {
	st := storage.New(dataDir)
	runID := ""
	if len(args) > 0 {
		runID = args[0]
	} else {
		id, err := st.Latest()
		if err != nil {
			return nil, nil, err
		}
		runID = id
	}

	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	records, err := st.LoadRecords(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("run %s has no data", runID)
	}
	return meta, records, nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	meta, records, err := openRun(args)
	if err != nil {
		return err
	}
	if outFile == "" {
		return storage.ExportJSON(os.Stdout, *meta, records)
	}
	if err := storage.ExportJSONFile(outFile, *meta, records); err != nil {
		return err
	}
	fmt.Printf("exported %d ticks to %s\n", len(records), outFile)
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, records, err := openRun(args)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("robot: %s\n", meta.Robot)
	fmt.Printf("ticks: %d\n\n", len(records))

	colors := []asciigraph.AnsiColor{asciigraph.Gray, asciigraph.Green, asciigraph.Cyan, asciigraph.Yellow}
	for i, group := range columns {
		names := strings.Split(group, "+")
		series := make([][]float64, 0, len(names))
		for _, name := range names {
			data, err := storage.Column(records, strings.TrimSpace(name))
			if err != nil {
				return err
			}
			series = append(series, data)
		}

		graph := asciigraph.PlotMany(series,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.SeriesColors(colors[:min(len(series), len(colors))]...),
			asciigraph.Caption(strings.Join(names, " / ")),
		)
		fmt.Println(graph)
		fmt.Println()

		if svgPrefix != "" {
			if err := writeSVG(fmt.Sprintf("%s_%d.svg", svgPrefix, i), records, names, series); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSVG(path string, records []loop.Record, names []string, data [][]float64) error {
	t, _ := storage.Column(records, "time")
	series := make([]export.Series, len(data))
	for i := range data {
		series[i] = export.Series{Name: strings.TrimSpace(names[i]), Values: data[i]}
	}
	if err := os.WriteFile(path, []byte(export.SeriesToSVG(t, series, 800, 300)), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, records, err := openRun(args)
	if err != nil {
		return err
	}
	fs := 1 / meta.Dt

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("filter: %s\n\n", meta.Filter)

	var ff, fb []float64
	if meta.Filter != "" {
		if _, ff, fb, err = config.ParseFilterParams(meta.Filter); err != nil {
			return err
		}
	}

	for j := 0; j < meta.Joints; j++ {
		raw, _ := storage.Column(records, fmt.Sprintf("raw%d", j))
		filtered, _ := storage.Column(records, fmt.Sprintf("filtered%d", j))

		freqs, pr := analysis.PowerSpectrum(raw, fs)
		_, pf := analysis.PowerSpectrum(filtered, fs)
		if len(freqs) == 0 {
			return fmt.Errorf("not enough data")
		}

		graph := asciigraph.PlotMany([][]float64{toDB(pr), toDB(pf)},
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Gray, asciigraph.Green),
			asciigraph.Caption(fmt.Sprintf("joint %d power (dB): raw (gray), filtered (green), 0..%.0f Hz", j, fs/2)),
		)
		fmt.Println(graph)

		fmt.Printf("  dominant raw:      %.2f Hz\n", analysis.DominantFrequency(freqs, pr))
		fmt.Printf("  dominant filtered: %.2f Hz\n", analysis.DominantFrequency(freqs, pf))
		if fb != nil {
			fc := analysis.CutoffFrequency(ff, fb, fs)
			fmt.Printf("  cutoff:            %.2f Hz\n", fc)
			fmt.Printf("  attenuation > fc:  %.1f dB\n", analysis.Attenuation(raw, filtered, fs, fc))
		}
		fmt.Println()
	}
	return nil
}

func toDB(power []float64) []float64 {
	out := make([]float64, len(power))
	for i, p := range power {
		out[i] = 10 * math.Log10(math.Max(p, 1e-12))
	}
	return out
}

func designFilter(cmd *cobra.Command, args []string) error {
	ff, fb, err := filter.Butterworth(order, cutoffHz, sampleHz)
	if err != nil {
		return err
	}
	fmt.Printf("# butterworth order %d, cutoff %g Hz, sample rate %g Hz\n", order, cutoffHz, sampleHz)
	fmt.Printf("%s: \"%s\"\n", config.PropFilterParams, config.FormatFilterParams(ff, fb))
	return nil
}

func filterResponse(cmd *cobra.Command, args []string) error {
	ff, fb, err := filter.Butterworth(order, cutoffHz, sampleHz)
	if err != nil {
		return err
	}
	_, mag := analysis.FrequencyResponse(ff, fb, sampleHz, points)
	db := make([]float64, len(mag))
	for i, m := range mag {
		db[i] = math.Max(analysis.MagnitudeDB(m), -120)
	}

	graph := asciigraph.Plot(db,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("magnitude (dB), 0..%g Hz", sampleHz/2)),
	)
	fmt.Println(graph)
	fmt.Printf("\n-3 dB at %.3f Hz\n", analysis.CutoffFrequency(ff, fb, sampleHz))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	robots := config.ListRobots()
	if len(args) > 0 {
		robots = args
	}
	for _, r := range robots {
		names := config.ListPresets(r)
		if names == nil {
			return fmt.Errorf("unknown robot %q", r)
		}
		fmt.Printf("%s:\n", r)
		for _, n := range names {
			c := config.GetPreset(r, n)
			fmt.Printf("  %-12s joints=%d filter=%d/%gHz ke=%g tc=%g gravity=%v\n",
				n, c.Joints(), c.Filter.Order, c.Filter.CutoffHz, c.Controller.Ke, c.Controller.Tc, c.Compensate)
		}
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Ticks = 0

	// keep log lines from tearing the terminal UI
	log.SetLevel(log.ErrorLevel)

	l, err := cfg.NewLoop()
	if err != nil {
		return err
	}
	feed, err := cfg.NewFeed()
	if err != nil {
		return err
	}

	p := tea.NewProgram(viz.NewModel(l, feed, feed, cfg.Dt, cfg.Robot), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Realtime = true
	if addr != "" {
		cfg.Server.Addr = addr
	}

	l, err := cfg.NewLoop()
	if err != nil {
		return err
	}
	feed, err := cfg.NewFeed()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := service.New(cfg.Server.Addr, l)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()

	type outcome struct {
		res *loop.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := l.Run(ctx, feed, feed)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case err := <-srvErr:
		stop()
		<-done
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}

	if out.err != nil && !loop.IsCanceled(out.err) {
		return out.err
	}
	if out.res == nil {
		return errors.New("loop ended without a result")
	}
	fmt.Printf("ticks: %d (%d skipped)\n", out.res.Ticks, out.res.Skipped)
	printMetrics(out.res.Metrics)
	return nil
}

// parseGrid reads name=lo:hi:n axes.
func parseGrid(specs []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(specs))
	ranges := make([][]float64, 0, len(specs))
	for _, spec := range specs {
		name, rng, ok := strings.Cut(spec, "=")
		parts := strings.Split(rng, ":")
		if !ok || len(parts) != 3 {
			return nil, nil, fmt.Errorf("bad grid %q, want name=lo:hi:n", spec)
		}
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, nil, fmt.Errorf("bad grid %q: %w", spec, err)
		}
		names = append(names, strings.TrimSpace(name))
		ranges = append(ranges, optim.Linspace(lo, hi, n))
	}
	return names, ranges, nil
}

func tuneGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	gs.Workers = workers
	if pts := gs.Points(); len(pts) > 0 {
		if _, err := cfg.Tuned(pts[0]); err != nil {
			return err
		}
	}

	eval := func(ctx context.Context, params map[string]float64) (map[string]float64, error) {
		c, err := cfg.Tuned(params)
		if err != nil {
			return nil, err
		}
		l, err := c.NewLoop()
		if err != nil {
			return nil, err
		}
		feed, err := c.NewFeed()
		if err != nil {
			return nil, err
		}
		res, err := l.Run(ctx, feed, feed)
		if err != nil {
			return nil, err
		}
		return res.Metrics, nil
	}

	start := time.Now()
	best, all, err := gs.Search(context.Background(), eval, metric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for _, c := range all {
		vals := make([]string, len(names))
		for i, n := range names {
			vals[i] = strconv.FormatFloat(c.Params[n], 'g', 4, 64)
		}
		result := "error: "
		if c.Err != nil {
			result += c.Err.Error()
		} else {
			result = strconv.FormatFloat(c.Metrics[metric], 'f', 6, 64)
		}
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(vals, "\t"), result)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d points in %v\n", len(all), time.Since(start).Round(time.Millisecond))
	fmt.Printf("best %s = %.6f at", metric, best.Metrics[metric])
	for _, n := range names {
		fmt.Printf(" %s=%g", n, best.Params[n])
	}
	fmt.Println()
	return nil
}
