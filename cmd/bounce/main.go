package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/bounce/internal/analysis"
	"github.com/san-kum/bounce/internal/audio"
	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/export"
	"github.com/san-kum/bounce/internal/gui"
	"github.com/san-kum/bounce/internal/logging"
	"github.com/san-kum/bounce/internal/metrics"
	"github.com/san-kum/bounce/internal/midiout"
	"github.com/san-kum/bounce/internal/optim"
	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/server"
	"github.com/san-kum/bounce/internal/settings"
	"github.com/san-kum/bounce/internal/sim"
	"github.com/san-kum/bounce/internal/storage"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/tui"
	"github.com/san-kum/bounce/internal/viz"
)

var (
	dataDir    string
	configFile string
	logLevel   string
	backend    string

	duration  float64
	fps       int
	seed      int64
	tempo     int
	timbre    string
	live      bool
	noSave    bool
	wavOut    string
	jsonOut   string
	peakCount int
	runs      int
	workers   int

	addr     string
	snapRate int

	sweepParams []string
	sweepMetric string
	sweepMax    bool

	svgOut   string
	svgNotes bool
	svgSize  int
)

// runawaySpeed is the ball speed the stability metric counts as a
// solver blow-up.
const runawaySpeed = 40.0

// main registers the commands and runs the root; with no subcommand the
// 3D viewer opens on the preset menu.
func main() {
	rootCmd := &cobra.Command{
		Use:           "bounce",
		Short:         "contraption physics and reactive audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGUI,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error or none")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "audio backend: beep, midi or none")
	rootCmd.PersistentFlags().StringVar(&timbre, "timbre", "", "timbre preset")
	rootCmd.PersistentFlags().IntVar(&tempo, "tempo", 0, "tempo in bpm")

	runCmd := &cobra.Command{
		Use:   "run [preset|scene.yaml|run_id]",
		Short: "run a scene headless and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	runCmd.Flags().Float64Var(&duration, "time", 0, "duration in seconds")
	runCmd.Flags().IntVar(&fps, "fps", 0, "frames per second")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "spawn jitter seed")
	runCmd.Flags().BoolVar(&live, "live", false, "draw the run in the terminal in real time")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&wavOut, "wav", "", "render the notes to a wav file")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "write the full result as json")
	runCmd.Flags().IntVar(&runs, "runs", 1, "repeat the run under consecutive seeds and summarize")
	runCmd.Flags().IntVar(&workers, "workers", 1, "runs stepped at once with --runs")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot note activity per voice",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [file.wav]",
		Short: "spectrum analysis of a rendered wav",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeWAV,
	}
	analyzeCmd.Flags().IntVar(&peakCount, "peaks", 5, "number of partials to report")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "terminal sequencer and scene editor",
		RunE:  runTUI,
	}
	tuiCmd.Flags().IntVar(&fps, "fps", 30, "frames per second")

	guiCmd := &cobra.Command{
		Use:   "gui [preset]",
		Short: "3D viewer and editor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGUI,
	}

	serveCmd := &cobra.Command{
		Use:   "serve [preset]",
		Short: "serve a scene over http and websocket",
		Args:  cobra.MaximumNArgs(1),
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().IntVar(&snapRate, "snapshots", 30, "snapshots per second sent to clients")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scene presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTEMPO\tWALLS\tDISPENSERS\tDESCRIPTION")
			for _, name := range config.ListPresets() {
				p := config.Presets[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", name, p.Tempo, len(p.Walls), len(p.Dispensers), p.Description)
			}
			return w.Flush()
		},
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "show or change the saved tempo and timbre",
		RunE:  editSettings,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [preset|scene.yaml|run_id]",
		Short: "write a scene, or a run's notes, as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&svgOut, "out", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().BoolVar(&svgNotes, "notes", false, "plot a stored run's notes instead of its scene")
	exportSVGCmd.Flags().IntVar(&svgSize, "size", 600, "image width in pixels")
	exportSVGCmd.Flags().Float64Var(&duration, "time", 0, "simulate this long before drawing")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset|scene.yaml|run_id]",
		Short: "grid search engine parameters over headless runs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweep,
	}
	sweepCmd.Flags().StringArrayVarP(&sweepParams, "param", "p", nil,
		"name=values, values as lo:hi:count or a comma list; names: "+strings.Join(optim.Params(), ", "))
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "notes", "metric or counter to score by")
	sweepCmd.Flags().BoolVar(&sweepMax, "max", false, "higher scores win")
	sweepCmd.Flags().Float64Var(&duration, "time", 0, "duration of each run in seconds")
	sweepCmd.Flags().Int64Var(&seed, "seed", 0, "spawn jitter seed")

	midiCmd := &cobra.Command{
		Use:   "midi-ports",
		Short: "list midi output ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := midiout.Ports()
			if err != nil {
				return err
			}
			for i, p := range ports {
				fmt.Printf("%d  %s\n", i, p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, analyzeCmd, tuiCmd, guiCmd, serveCmd, presetsCmd, settingsCmd, exportSVGCmd, sweepCmd, midiCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, viz.StatusError.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// env is what every command starts from.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	prefs  *settings.Manager
}

// setup layers the config: defaults, saved preferences, the config file,
// .env and BOUNCE_* variables, then flags.
func setup(cmd *cobra.Command) (*env, error) {
	boot := logging.New(firstNonEmpty(logLevel, os.Getenv("BOUNCE_LOG_LEVEL"), config.DefaultLogLevel), os.Stderr)

	prefs := settings.Open(boot)
	if err := prefs.Load(); err != nil {
		boot.Warn("load settings", "err", err)
	}

	cfg := config.DefaultConfig()
	prefs.Apply(cfg)
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.ApplyEnv(cfg, ".env")

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("backend") {
		cfg.Audio.Backend = backend
	}
	if flags.Changed("timbre") {
		cfg.Audio.Timbre = timbre
	}
	if flags.Changed("tempo") {
		cfg.Sequencer.Tempo = tempo
		cfg.Scene.Tempo = tempo
	}
	if f := flags.Lookup("time"); f != nil && f.Changed {
		cfg.Run.Duration = duration
	}
	if f := flags.Lookup("fps"); f != nil && f.Changed {
		cfg.Run.FPS = fps
	}
	if f := flags.Lookup("seed"); f != nil && f.Changed {
		cfg.Sequencer.Seed = seed
	}
	cfg.Validate()

	return &env{cfg: cfg, logger: logging.New(cfg.LogLevel, os.Stderr), prefs: prefs}, nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveScene finds a scene by preset name, yaml path or stored run id.
func (e *env) resolveScene(arg string) (config.Scene, error) {
	if arg == "" {
		return e.cfg.Scene, nil
	}
	if p := config.GetPreset(arg); p != nil {
		return p.Scene, nil
	}
	if ext := strings.ToLower(filepath.Ext(arg)); ext == ".yaml" || ext == ".yml" {
		return config.LoadScene(arg)
	}
	scene, err := storage.New(e.cfg.DataDir).LoadScene(arg)
	if err != nil {
		return config.Scene{}, fmt.Errorf("no preset, scene file or run named %q (presets: %s)", arg, strings.Join(config.ListPresets(), ", "))
	}
	return scene, nil
}

// useScene makes scene the config's scene; its own tempo wins unless one
// was asked for on the command line.
func (e *env) useScene(cmd *cobra.Command, scene config.Scene) {
	if cmd.Flags().Changed("tempo") || scene.Tempo == 0 {
		scene.Tempo = e.cfg.Sequencer.Tempo
	}
	e.cfg.Scene = scene
	e.cfg.Sequencer.Tempo = scene.Tempo
}

// output is an opened audio backend.
type output struct {
	synth    synth.Synthesizer
	gate     *synth.Gate
	onTimbre func(string)
	close    func() error
}

// openOutput opens the configured backend. A device that fails to open
// leaves a closed gate, so the engine runs silent.
func (e *env) openOutput() *output {
	a := e.cfg.Audio
	log := e.logger.With("component", "audio")
	switch a.Backend {
	case "beep":
		s := audio.NewSynth(a.Timbre, a.SampleRate, a.Volume)
		gate := synth.NewGate()
		out := &output{synth: s, gate: gate, onTimbre: s.SetTimbre, close: func() error { return nil }}
		dev, err := audio.OpenOutput(s, a.SampleRate, gate, log)
		if err != nil {
			log.Warn("audio output unavailable, running silent", "err", err)
			return out
		}
		out.close = dev.Close
		return out
	case "midi":
		m, err := midiout.Open(a.MidiPort, midiout.WithLogger(log))
		if err != nil {
			log.Warn("midi output unavailable, running silent", "err", err)
			return &output{synth: synth.Nop{}, gate: synth.NewGate(), close: func() error { return nil }}
		}
		return &output{synth: m, gate: synth.OpenGate(), close: m.Close}
	default:
		return &output{synth: synth.Nop{}, gate: synth.OpenGate(), close: func() error { return nil }}
	}
}

func (e *env) saveTimbre(out *output) func(string) {
	return func(name string) {
		name = e.prefs.SetTimbre(name)
		if out.onTimbre != nil {
			out.onTimbre(name)
		}
		if err := e.prefs.Save(); err != nil {
			e.logger.Warn("save settings", "err", err)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScene(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	scene, err := e.resolveScene(arg)
	if err != nil {
		return err
	}
	e.useScene(cmd, scene)
	cfg := e.cfg
	if runs > 1 {
		return runEnsemble(e)
	}

	timeline := audio.NewTimeline(nil)
	out := &output{synth: synth.Nop{}, gate: synth.OpenGate(), close: func() error { return nil }}
	if live {
		out = e.openOutput()
	}
	defer out.close()

	opts := []sim.Option{
		sim.WithLogger(e.logger),
		sim.WithGate(out.gate),
		sim.WithMetrics(runMetrics(cfg)()...),
	}
	var renderer *tui.LiveRenderer
	if live {
		renderer = tui.NewLiveRenderer(os.Stdout, 80, 24, cfg.Run.FPS)
		opts = append(opts, sim.WithObserver(renderer), sim.WithWallClock())
	}

	engine := sim.New(cfg, synth.Fanout{timeline, out.synth}, opts...)
	defer engine.Dispose()
	timeline.SetClock(engine.Time)

	if err := engine.LoadScene(cfg.Scene); err != nil {
		if !errors.Is(err, dynamo.ErrDegenerateGeometry) {
			return err
		}
		e.logger.Warn("scene has invalid pieces", "err", err)
	}

	fmt.Printf("running %s for %.1fs at %d bpm...\n", viz.Title.Render(cfg.Scene.Name), cfg.Run.Duration, engine.Tempo())
	start := time.Now()

	var result *sim.Result
	if live {
		if cfg.Scene.Viewport != nil {
			renderer.SetView(*cfg.Scene.Viewport)
		} else {
			renderer.SetView(viz.FitView(engine.Snapshot(), 1, viz.DefaultView))
		}
		ctx, cancel := signalContext()
		defer cancel()
		ctx, stop := context.WithTimeout(ctx, time.Duration(cfg.Run.Duration*float64(time.Second)))
		defer stop()

		renderer.Start()
		err = engine.RunRealtime(ctx, cfg.Run.FPS)
		renderer.Stop()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return err
		}
		result = engine.Result()
	} else {
		result, err = engine.Run(context.Background(), sim.RunConfig{Duration: cfg.Run.Duration, FPS: cfg.Run.FPS})
		if err != nil {
			return err
		}
	}
	printResult(result, time.Since(start))

	if !noSave {
		st := storage.New(cfg.DataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(cfg, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", viz.MetricValue.Render(id))
	}
	if jsonOut != "" {
		if err := storage.ExportJSON(jsonOut, cfg, result); err != nil {
			return err
		}
		fmt.Printf("result written to %s\n", jsonOut)
	}
	if wavOut != "" {
		if err := renderWAV(wavOut, timeline, cfg, result.Time); err != nil {
			return err
		}
		fmt.Printf("audio written to %s\n", wavOut)
	}
	return nil
}

func runMetrics(cfg *config.Config) func() []dynamo.Metric {
	return func() []dynamo.Metric {
		return []dynamo.Metric{
			metrics.NewEnergy(cfg.Physics.Gravity, cfg.Physics.FloorY),
			metrics.NewPeakHeight(),
			metrics.NewPopulation(),
			metrics.NewStability(runawaySpeed),
		}
	}
}

// runEnsemble repeats the scene under seeds seed..seed+runs-1 and prints
// one row per run plus the mean.
func runEnsemble(e *env) error {
	cfg := e.cfg
	ens := sim.NewEnsemble(cfg, runs, cfg.Sequencer.Seed, runMetrics(cfg))
	ens.Workers = workers

	ctx, cancel := signalContext()
	defer cancel()
	fmt.Printf("running %s %d times for %.1fs...\n", viz.Title.Render(cfg.Scene.Name), runs, cfg.Run.Duration)
	start := time.Now()
	results, err := ens.Run(ctx, sim.RunConfig{Duration: cfg.Run.Duration, FPS: cfg.Run.FPS})
	if err != nil {
		return err
	}

	names := make([]string, 0)
	for name := range results[0].Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SEED\tNOTES\tBALLS\t%s\n", strings.ToUpper(strings.Join(names, "\t")))
	mean := make([]float64, len(names))
	var notes, balls float64
	for i, r := range results {
		row := []string{fmt.Sprint(cfg.Sequencer.Seed + int64(i)), fmt.Sprint(len(r.Triggers)), fmt.Sprint(r.Stats.Spawned)}
		notes += float64(len(r.Triggers))
		balls += float64(r.Stats.Spawned)
		for j, name := range names {
			row = append(row, fmt.Sprintf("%.4f", r.Metrics[name]))
			mean[j] += r.Metrics[name]
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	n := float64(len(results))
	row := []string{"mean", fmt.Sprintf("%.1f", notes/n), fmt.Sprintf("%.1f", balls/n)}
	for j := range mean {
		row = append(row, fmt.Sprintf("%.4f", mean[j]/n))
	}
	fmt.Fprintln(w, strings.Join(row, "\t"))
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printResult(r *sim.Result, elapsed time.Duration) {
	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("%s %d  %s %.2fs  %s %d  %s %d\n",
		viz.MetricLabel.Render("frames"), r.Frames,
		viz.MetricLabel.Render("time"), r.Time,
		viz.MetricLabel.Render("notes"), len(r.Triggers),
		viz.MetricLabel.Render("balls"), r.Stats.Spawned,
	)
	fmt.Printf("%s routed=%d suppressed=%d ignored=%d  %s played=%d dropped=%d failed=%d\n",
		viz.MetricLabel.Render("collisions"), r.Stats.Collision.Routed, r.Stats.Collision.Suppressed, r.Stats.Collision.Ignored,
		viz.MetricLabel.Render("synth"), r.Stats.Synth.Played, r.Stats.Synth.Dropped, r.Stats.Synth.Failed,
	)
	fmt.Println(viz.Subtle.Render("metrics:"))
	for name, v := range r.Metrics {
		fmt.Printf("  %s: %s\n", name, viz.MetricValue.Render(fmt.Sprintf("%.4f", v)))
	}
}

func renderWAV(path string, tl *audio.Timeline, cfg *config.Config, seconds float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return audio.Render(f, tl, audio.RenderOptions{
		Timbre:     audio.LookupTimbre(cfg.Audio.Timbre),
		SampleRate: cfg.Audio.SampleRate,
		Volume:     cfg.Audio.Volume,
		Seconds:    seconds,
		Percussion: true,
	})
}

func listRuns(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	runs, err := storage.New(e.cfg.DataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tTEMPO\tTIMBRE\tDURATION\tNOTES\tTIMESTAMP")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.1fs\t%d\t%s\n",
			r.ID, r.Scene, r.Tempo, r.Timbre, r.Duration, r.Triggers, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	st := storage.New(e.cfg.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	triggers, err := st.LoadTriggers(args[0])
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		fmt.Println("run has no notes")
		return nil
	}

	const bins = 60
	perVoice := map[int][][2]float64{}
	var voices []int
	for _, t := range triggers {
		if _, ok := perVoice[t.Voice]; !ok {
			voices = append(voices, t.Voice)
		}
		perVoice[t.Voice] = append(perVoice[t.Voice], [2]float64{t.Time, t.Intensity})
	}
	series := make([][]float64, 0, len(voices))
	for _, v := range voices {
		hits := perVoice[v]
		times := make([]float64, len(hits))
		weights := make([]float64, len(hits))
		for i, h := range hits {
			times[i], weights[i] = h[0], h[1]
		}
		series = append(series, viz.Bin(times, weights, meta.Duration, bins))
	}

	fmt.Println(viz.Title.Render(meta.ID))
	fmt.Println(viz.PlotVoices(series, "note intensity per voice over time", bins, 12))
	fmt.Println()

	notes := make([]string, 0, 8)
	seen := map[string]bool{}
	for _, t := range triggers {
		n, ok := pitch.ByMidi(t.Midi)
		if t.Bound && ok && !seen[n.Name] {
			seen[n.Name] = true
			notes = append(notes, viz.NoteBadge(n.Name, pitch.NoteToHex(n)))
		}
	}
	fmt.Println(strings.Join(notes, " "))
	return nil
}

func analyzeWAV(cmd *cobra.Command, args []string) error {
	samples, rate, err := analysis.ReadWAV(args[0])
	if err != nil {
		return err
	}
	r := analysis.Analyze(samples, rate, peakCount)

	fmt.Println(viz.Title.Render(filepath.Base(args[0])))
	fmt.Printf("%s %d Hz  %s %.2fs  %s %.4f  %s %.4f\n",
		viz.MetricLabel.Render("rate"), r.SampleRate,
		viz.MetricLabel.Render("duration"), r.Duration,
		viz.MetricLabel.Render("rms"), r.RMS,
		viz.MetricLabel.Render("peak"), r.Peak,
	)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FREQ\tNOTE\tCENTS\tMAGNITUDE")
	for _, p := range r.Peaks {
		fmt.Fprintf(w, "%.1f Hz\t%s\t%+.1f\t%.3f\n", p.Frequency, p.Note, p.Cents, p.Magnitude)
	}
	return w.Flush()
}

func runTUI(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	out := e.openOutput()
	defer out.close()
	return tui.Run(tui.Options{
		Config:   e.cfg,
		Synth:    out.synth,
		Logger:   logging.Discard(),
		OnTimbre: e.saveTimbre(out),
		FPS:      fps,
	})
}

func runGUI(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	preset := ""
	if len(args) > 0 {
		if config.GetPreset(args[0]) == nil {
			return fmt.Errorf("unknown preset %q (available: %s)", args[0], strings.Join(config.ListPresets(), ", "))
		}
		preset = args[0]
	}
	if e.cfg.Audio.Backend == "" {
		e.cfg.Audio.Backend = "beep"
	}
	out := e.openOutput()
	defer out.close()

	scenes := filepath.Join(e.cfg.DataDir, "scenes")
	gui.Run(gui.Options{
		Config:   e.cfg,
		Synth:    out.synth,
		Gate:     out.gate,
		Logger:   e.logger,
		Preset:   preset,
		OnTimbre: e.saveTimbre(out),
		SaveScene: func(s config.Scene) error {
			if err := os.MkdirAll(scenes, 0755); err != nil {
				return err
			}
			name := firstNonEmpty(s.Name, "scene")
			path := filepath.Join(scenes, fmt.Sprintf("%s_%d.yaml", name, time.Now().Unix()))
			if err := config.SaveScene(path, s); err != nil {
				return err
			}
			e.logger.Info("scene saved", "path", path)
			return nil
		},
	})
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		e.cfg.Addr = addr
	}
	out := e.openOutput()
	defer out.close()

	hub := server.NewHub(e.logger.With("component", "hub"))
	session := server.NewSession(e.cfg, out.synth, hub, e.logger, server.WithSnapshotRate(snapRate))
	if len(args) > 0 {
		if err := session.LoadPreset(args[0]); err != nil {
			return err
		}
	} else if err := session.Do(func(en *sim.Engine) error { return en.LoadScene(e.cfg.Scene) }); err != nil {
		e.logger.Warn("scene has invalid pieces", "err", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	return server.Serve(ctx, e.cfg.Addr, session, e.logger)
}

func editSettings(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	changed := false
	if cmd.Flags().Changed("tempo") {
		e.prefs.SetTempo(tempo)
		changed = true
	}
	if cmd.Flags().Changed("timbre") {
		e.prefs.SetTimbre(timbre)
		changed = true
	}
	if changed {
		if err := e.prefs.Save(); err != nil {
			return err
		}
	}

	p := e.prefs.Preferences()
	store := "memory only"
	if e.prefs.Persistent() {
		store = "saved"
	}
	fmt.Printf("%s %s\n", viz.MetricLabel.Render("tempo "), viz.MetricValue.Render(fmt.Sprintf("%d bpm", p.Tempo)))
	fmt.Printf("%s %s\n", viz.MetricLabel.Render("timbre"), viz.MetricValue.Render(p.Timbre))
	fmt.Println(viz.Subtle.Render(store))
	return nil
}

func sweep(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	scene, err := e.resolveScene(arg)
	if err != nil {
		return err
	}
	e.useScene(cmd, scene)

	var names []string
	var ranges [][]float64
	for _, p := range sweepParams {
		name, values, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("parameter %q: want name=values", p)
		}
		r, err := optim.ParseRange(values)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, r)
	}
	if len(names) == 0 {
		return errors.New("nothing to sweep, add --param")
	}
	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	if sweepMax {
		g.Maximize()
	}

	build := func(params map[string]float64) (*sim.Engine, sim.RunConfig, error) {
		cfg, err := optim.Configure(e.cfg, params)
		if err != nil {
			return nil, sim.RunConfig{}, err
		}
		engine := sim.New(cfg, synth.Nop{}, sim.WithMetrics(runMetrics(cfg)()...))
		if err := engine.LoadScene(cfg.Scene); err != nil && !errors.Is(err, dynamo.ErrDegenerateGeometry) {
			engine.Dispose()
			return nil, sim.RunConfig{}, err
		}
		return engine, sim.RunConfig{Duration: cfg.Run.Duration, FPS: cfg.Run.FPS}, nil
	}

	ctx, cancel := signalContext()
	defer cancel()
	fmt.Printf("sweeping %d combinations of %s on %s...\n", g.Size(), strings.Join(names, ", "), viz.Title.Render(scene.Name))
	best, trials, err := g.Search(ctx, build, optim.Metric(sweepMetric))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(sweepMetric))
	for _, t := range trials {
		row := make([]string, 0, len(names)+1)
		for _, n := range names {
			row = append(row, fmt.Sprintf("%g", t.Params[n]))
		}
		if t.Err != nil {
			row = append(row, "error: "+t.Err.Error())
		} else {
			row = append(row, fmt.Sprintf("%.4f", t.Value))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best.Params == nil {
		return fmt.Errorf("no trial produced %q", sweepMetric)
	}
	fmt.Printf("best %s: %s %v\n", sweepMetric, viz.MetricValue.Render(fmt.Sprintf("%.4f", best.Value)), best.Params)
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	width := max(svgSize, 64)
	var svg string

	if svgNotes {
		st := storage.New(e.cfg.DataDir)
		meta, err := st.Load(args[0])
		if err != nil {
			return err
		}
		triggers, err := st.LoadTriggers(args[0])
		if err != nil {
			return err
		}
		svg = export.NoteRollSVG(triggers, meta.Duration, width, width/2)
		if svg == "" {
			return errors.New("run has no notes")
		}
	} else {
		scene, err := e.resolveScene(args[0])
		if err != nil {
			return err
		}
		e.useScene(cmd, scene)
		engine := sim.New(e.cfg, synth.Nop{}, sim.WithLogger(e.logger))
		defer engine.Dispose()
		if err := engine.LoadScene(scene); err != nil {
			e.logger.Warn("scene has invalid pieces", "err", err)
		}
		if duration > 0 {
			if _, err := engine.Run(context.Background(), sim.RunConfig{Duration: duration, FPS: e.cfg.Run.FPS}); err != nil {
				return err
			}
		}
		view := viz.FitView(engine.Snapshot(), 1, viz.DefaultView)
		if scene.Viewport != nil {
			view = *scene.Viewport
		}
		height := int(float64(width) * (view.MaxY - view.MinY) / (view.MaxX - view.MinX))
		svg = export.SceneSVG(engine.Snapshot(), view, width, max(height, 64))
	}

	if svgOut == "" {
		fmt.Println(svg)
		return nil
	}
	if err := os.WriteFile(svgOut, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("svg written to %s\n", svgOut)
	return nil
}
