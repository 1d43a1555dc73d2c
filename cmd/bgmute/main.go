// Package main is the CLI entry point for bgmute.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/config"
	"github.com/eliteGoblin/focusd/bgmute/internal/daemon"
	"github.com/eliteGoblin/focusd/bgmute/internal/infra"
	"github.com/eliteGoblin/focusd/bgmute/internal/logging"
	"github.com/eliteGoblin/focusd/bgmute/internal/metrics"
	"github.com/eliteGoblin/focusd/bgmute/internal/policy"
	"github.com/eliteGoblin/focusd/bgmute/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// configWatchInterval is how often `run` checks the config file for edits.
const configWatchInterval = time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bgmute",
	Short: "Mute background applications",
	Long: `bgmute mutes the audio of every application except the one in the
foreground. Switching windows unmutes the newly focused application and
mutes the one you left. Excluded applications are never touched.

Stopping the engine unmutes everything it muted.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the muting engine in the foreground",
	Long: `Runs the muting engine until interrupted. Edits to the config file
(including those made by 'bgmute enable', 'disable' and 'exclude') are
picked up while running.`,
	RunE: runEngine,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show settings and sessions currently muted by bgmute",
	RunE:  runStatus,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Unmute sessions left muted by a previous run",
	Long: `Unmutes every currently muted session whose application was muted
by an earlier run that did not shut down cleanly.`,
	RunE: runRestore,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable background muting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable background muting (a running engine unmutes everything)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, false)
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle background muting",
	Args:  cobra.NoArgs,
	RunE:  runToggle,
}

var excludeCmd = &cobra.Command{
	Use:   "exclude",
	Short: "Manage applications that are never muted",
}

var excludeAddCmd = &cobra.Command{
	Use:   "add <exe>...",
	Short: "Never mute the given executables (e.g. spotify.exe)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExcludeAdd,
}

var excludeRemoveCmd = &cobra.Command{
	Use:   "remove <exe>...",
	Short: "Allow the given executables to be muted again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExcludeRemove,
}

var excludeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List excluded executables",
	Args:  cobra.NoArgs,
	RunE:  runExcludeList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	dataDir    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: per-user config dir)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the log, ledger and lock (default: per-user data dir)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	excludeCmd.AddCommand(excludeAddCmd)
	excludeCmd.AddCommand(excludeRemoveCmd)
	excludeCmd.AddCommand(excludeListCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(excludeCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolvePaths applies --config and --data-dir over the per-user defaults.
func resolvePaths() *infra.Paths {
	p := infra.DetectPaths()
	if dataDir != "" {
		p = infra.NewPaths(p.ConfigDir, infra.ExpandHome(dataDir))
	}
	if configPath != "" {
		p.ConfigFile = infra.ExpandHome(configPath)
	}
	return p
}

func loadConfig(p *infra.Paths) (*config.Config, error) {
	cfg, _, err := config.Load(p.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", p.ConfigFile, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// editStore loads the config file into a store that writes every change back.
func editStore(p *infra.Paths) (*config.Store, error) {
	cfg, _, err := config.Load(p.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", p.ConfigFile, err)
	}
	return config.NewStore(cfg, zap.NewNop()).PersistTo(p.ConfigFile), nil
}

func runEngine(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	cfg, err := loadConfig(paths)
	if err != nil {
		return err
	}
	if err := paths.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Console:     logging.StderrIsTerminal(),
		OutputPaths: []string{paths.LogFile, "stderr"},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	lock := infra.NewInstanceLock(paths.LockFile)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	ledger, err := infra.OpenLedger(paths.DataDir)
	if err != nil {
		logger.Warn("mute ledger unavailable, crash recovery disabled", zap.Error(err))
	} else {
		defer ledger.Close()
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	store := config.NewStore(cfg, logger)
	go store.Watch(ctx, paths.ConfigFile, configWatchInterval)

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Warn("metrics exporter stopped", zap.Error(err))
			}
		}()
	}

	resolver := infra.NewProcessResolver()
	enumerator := infra.NewSessionEnumerator(resolver, logger)
	reconciler := usecase.NewReconciler(
		usecase.ReconcilerConfig{RefreshInterval: cfg.RefreshInterval()},
		infra.NewFocusTracker(resolver),
		enumerator,
		store,
		logger,
	).WithObserver(m)
	if ledger != nil {
		reconciler.WithLedger(ledger)
	}

	scheduler := daemon.NewScheduler(
		daemon.SchedulerConfig{
			PollInterval:    cfg.PollInterval(),
			RefreshInterval: cfg.RefreshInterval(),
		},
		reconciler,
		enumerator,
		infra.NewFocusHook(logger),
		logger,
	)
	if ledger != nil {
		scheduler.WithLedger(ledger)
	}
	service := daemon.NewService(store, reconciler, scheduler, logger)

	logger.Info("bgmute starting",
		zap.String("version", Version),
		zap.String("config", paths.ConfigFile),
		zap.Bool("muting_enabled", cfg.Muting.Enabled),
		zap.Strings("excluded", cfg.Muting.Excluded))

	if err := scheduler.Run(ctx); err != nil {
		return err
	}

	logger.Info("bgmute stopped", zap.Uint64("passes", service.Snapshot().Pass))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	paths := resolvePaths()
	cfg, err := loadConfig(paths)
	if err != nil {
		return err
	}

	state := "stopped"
	if engineRunning(paths) {
		state = "running"
	}
	muting := "enabled"
	if !cfg.Muting.Enabled {
		muting = "disabled"
	}

	fmt.Fprint(out, renderTable(
		[]string{"Setting", "Value"},
		[][]string{
			{"Engine", state},
			{"Muting", muting},
			{"Excluded", strconv.Itoa(len(cfg.Muting.Excluded))},
			{"Poll interval", cfg.PollInterval().String()},
			{"Refresh interval", cfg.RefreshInterval().String()},
			{"Config", paths.ConfigFile},
		},
		[]columnAlignment{alignLeft, alignLeft},
	))

	ledger, err := infra.OpenLedger(paths.DataDir)
	if err != nil {
		return fmt.Errorf("open mute ledger: %w", err)
	}
	defer ledger.Close()

	records, err := ledger.List()
	if err != nil {
		return fmt.Errorf("read mute ledger: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions muted by bgmute.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.ExeName, strconv.FormatUint(uint64(r.PID), 10), r.MutedAt.Format(time.RFC3339)})
	}
	fmt.Fprint(out, renderTable([]string{"Muted app", "PID", "Since"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	return nil
}

// engineRunning reports whether another process holds the instance lock.
func engineRunning(paths *infra.Paths) bool {
	lock := infra.NewInstanceLock(paths.LockFile)
	if err := lock.Acquire(); err != nil {
		return errors.Is(err, infra.ErrAlreadyRunning)
	}
	_ = lock.Release()
	return false
}

func runRestore(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	paths := resolvePaths()

	lock := infra.NewInstanceLock(paths.LockFile)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, infra.ErrAlreadyRunning) {
			return errors.New("bgmute is running; stop it to restore (it unmutes on exit)")
		}
		return err
	}
	defer lock.Release()

	ledger, err := infra.OpenLedger(paths.DataDir)
	if err != nil {
		return fmt.Errorf("open mute ledger: %w", err)
	}
	defer ledger.Close()

	logger := logging.NewOrNop(logging.DefaultConfig())
	defer func() { _ = logger.Sync() }()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	enumerator := infra.NewSessionEnumerator(infra.NewProcessResolver(), logger)
	if err := enumerator.Open(); err != nil {
		return err
	}
	defer enumerator.Close()

	res, err := usecase.NewRestorer(enumerator, ledger, logger).Restore(cmd.Context())
	if err != nil {
		return err
	}

	if len(res.Unmuted) == 0 {
		fmt.Fprintf(out, "Nothing to restore (%d ledger entries).\n", len(res.Recorded))
	} else {
		rows := make([][]string, 0, len(res.Unmuted))
		for _, id := range res.Unmuted {
			rows = append(rows, []string{id.ExeName, strconv.FormatUint(uint64(id.PID), 10)})
		}
		fmt.Fprint(out, renderTable([]string{"Unmuted app", "PID"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d sessions could not be unmuted: %w", len(res.Errors), errors.Join(res.Errors...))
	}
	return nil
}

func setEnabled(cmd *cobra.Command, enabled bool) error {
	store, err := editStore(resolvePaths())
	if err != nil {
		return err
	}
	if err := store.SetMutingEnabled(enabled); err != nil {
		return err
	}
	printEnabled(cmd, enabled)
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	store, err := editStore(resolvePaths())
	if err != nil {
		return err
	}
	enabled, err := store.Toggle()
	if err != nil {
		return err
	}
	printEnabled(cmd, enabled)
	return nil
}

func printEnabled(cmd *cobra.Command, enabled bool) {
	if enabled {
		fmt.Fprintln(cmd.OutOrStdout(), "Background muting enabled.")
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Background muting disabled.")
}

func runExcludeAdd(cmd *cobra.Command, args []string) error {
	store, err := editStore(resolvePaths())
	if err != nil {
		return err
	}
	current := store.Config().Muting.Excluded
	names := make([]string, 0, len(current)+len(args))
	names = append(append(names, current...), args...)
	if err := store.SetExcluded(names); err != nil {
		return err
	}
	return printExcluded(cmd, store.Config().Muting.Excluded)
}

func runExcludeRemove(cmd *cobra.Command, args []string) error {
	store, err := editStore(resolvePaths())
	if err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(args))
	for _, a := range args {
		drop[policy.NormalizeExeName(a)] = struct{}{}
	}
	var keep []string
	for _, name := range store.Config().Muting.Excluded {
		if _, ok := drop[name]; !ok {
			keep = append(keep, name)
		}
	}

	if err := store.SetExcluded(keep); err != nil {
		return err
	}
	return printExcluded(cmd, store.Config().Muting.Excluded)
}

func runExcludeList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(resolvePaths())
	if err != nil {
		return err
	}
	return printExcluded(cmd, cfg.Muting.Excluded)
}

func printExcluded(cmd *cobra.Command, names []string) error {
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "No excluded applications.")
		return nil
	}
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{n})
	}
	fmt.Fprint(out, renderTable([]string{"Excluded app"}, rows, nil))
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		fmt.Fprintf(out, `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Fprintf(out, "bgmute %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
