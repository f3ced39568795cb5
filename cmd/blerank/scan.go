package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blerank/internal/anchor"
	"github.com/srg/blerank/internal/groutine"
	"github.com/srg/blerank/internal/httpapi"
	"github.com/srg/blerank/internal/logtail"
	"github.com/srg/blerank/internal/luafilter"
	"github.com/srg/blerank/internal/registry"
	"github.com/srg/blerank/internal/tracker"
	"github.com/srg/blerank/internal/view"
	"github.com/srg/blerank/pkg/config"
	"github.com/srg/blerank/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices and rank them by signal strength",
	Long: `Scan for Bluetooth Low Energy devices in the vicinity and rank them by
smoothed signal strength (mean RSSI over the last few advertisements).

Without --watch the scan runs for --duration and prints the final ranking.
With --watch the ranking is redrawn live; keys: j/k scroll, space/b page,
g top, r new session, q quit.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
	scanVerbose     bool
	scanWindow      int
	scanNamePolicy  string
	scanBackend     string
	scanFilter      string
	scanListen      string
)

// statusLines is the space the watch screen keeps for its own header and footer.
const statusLines = 4

// newBackend opens the named scanner backend.
// This is a variable so that it can be overridden in tests.
var newBackend = func(name string) (scanner.Backend, error) {
	switch name {
	case config.BackendTinyGo:
		return scanner.NewTinyGoBackend(), nil
	default:
		return scanner.NewGoBLEBackend()
	}
}

func init() {
	addScanFlags(scanCmd)
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	cmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json, yaml)")
	cmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	cmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	cmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	cmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update the ranking")
	cmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Enable debug logging")
	cmd.Flags().IntVar(&scanWindow, "window", 5, "Number of RSSI readings averaged per device")
	cmd.Flags().StringVar(&scanNamePolicy, "name-policy", "keep", "Name updates: keep (ignore empty names) or last (latest advertisement wins)")
	cmd.Flags().StringVar(&scanBackend, "backend", config.BackendGoBLE, "BLE backend (goble, tinygo)")
	cmd.Flags().StringVar(&scanFilter, "filter", "", "Lua script defining accept(adv) to filter advertisements")
	cmd.Flags().StringVar(&scanListen, "listen", "", "Serve the ranking over HTTP on this address, e.g. 127.0.0.1:8080")
}

// loadScanConfig reads --config and overlays every scan flag the user set.
func loadScanConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.ScanTimeout = scanDuration
	} else if scanWatch {
		// watch mode scans until interrupted unless a duration was asked for
		cfg.ScanTimeout = 0
	}
	if flags.Changed("format") {
		cfg.OutputFormat = scanFormat
	}
	if flags.Changed("no-duplicates") {
		cfg.DuplicateFilter = scanNoDuplicate
	}
	if flags.Changed("window") {
		cfg.HistoryWindow = scanWindow
	}
	if flags.Changed("name-policy") {
		cfg.NamePolicy = scanNamePolicy
	}
	if flags.Changed("backend") {
		cfg.Backend = scanBackend
	}
	if flags.Changed("filter") {
		cfg.FilterScript = scanFilter
	}
	if flags.Changed("listen") {
		cfg.Listen = scanListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadScanConfig(cmd)
	if err != nil {
		return err
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, "verbose", cfg.Level())
	if err != nil {
		return err
	}

	var serviceUUIDs []string
	if len(scanServices) > 0 {
		serviceUUIDs, err = scanner.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	scanOpts := &scanner.ScanOptions{
		Duration:        cfg.ScanTimeout,
		DuplicateFilter: cfg.DuplicateFilter,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	if cfg.FilterScript != "" {
		filter, err := luafilter.NewFromFile(cfg.FilterScript, logger)
		if err != nil {
			return err
		}
		defer filter.Close()
		scanOpts.Filter = filter
	}

	backend, err := newBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to open BLE backend: %w", err)
	}
	s, err := scanner.NewScanner(backend, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	format, _ := view.ParseFormat(cfg.OutputFormat)
	renderer := view.NewRenderer(format, view.WithUnknownName(cfg.UnknownName))

	t := tracker.New(
		tracker.WithLogger(logger),
		tracker.WithRegistryOptions(cfg.RegistryOptions()...),
	)
	loop := tracker.NewLoop(t, tracker.DefaultInboxSize)

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()

	if scanWatch {
		return runWatchMode(ctx, s, scanOpts, loop, renderer, cfg, logger)
	}
	return runSingleScan(ctx, s, scanOpts, loop, renderer, cfg, logger, cmd.OutOrStdout())
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// startAPI serves the HTTP API until ctx is done, if an address is configured.
// The returned publish func is a no-op without a server.
func startAPI(ctx context.Context, loop *tracker.Loop, cfg *config.Config, logger *logrus.Logger) func(tracker.Update) {
	if cfg.Listen == "" {
		return func(tracker.Update) {}
	}

	srv := httpapi.NewServer(loop, logger)
	groutine.Go(ctx, "http-api", func(ctx context.Context) {
		if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
			logger.WithError(err).Error("HTTP API stopped")
		}
	})
	return srv.Publish
}

func runSingleScan(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions, loop *tracker.Loop,
	renderer *view.Renderer, cfg *config.Config, logger *logrus.Logger, out io.Writer) error {
	// The loop outlives ctx so it can drain the inbox after Ctrl+C.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	publish := startAPI(loopCtx, loop, cfg, logger)

	progress := NewProgressPrinter(out, "Scanning for BLE devices", opts.Duration)
	progress.Start()
	defer progress.Stop()

	var final registry.Snapshot
	var loopErr error
	loopDone := groutine.Go(loopCtx, "tracker-loop", func(ctx context.Context) {
		loopErr = loop.Run(ctx, nil, func(u tracker.Update) {
			final = u.Snapshot
			progress.SetDevices(u.Snapshot.Len())
			publish(u)
		})
	})

	scanErr := s.Scan(ctx, opts, loop.Offer)
	loop.Close()
	<-loopDone
	progress.Stop()

	if scanErr != nil {
		logger.WithError(scanErr).Error("scan failed")
		return scanErr
	}
	if loopErr != nil {
		return loopErr
	}

	if dropped := loop.Dropped(); dropped > 0 {
		logger.WithField("dropped", dropped).Warn("Observations dropped while the tracker was busy")
	}
	return renderer.Render(out, final, nil)
}

// watchScreen redraws the ranking on every update. All of its state is
// touched only from the tracker loop goroutine.
type watchScreen struct {
	out      io.Writer
	renderer *view.Renderer
	viewport *view.Viewport
	tail     *logtail.Tail
	fd       int
	reserved int
	last     registry.Snapshot
	publish  func(tracker.Update)
}

// ViewState implements tracker.ViewSource.
func (w *watchScreen) ViewState() anchor.ViewState {
	return w.viewport.State(w.last)
}

// update redraws after a tracker cycle. The viewport is an index window, so
// at offset 0 row 0 always shows the new leader and a scroll-to-top directive
// is already satisfied. Apply only moves a viewport that was scrolled.
func (w *watchScreen) update(u tracker.Update) {
	w.last = u.Snapshot
	w.viewport.Resize(view.TableRows(w.fd, w.reserved))
	w.viewport.Apply(u.Directive)
	w.publish(u)
	w.draw(u)
}

func (w *watchScreen) draw(u tracker.Update) {
	view.ClearScreen(w.out)
	fmt.Fprintf(w.out, "blerank  session %s  seq %d  devices %d    j/k scroll  g top  r reset  q quit\n\n",
		u.SessionID.String()[:8], u.Seq, u.Snapshot.Len())

	vp := w.viewport
	if w.renderer.Format() != view.FormatTable {
		vp = nil
	}
	_ = w.renderer.Render(w.out, u.Snapshot, vp)

	if w.tail != nil {
		if lines := w.tail.Lines(); len(lines) > 0 {
			fmt.Fprintln(w.out)
			for _, line := range lines {
				fmt.Fprintln(w.out, line)
			}
		}
	}
}

// handleKey runs on the loop goroutine through Loop.Submit.
func (w *watchScreen) handleKey(a keyAction, t *tracker.Tracker) {
	total := t.Snapshot().Len()
	page := w.viewport.Height()
	switch a {
	case keyDown:
		w.viewport.ScrollBy(1, total)
	case keyUp:
		w.viewport.ScrollBy(-1, total)
	case keyPageDown:
		w.viewport.ScrollBy(page, total)
	case keyPageUp:
		w.viewport.ScrollBy(-page, total)
	case keyTop:
		w.viewport.ScrollToTop()
	case keyReset:
		t.Reset()
		w.viewport.ScrollToTop()
	}
}

func runWatchMode(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions, loop *tracker.Loop,
	renderer *view.Renderer, cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out io.Writer = os.Stdout
	keys, restore, err := startKeyReader(ctx, os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read keyboard: %w", err)
	}
	defer restore()
	if keys != nil {
		out = crlfWriter{w: os.Stdout}
	}

	screen := &watchScreen{
		out:      out,
		renderer: renderer,
		fd:       int(os.Stdout.Fd()),
		reserved: statusLines + cfg.LogTailLines,
		publish:  startAPI(ctx, loop, cfg, logger),
	}
	screen.viewport = view.NewViewport(view.TableRows(screen.fd, screen.reserved))

	// Log lines would scroll the redrawn table away; keep the last few instead.
	if cfg.LogTailLines > 0 {
		tail, err := logtail.New(cfg.LogTailLines)
		if err != nil {
			return err
		}
		screen.tail = tail
		logger.SetOutput(tail)
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: time.TimeOnly})
	} else {
		logger.SetOutput(io.Discard)
	}

	var scanErr error
	scanDone := groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		scanErr = s.Scan(ctx, opts, loop.Offer)
		if scanErr != nil {
			cancel()
		}
	})

	groutine.Go(ctx, "key-dispatch", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-keys:
				if a == keyQuit {
					cancel()
					return
				}
				if err := loop.Submit(func(t *tracker.Tracker) { screen.handleKey(a, t) }); err != nil {
					return
				}
			}
		}
	})

	// A no-op task makes the loop draw the empty screen before the first advertisement.
	_ = loop.Submit(func(*tracker.Tracker) {})
	runErr := loop.Run(ctx, screen, screen.update)
	cancel()
	<-scanDone

	if scanErr != nil {
		return scanErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
