package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/roundtable-games/roundtable/internal/ai"
	"github.com/roundtable-games/roundtable/internal/broadcast"
	appconfig "github.com/roundtable-games/roundtable/internal/config"
	"github.com/roundtable-games/roundtable/internal/event"
	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/metrics"
	"github.com/roundtable-games/roundtable/internal/orchestrator"
	"github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"
	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
	"github.com/roundtable-games/roundtable/internal/tui"
)

const (
	moderatorID     = "moderator"
	shutdownTimeout = 5 * time.Second
	wsPath          = "/ws"
)

var seatNames = []string{
	"Avery", "Blake", "Casey", "Devon", "Emery", "Finley",
	"Harper", "Jordan", "Kendall", "Logan", "Morgan", "Quinn",
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run discussion games end to end",
	Long: `Simulate creates one or more games, lets the configured reasoning
provider speak for every participant and runs each game through both
discussion rounds until the answers are in.

The live view is used when stdout is a terminal; pass --tui=false to log
instead. With --listen, messages are streamed to websocket clients at
/ws?game=<id>[&participant=<id>] and metrics are served on the same address.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var (
	simulateGames     int
	simulatePlayers   int
	simulateTUI       bool
	simulateListen    string
	simulateTimeScale float64
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVarP(&simulateGames, "games", "g", 1, "Number of concurrent games")
	simulateCmd.Flags().IntVarP(&simulatePlayers, "players", "p", 5, "Participants per game")
	simulateCmd.Flags().BoolVar(&simulateTUI, "tui", false, "Show the live view (default when stdout is a terminal)")
	simulateCmd.Flags().StringVar(&simulateListen, "listen", "", "Address for websocket and metrics (overrides transport.listen)")
	simulateCmd.Flags().Float64Var(&simulateTimeScale, "time-scale", 0, "Divide every phase duration (overrides discussion.time_scale)")
}

type simulation struct {
	cfg      *appconfig.Config
	logger   *logging.Logger
	bus      *event.Bus
	pool     *dispatch.Pool
	registry *orchestrator.Registry
	hub      *broadcast.Hub
	gatherer prometheus.Gatherer
	out      io.Writer

	mu        sync.Mutex
	summaries []session.Summary
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateGames < 1 {
		return fmt.Errorf("--games must be at least 1")
	}
	if simulatePlayers < 2 {
		return fmt.Errorf("--players must be at least 2")
	}

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("listen") {
		cfg.Transport.Listen = simulateListen
	}
	if cmd.Flags().Changed("time-scale") {
		if simulateTimeScale <= 0 {
			return fmt.Errorf("--time-scale must be positive")
		}
		cfg.Discussion.TimeScale = simulateTimeScale
	}

	useTUI := simulateTUI
	if !cmd.Flags().Changed("tui") {
		useTUI = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	logger, err := newLogger(cfg, useTUI)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := newSimulation(cfg, logger, useTUI, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer sim.close()

	if cfg.Transport.Listen != "" {
		shutdown, err := sim.serve(cfg.Transport.Listen)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if path := viper.ConfigFileUsed(); path != "" {
		appconfig.Watch(func(*appconfig.Config) {
			logger.Info("config file changed; new settings apply to games created later", "path", path)
		}, func(err error) {
			logger.Warn("ignoring invalid config change", "path", path, "error", err)
		})
	}

	if err := sim.run(ctx, useTUI); err != nil {
		return err
	}
	sim.report()
	return nil
}

func newLogger(cfg *appconfig.Config, useTUI bool) (*logging.Logger, error) {
	if useTUI && cfg.Logging.Dir == "" {
		// stderr would corrupt the alternate screen
		return logging.NewLoggerWithWriter(io.Discard, cfg.Logging.Level), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func newSimulation(cfg *appconfig.Config, logger *logging.Logger, useTUI bool, out io.Writer) (*simulation, error) {
	provider, err := ai.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	sim := &simulation{
		cfg:    cfg,
		logger: logger,
		bus:    event.NewBus(logger),
		out:    out,
	}

	var callbacks dispatch.Callbacks
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		m.Subscribe(sim.bus)
		callbacks = m.PoolCallbacks()
		sim.gatherer = reg
	}
	sim.pool = dispatch.NewPool(dispatch.PoolConfig{
		Workers:     cfg.Dispatch.Workers,
		QueueLimit:  cfg.Dispatch.QueueLimit,
		TaskTimeout: cfg.Dispatch.TaskTimeout(),
	}, callbacks, logger)

	var sink broadcast.Fanout
	if cfg.Transport.Listen != "" {
		sim.hub = broadcast.NewHub(broadcast.HubOptions{
			WriteTimeout: cfg.Transport.WriteTimeout(),
			SendBuffer:   cfg.Transport.SendBuffer,
		}, logger)
		sink = append(sink, sim.hub)
	}
	if !useTUI {
		sink = append(sink, broadcast.NewLogSink(logger))
	}

	sim.registry = orchestrator.NewRegistry(sim.pool, orchestrator.Deps{
		Provider:  provider,
		Sink:      sink,
		Directory: seatDirectory(simulatePlayers),
		Bus:       sim.bus,
		Logger:    logger,
	}, orchestrator.OptionsFromConfig(cfg))
	sim.registry.OnComplete(sim.completed)
	return sim, nil
}

// seatDirectory names participants p1..pn.
func seatDirectory(n int) orchestrator.StaticDirectory {
	dir := make(orchestrator.StaticDirectory, n+1)
	for _, id := range seatIDs(n) {
		i := len(dir)
		name := fmt.Sprintf("Player %d", i+1)
		if i < len(seatNames) {
			name = seatNames[i]
		}
		dir[id] = name
	}
	dir[moderatorID] = "Moderator"
	return dir
}

func seatIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i+1)
	}
	return ids
}

func (s *simulation) serve(addr string) (func(), error) {
	mux := http.NewServeMux()
	if s.hub != nil {
		mux.Handle(wsPath, s.hub)
	}
	if s.gatherer != nil {
		mux.Handle(s.cfg.Metrics.Path, metrics.Handler(s.gatherer))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	s.logger.Info("serving", "addr", ln.Addr().String(), "websocket", wsPath, "metrics", s.cfg.Metrics.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// run creates the games and blocks until all of them complete, the
// live view is closed or ctx ends.
func (s *simulation) run(ctx context.Context, useTUI bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	games := make([]*orchestrator.Discussion, 0, simulateGames)
	for range simulateGames {
		d, err := s.registry.Create("game-"+uuid.NewString()[:8], seatIDs(simulatePlayers), moderatorID)
		if err != nil {
			return err
		}
		games = append(games, d)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range games {
		g.Go(func() error {
			if err := d.StartSession(gctx); err != nil {
				return fmt.Errorf("game %s: %w", d.GameID(), err)
			}
			if err := d.Wait(gctx); err != nil {
				return err
			}
			s.record(d.Session().Summary())
			return nil
		})
	}

	if useTUI {
		app := tui.New(tui.RegistrySource{Registry: s.registry}, s.bus, tui.Options{
			Refresh:      time.Duration(s.cfg.TUI.RefreshMs) * time.Millisecond,
			MaxLines:     s.cfg.TUI.MaxMessageLines,
			ExitWhenDone: true,
		})
		if err := app.Run(ctx); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("live view failed: %w", err)
		}
		// Closing the view stops unfinished games
		cancel()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *simulation) record(sum session.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
}

func (s *simulation) completed(sum session.Summary) {
	s.logger.WithGame(sum.GameID).Info("game completed",
		"answers", len(sum.Answers),
		"rounds", sum.Rounds,
		"duration", sum.Duration().String(),
	)
}

func (s *simulation) report() {
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortFunc(s.summaries, func(a, b session.Summary) int {
		return a.StartTime.Compare(b.StartTime)
	})

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GAME\tROUNDS\tANSWERS\tDURATION")
	for _, sum := range s.summaries {
		fmt.Fprintf(w, "%s\t%d\t%d/%d\t%s\n",
			sum.GameID, sum.Rounds, len(sum.Answers), len(sum.ParticipantIDs),
			sum.Duration().Truncate(time.Millisecond))
	}
	_ = w.Flush()

	if s.hub != nil && s.hub.Dropped() > 0 {
		fmt.Fprintf(s.out, "\n%d websocket messages dropped for slow clients\n", s.hub.Dropped())
	}
}

func (s *simulation) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.registry.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown incomplete", "error", err)
	}
	s.pool.Close()
	if s.hub != nil {
		s.hub.Close()
	}
}
