package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sortline/internal/config"
	"github.com/roach88/sortline/internal/correlate"
	"github.com/roach88/sortline/internal/counter"
	"github.com/roach88/sortline/internal/detect"
	"github.com/roach88/sortline/internal/grading"
	"github.com/roach88/sortline/internal/plc"
	"github.com/roach88/sortline/internal/sorter"
	"github.com/roach88/sortline/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // overrides the store path from the configuration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Start the sorting daemon",
		Long: `Start the sorting daemon for one line.

Connects to the field controller, starts the configured detectors, and
runs the decision cycle until interrupted. SIGHUP reloads the sorting
rules from the configuration file; a rejected reload keeps the prior
rules active. Device topology (controller address, register map,
detectors) is fixed for the life of the process.

Example:
  sortline run line-a.yaml
  sortline run line-a.yaml --db /var/lib/sortline/line-a.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the sorting log database (overrides config)")

	return cmd
}

func runDaemon(opts *RunOptions, cfgPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	regs, err := cfg.RegisterMap()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid register map", err)
	}

	client := plc.NewClient(cfg.PLC.Addr, regs,
		plc.WithTimeout(cfg.PLC.Timeout()),
		plc.WithUnitID(byte(cfg.PLC.UnitID)),
	)
	defer client.Close()

	pos := counter.New()
	sink := sorter.NewSink(1024)
	orch := sorter.New(client, pos,
		sorter.WithSink(sink),
		sorter.WithInterval(cfg.Cycle.Interval()),
	)

	// The correlator is swapped atomically on reload so the analyzer
	// callbacks never hold a stale pointer.
	var corr atomic.Pointer[correlate.Correlator]

	applyRules := func(cfg *config.Config) error {
		table, err := cfg.RangeTable()
		if err != nil {
			return err
		}
		tpl, err := cfg.Template()
		if err != nil {
			return err
		}
		offsets, err := cfg.Offsets()
		if err != nil {
			return err
		}

		if table != nil {
			orch.SetRanges(table)
		}
		if tpl != nil {
			c, err := correlate.New(tpl, offsets)
			if err != nil {
				return err
			}
			corr.Store(c)
			orch.SetCorrelator(c)
		}
		return orch.SetMode(parseMode(cfg.Sorting.Mode))
	}
	if err := applyRules(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid sorting rules", err)
	}

	// Sorting log is optional; the line runs without one.
	dbPath := cfg.Store.Path
	if opts.Database != "" {
		dbPath = opts.Database
	}
	var recorder *store.Recorder
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open sorting log", err)
		}
		defer st.Close()
		recorder = store.NewRecorder(st, sink, orch.Stats, slog.Default())
		recorder.Start()
		defer recorder.Stop()
	}

	manager := detect.NewManager(slog.Default())
	var analyzers []*detect.Analyzer
	for _, ac := range cfg.Detectors.Analyzers {
		line := ac.Line
		conn := plc.NewClient(ac.Addr, nil,
			plc.WithTimeout(cfg.PLC.Timeout()),
			plc.WithUnitID(byte(ac.UnitID)),
		)
		defer conn.Close()

		onReading := func(r detect.Reading) {
			c := corr.Load()
			if c == nil {
				return
			}
			if _, err := c.Record(line, grading.RoleContent, r.Value, r.Position, time.Now()); err != nil {
				slog.Debug("content reading not buffered", "line", line, "error", err)
			}
		}
		a := detect.NewAnalyzer(ac.Name, conn, onReading,
			detect.WithPollInterval(time.Duration(ac.PollMS)*time.Millisecond))
		if err := manager.Register(a); err != nil {
			return WrapExitError(ExitCommandError, "detector registration failed", err)
		}
		analyzers = append(analyzers, a)
	}
	if pc := cfg.Detectors.Pulse; pc != nil {
		p := detect.NewPulseSource("pulse", client, regs.StatusRegister, pc.Bit, pos,
			detect.WithPulseInterval(time.Duration(pc.SampleMS)*time.Millisecond))
		if err := manager.Register(p); err != nil {
			return WrapExitError(ExitCommandError, "detector registration failed", err)
		}
	}

	// Every counter tick re-syncs the analyzers so their readings carry
	// the position of the item that triggered them.
	pos.Observe(func(_, new int64) {
		for _, a := range analyzers {
			a.SyncCount(new)
		}
	})

	if err := manager.StartAll(); err != nil {
		slog.Warn("some detectors failed to start", "error", err)
	}
	defer manager.StopAll()

	if err := orch.Start(); err != nil {
		return WrapExitError(ExitFailure, "failed to start sorting loop", err)
	}
	defer orch.Stop()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.OutOrStdout(), "Sorting daemon started. Press Ctrl-C to stop.")
	slog.Info("daemon running", "config", cfgPath, "mode", cfg.Sorting.Mode, "interval", cfg.Cycle.Interval())

	for {
		select {
		case <-ctx.Done():
			slog.Info("daemon stopping")
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				reload(cfgPath, applyRules)
				continue
			}
			slog.Info("received signal, shutting down", "signal", sig)
			return nil
		}
	}
}

// reload re-reads the configuration and applies the sorting rules. On
// any failure the prior rules stay active.
func reload(cfgPath string, applyRules func(*config.Config) error) {
	slog.Info("reloading configuration", "config", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Warn("reload rejected, keeping prior configuration", "error", err)
		return
	}
	if err := applyRules(cfg); err != nil {
		slog.Warn("reload rejected, keeping prior configuration", "error", err)
		return
	}
	slog.Info("configuration reloaded", "mode", cfg.Sorting.Mode)
}

func parseMode(mode string) sorter.Mode {
	switch mode {
	case "ranges":
		return sorter.ModeRanges
	case "template":
		return sorter.ModeTemplate
	default:
		return sorter.ModeOff
	}
}
