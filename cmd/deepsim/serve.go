package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/deepsim/internal/aggregator"
	"github.com/san-kum/deepsim/internal/config"
	"github.com/san-kum/deepsim/internal/dataset"
	"github.com/san-kum/deepsim/internal/logging"
	"github.com/san-kum/deepsim/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveConfig resolves the preset or config file and applies flag overrides.
func serveConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case preset != "":
		cfg = config.GetPreset(environName, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q for %s", preset, environName)
		}
	case configFile != "":
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Address = address
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("dataset") {
		cfg.Server.Dataset = datasetPath
	}
	if flags.Changed("predictor") {
		cfg.Server.Predictor = predictor
	}
	if flags.Changed("max-samples") {
		cfg.Server.MaxSamples = maxSamples
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if useTUI {
		logger = logging.Discard()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := dataset.Open(ctx, cfg.Server.Dataset)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	defer store.Close()

	srv, err := aggregator.New(store, aggregator.Options{
		Predictor:      cfg.Server.Predictor,
		MaxSamples:     cfg.Server.MaxSamples,
		ReceiveTimeout: cfg.Session.ReceiveTimeout,
	}, logger)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})

	if spawn > 0 {
		g.Go(func() error {
			defer cancel()
			return spawnWorkers(gctx, cfg, addr, !useTUI)
		})
	}

	if useTUI {
		prog := tea.NewProgram(tui.NewMonitor(srv.Events(), cfg.Server.MaxSamples), tea.WithAltScreen())
		g.Go(func() error {
			defer cancel()
			_, err := prog.Run()
			return err
		})
		go func() {
			<-gctx.Done()
			prog.Quit()
		}()
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	fmt.Printf("collected %d samples into %s\n", srv.Total(), cfg.Server.Dataset)
	return err
}

// spawnWorkers starts spawn local worker processes of environName against
// addr and waits for all of them. Every worker reads the server config.
func spawnWorkers(ctx context.Context, cfg *config.Config, addr string, verbose bool) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "deepsim-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}

	if err := waitListening(ctx, addr, 5*time.Second); err != nil {
		return err
	}

	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}

	var workers errgroup.Group
	for i := 0; i < spawn; i++ {
		vis := "None"
		if visDir != "" {
			vis = fmt.Sprintf("['%s', 'instance_%d']", visDir, i)
		}
		c := exec.CommandContext(ctx, exe, "worker",
			cfgPath, environName, cfg.Server.Address, strconv.Itoa(cfg.Server.Port),
			strconv.Itoa(i), strconv.Itoa(spawn), vis)
		c.Stdout = out
		c.Stderr = out
		c.Cancel = func() error { return c.Process.Signal(os.Interrupt) }
		c.WaitDelay = 5 * time.Second

		workers.Go(func() error {
			if err := c.Run(); err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	return workers.Wait()
}

func waitListening(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server at %s not reachable: %w", addr, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
