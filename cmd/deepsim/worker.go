package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/san-kum/deepsim/internal/environment"
	"github.com/san-kum/deepsim/internal/launcher"
	"github.com/spf13/cobra"
)

func runWorker(cmd *cobra.Command, args []string) error {
	p, err := launcher.ParseArgs(args)
	if errors.Is(err, launcher.ErrUsage) {
		fmt.Fprintln(os.Stderr, launcher.Usage)
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return launcher.Run(ctx, p, environment.NewRegistry(), os.Stdout, os.Stderr)
}
