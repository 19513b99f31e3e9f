package main

import (
	"fmt"
	"os"

	"github.com/san-kum/deepsim/internal/config"
	"github.com/san-kum/deepsim/internal/environment"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	preset      string
	environName string
	address     string
	port        int
	datasetPath string
	predictor   string
	maxSamples  int
	spawn       int
	visDir      string
	useTUI      bool
	field       string
	format      string
	outFile     string
)

// main registers the deepsim commands and exits with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "deepsim",
		Short:         "training samples from physical simulations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	workerCmd := &cobra.Command{
		Use:                "worker <file_path> <environment_class_name> <ip_address> <port> <instance_id> <instance_count> <visualization_db_spec>",
		Short:              "run one simulation instance against a server",
		DisableFlagParsing: true,
		RunE:               runWorker,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "collect samples from workers",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	serveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	serveCmd.Flags().StringVar(&environName, "env", "BeamTraining", "environment for spawned workers")
	serveCmd.Flags().StringVar(&address, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset file (overrides config)")
	serveCmd.Flags().StringVar(&predictor, "predictor", "", "none, zero or echo (overrides config)")
	serveCmd.Flags().IntVar(&maxSamples, "max-samples", -1, "stop after this many samples, 0 for no limit")
	serveCmd.Flags().IntVar(&spawn, "spawn", 0, "start this many local workers")
	serveCmd.Flags().StringVar(&visDir, "vis-dir", "", "write spawned worker meshes to visualization databases here")
	serveCmd.Flags().BoolVar(&useTUI, "tui", false, "show the live monitor")

	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "inspect collected samples",
	}
	datasetCmd.PersistentFlags().StringVar(&datasetPath, "dataset", config.DefaultConfig().Server.Dataset, "dataset file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list sessions",
		RunE:  listSessions,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [session_id]",
		Short: "plot the mean norm of a field per step",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSession,
	}
	plotCmd.Flags().StringVar(&field, "field", "ground_truth", "field to plot")

	exportCmd := &cobra.Command{
		Use:   "export [session_id]",
		Short: "export a session to JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSession,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json or csv")
	exportCmd.Flags().StringVar(&field, "field", "ground_truth", "field to export (csv)")
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [session_id]",
		Short: "frequency analysis of a field's mean norm",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeSession,
	}
	analyzeCmd.Flags().StringVar(&field, "field", "ground_truth", "field to analyze")

	datasetCmd.AddCommand(listCmd, plotCmd, exportCmd, analyzeCmd)

	replayCmd := &cobra.Command{
		Use:   "replay <dir> <name> <instance_id> <object_id>",
		Short: "print the last recorded mesh positions from a visualization database",
		Args:  cobra.ExactArgs(4),
		RunE:  replayVisual,
	}

	envsCmd := &cobra.Command{
		Use:   "envs",
		Short: "list environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, info := range environment.NewRegistry().List() {
				fmt.Printf("  %-18s %s\n", info.Name, info.Description)
			}
			return nil
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [environment]",
		Short: "list available presets for an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for environment: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(workerCmd, serveCmd, datasetCmd, replayCmd, envsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
