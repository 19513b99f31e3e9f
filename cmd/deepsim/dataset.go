package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/deepsim/internal/dataset"
	"github.com/san-kum/deepsim/internal/visual"
	"github.com/spf13/cobra"
)

func openDataset(ctx context.Context) (*dataset.Store, error) {
	if _, err := os.Stat(datasetPath); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetPath, err)
	}
	return dataset.Open(ctx, datasetPath)
}

func listSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openDataset(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENV\tINSTANCE\tMODE\tSTARTED\tSAMPLES\tFIELDS")
	for _, s := range sessions {
		names := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			names[i] = f.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.Environment,
			s.InstanceID, s.InstanceCount,
			s.Mode,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.Samples,
			strings.Join(names, ","),
		)
	}
	return w.Flush()
}

func plotSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openDataset(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.Session(ctx, args[0])
	if err != nil {
		return err
	}
	recs, err := st.Samples(ctx, sess.ID, field)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no %s samples to plot", field)
	}

	fmt.Printf("session: %s\n", sess.ID)
	fmt.Printf("environment: %s (instance %d)\n", sess.Environment, sess.InstanceID)
	fmt.Printf("samples: %d\n\n", len(recs))

	graph := asciigraph.Plot(dataset.MeanNorms(recs),
		asciigraph.Height(12),
		asciigraph.Width(70),
		asciigraph.Caption(fmt.Sprintf("mean |%s| per step", field)))
	fmt.Println(graph)
	return nil
}

func analyzeSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openDataset(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.Session(ctx, args[0])
	if err != nil {
		return err
	}
	recs, err := st.Samples(ctx, sess.ID, field)
	if err != nil {
		return err
	}
	series := dataset.MeanNorms(recs)
	ps := dataset.PowerSpectrum(series)
	if len(ps) < 2 {
		return fmt.Errorf("not enough %s samples to analyze", field)
	}

	fmt.Printf("frequency analysis: %s\n", sess.ID)
	fmt.Printf("environment: %s\n\n", sess.Environment)

	graph := asciigraph.Plot(ps,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("power spectrum (mean |%s|)", field)),
	)
	fmt.Println(graph)
	fmt.Println()

	freq := dataset.DominantFrequency(ps, len(series))
	fmt.Printf("dominant frequency: %.4f cycles/step\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.1f steps\n", 1/freq)
	}
	return nil
}

func exportSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openDataset(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		err = st.ExportJSON(ctx, w, args[0])
	case "csv":
		err = st.ExportCSV(ctx, w, args[0], field)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return err
	}
	if outFile != "" {
		fmt.Fprintf(os.Stderr, "exported to %s\n", outFile)
	}
	return nil
}

func replayVisual(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := visual.DBPath(args[0], args[1])
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("visualization db %s: %w", path, err)
	}
	instanceID, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}
	objectID, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("object id: %w", err)
	}

	sink, err := visual.OpenDBSink(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	defer sink.Close()

	positions, updates, err := sink.Replay(ctx, instanceID, objectID)
	if err != nil {
		return err
	}
	fmt.Printf("object %d of instance %d after %d updates:\n", objectID, instanceID, updates)
	for i, p := range positions {
		fmt.Printf("%5d  %9.4f %9.4f %9.4f\n", i, p.X, p.Y, p.Z)
	}
	return nil
}
