package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/densitymap/internal/density"
	"github.com/sells-group/densitymap/internal/pipeline"
	"github.com/sells-group/densitymap/internal/report"
)

// Output formats for analyze.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type analyzeFlags struct {
	shapefile string
	points    string
	out       string
	xlsx      string
	format    string
	index     string
}

var analyzeOpts analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one density analysis from the command line",
	Long:  "Reads a zipped shapefile and an optional CSV of points, writes the map HTML and prints the summary, top and preview tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		opts := pipeline.OptionsFromConfig(cfg)
		if analyzeOpts.index != "" {
			opts.Density.Index = analyzeOpts.index
		}
		return runAnalyze(cmd.Context(), opts, analyzeOpts, cmd.OutOrStdout())
	},
}

func runAnalyze(ctx context.Context, opts pipeline.Options, flags analyzeFlags, w io.Writer) error {
	switch flags.format {
	case formatText, formatJSON, formatYAML:
	default:
		return eris.Errorf("analyze: unknown format %q (want text, json or yaml)", flags.format)
	}
	if flags.shapefile == "" {
		return eris.New("analyze: --shapefile is required")
	}

	in := pipeline.Input{ArchivePath: flags.shapefile}
	if flags.points != "" {
		f, err := os.Open(flags.points)
		if err != nil {
			return eris.Wrap(err, "analyze: open points")
		}
		defer f.Close() //nolint:errcheck
		in.Points = f
	}

	res, err := pipeline.Run(ctx, in, opts)
	if err != nil {
		return err
	}

	if flags.out != "" {
		if err := os.WriteFile(flags.out, res.MapHTML, 0o644); err != nil {
			return eris.Wrap(err, "analyze: write map")
		}
		zap.L().Info("analyze: map written", zap.String("path", flags.out))
	}
	if flags.xlsx != "" {
		if err := writeXLSXFile(flags.xlsx, res.Report); err != nil {
			return err
		}
		zap.L().Info("analyze: workbook written", zap.String("path", flags.xlsx))
	}

	switch flags.format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "analyze: encode json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "analyze: encode yaml")
		}
		return eris.Wrap(enc.Close(), "analyze: encode yaml")
	default:
		return writeTextResult(w, res)
	}
}

func writeTextResult(w io.Writer, res *pipeline.Result) error {
	for _, n := range res.Notices {
		if _, err := fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Text); err != nil {
			return eris.Wrap(err, "analyze: write notices")
		}
	}
	for _, is := range res.Issues {
		if _, err := fmt.Fprintf(w, "[%s] polígono %d: %s\n", is.Kind, is.Index, is.Message); err != nil {
			return eris.Wrap(err, "analyze: write issues")
		}
	}
	_, _ = fmt.Fprintln(w)
	return report.WriteText(w, res.Report)
}

func writeXLSXFile(path string, r report.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "analyze: create workbook")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "analyze: close workbook")
		}
	}()
	return report.WriteXLSX(f, r)
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOpts.shapefile, "shapefile", "", "path to the zipped shapefile (required)")
	analyzeCmd.Flags().StringVar(&analyzeOpts.points, "points", "", "CSV with longitude and latitude columns (default: random points)")
	analyzeCmd.Flags().StringVar(&analyzeOpts.out, "out", "", "write the map HTML to this file")
	analyzeCmd.Flags().StringVar(&analyzeOpts.xlsx, "xlsx", "", "write the report workbook to this file")
	analyzeCmd.Flags().StringVar(&analyzeOpts.format, "format", formatText, "output format: text, json or yaml")
	analyzeCmd.Flags().StringVar(&analyzeOpts.index, "index", "", fmt.Sprintf("containment strategy: %s or %s (default from config)", density.IndexNone, density.IndexRTree))
	rootCmd.AddCommand(analyzeCmd)
}
