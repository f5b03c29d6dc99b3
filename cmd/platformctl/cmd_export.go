package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"training-platform/internal/models"
	"training-platform/internal/nlu"
	"training-platform/internal/service"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to, intent string
		out              string
		preview          bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write approved annotations as a RASA NLU document",
		Long: `Build the NLU document from approved annotations. With --preview the
document is printed together with statistics and diagnostics and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := models.ExportFilter{Intent: strings.TrimSpace(intent)}
			var err error
			if filter.From, err = parseDay("from", from); err != nil {
				return err
			}
			if filter.To, err = parseDay("to", to); err != nil {
				return err
			}
			if filter.To != nil {
				end := filter.To.AddDate(0, 0, 1)
				filter.To = &end
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if preview {
				return runPreview(cmd.Context(), cmd.OutOrStdout(), a.Export.Preview, filter)
			}

			file, err := a.Export.Download(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if out == "" {
				out = file.Filename
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(file.Content)
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, file.Content, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(file.Content))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first approval day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last approval day (inclusive), YYYY-MM-DD")
	cmd.Flags().StringVar(&intent, "intent", "", "export a single intent")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default nlu_annotations_<timestamp>.yml)")
	cmd.Flags().BoolVar(&preview, "preview", false, "print document, stats and diagnostics without writing")
	return cmd
}

func runPreview(ctx context.Context, w io.Writer, preview func(context.Context, models.ExportFilter) (*service.ExportResult, error), filter models.ExportFilter) error {
	result, err := preview(ctx, filter)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, result.Document)
	fmt.Fprintln(w, "---")
	s := result.Stats
	fmt.Fprintf(w, "annotations: %d  intents: %d  examples: %d  entity types: %d  avg examples/intent: %.2f\n",
		s.TotalAnnotations, s.TotalIntents, s.TotalExamples, s.TotalEntitiesUsed, s.AvgExamplesPerIntent)
	printDiagnostics(w, nlu.Diagnostics{Errors: result.Errors, Warnings: result.Warnings})
	fmt.Fprintf(w, "valid: %t  can export: %t\n", result.IsValid, result.CanExport)
	return nil
}

func printDiagnostics(w io.Writer, d nlu.Diagnostics) {
	for _, e := range d.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, warn := range d.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}
