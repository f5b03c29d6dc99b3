package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"training-platform/internal/nlu"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var drift bool
	cmd := &cobra.Command{
		Use:   "validate <nlu.yml>",
		Short: "Check an NLU document before merging it into the assistant",
		Long: `Validate the structure of a RASA NLU document. With --drift the labels it
uses are also compared against the vocabulary recorded by the live assistant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			corpus, diag := nlu.ReadDocument(string(raw))
			if drift && diag.OK() {
				a, err := openApp(cmd.Context(), opts)
				if err != nil {
					return err
				}
				defer a.Close()

				intents, err := a.Export.IntentVocabulary(cmd.Context())
				if err != nil {
					return err
				}
				entities, err := a.Export.EntityVocabulary(cmd.Context())
				if err != nil {
					return err
				}
				diag.Warnings = append(diag.Warnings, nlu.CheckDrift(corpus, nlu.NewVocabulary(intents, entities))...)
			}

			w := cmd.OutOrStdout()
			printDiagnostics(w, diag)
			if !diag.OK() {
				return fmt.Errorf("%s: %d structural error(s)", args[0], len(diag.Errors))
			}
			stats := nlu.ComputeStats(corpus)
			fmt.Fprintf(w, "%s: ok, %d intents, %d examples, %d warning(s)\n", args[0], stats.TotalIntents, stats.TotalExamples, len(diag.Warnings))
			return nil
		},
	}
	cmd.Flags().BoolVar(&drift, "drift", false, "compare labels against the live assistant vocabulary")
	return cmd
}
