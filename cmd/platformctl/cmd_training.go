package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMarkTrainedCmd(opts *rootOptions) *cobra.Command {
	var (
		jobID int64
		ids   []int64
	)
	cmd := &cobra.Command{
		Use:   "mark-trained",
		Short: "Record that approved annotations went into a training job",
		Long: `Move approved annotations to trained and link them to the job. Without --ids
every approved annotation is marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			changed, err := a.Annotations.MarkTrained(cmd.Context(), ids, jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %d: %d annotation(s) marked trained %v\n", jobID, len(changed), changed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&jobID, "job", 0, "training job id")
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "annotation ids (default: all approved)")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newMarkDeployedCmd(opts *rootOptions) *cobra.Command {
	var jobID int64
	cmd := &cobra.Command{
		Use:   "mark-deployed",
		Short: "Record that a training job's model was deployed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			changed, err := a.Annotations.MarkDeployed(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %d: %d annotation(s) marked deployed %v\n", jobID, len(changed), changed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&jobID, "job", 0, "training job id")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
