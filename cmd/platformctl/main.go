// Command platformctl administers the training platform: schema migrations,
// user bootstrap, NLU exports and training job bookkeeping.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"training-platform/internal/app"
	"training-platform/internal/config"
)

const dateLayout = "2006-01-02"

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/config.yml"
	}

	root := &cobra.Command{
		Use:           "platformctl",
		Short:         "Administer the conversational training data platform",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath, "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateUserCmd(opts),
		newExportCmd(opts),
		newValidateCmd(opts),
		newMarkTrainedCmd(opts),
		newMarkDeployedCmd(opts),
	)
	return root
}

// openApp loads the configuration and builds the services.
func openApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = app.NewLogger(cfg.Log.Mode); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg, logger)
}

func parseDay(flag, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, use YYYY-MM-DD", flag, raw)
	}
	return &t, nil
}
