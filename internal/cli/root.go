package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "topicgraph",
	Short:         "Topic graph cache and hierarchy resolver",
	Long:          "topicgraph resolves topic hierarchies from a flat document store and keeps a bounded local cache of the topics it reads.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ~/.topicgraph/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(topicCmd)
	rootCmd.AddCommand(cacheCmd)
}
