package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/topicgraph/internal/topic"
)

var (
	resolveCategory string
	resolveDepth    int
	resolveNoCache  bool
	resolveJSON     bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [topic-id]",
	Short: "Resolve a topic hierarchy",
	Long:  "Fetch a topic and every descendant of the given category, and print the tree as an outline (or JSON with --json).",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveCategory, "category", "c", topic.TypePrompt, "topic type to expand")
	resolveCmd.Flags().IntVar(&resolveDepth, "depth", -1, "maximum depth below the root (-1 uses the configured limit)")
	resolveCmd.Flags().BoolVar(&resolveNoCache, "no-cache", false, "bypass the local topic cache")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the tree as JSON")
}

func runResolve(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.reachable(cmd.Context()); err != nil {
		return err
	}
	if resolveDepth >= 0 {
		b.cfg.Resolver.MaxDepth = resolveDepth
	}
	sess, err := b.openSession(b.cfg.Cache.ReadThrough && !resolveNoCache, false)
	if err != nil {
		return err
	}

	tree, err := sess.Resolve(cmd.Context(), args[0], resolveCategory)
	if errors.Is(err, topic.ErrNotFound) {
		return fmt.Errorf("topic %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}

	if resolveJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	}

	fmt.Printf("## %s (%s)\n\n", args[0], resolveCategory)
	fmt.Print(tree.Outline())
	fmt.Printf("\n%d nodes", tree.Nodes)
	if tree.Truncated {
		fmt.Print(", truncated")
	}
	if tree.Dropped > 0 {
		fmt.Printf(", %d branches dropped", tree.Dropped)
	}
	fmt.Println()
	return nil
}
