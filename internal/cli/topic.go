package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lazypower/topicgraph/internal/store"
	"github.com/lazypower/topicgraph/internal/topic"
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Read and write topic documents",
}

var (
	putID      string
	putTitle   string
	putType    string
	putParents []string
	putContent string
)

var topicPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a topic",
	Args:  cobra.NoArgs,
	RunE:  runTopicPut,
}

var topicGetCmd = &cobra.Command{
	Use:   "get [topic-id]",
	Short: "Print one topic as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTopicGet,
}

var topicLsCmd = &cobra.Command{
	Use:   "ls [parent-id]",
	Short: "List topics",
	Long:  "With no argument, lists root topics. With a parent ID, lists its children of every type.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTopicLs,
}

func init() {
	topicPutCmd.Flags().StringVar(&putID, "id", "", "topic ID (generated when empty)")
	topicPutCmd.Flags().StringVar(&putTitle, "title", "", "title")
	topicPutCmd.Flags().StringVarP(&putType, "type", "t", topic.TypeTopic, "topic type")
	topicPutCmd.Flags().StringSliceVarP(&putParents, "parent", "p", nil, "parent topic ID (repeatable)")
	topicPutCmd.Flags().StringVar(&putContent, "content", "", "body text")

	topicCmd.AddCommand(topicPutCmd)
	topicCmd.AddCommand(topicGetCmd)
	topicCmd.AddCommand(topicLsCmd)
}

func runTopicPut(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	docs, err := b.documents()
	if err != nil {
		return err
	}

	t := &topic.Topic{
		ID:      putID,
		Title:   putTitle,
		Type:    putType,
		Parents: putParents,
		Content: putContent,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("invalid topic: %w", err)
	}
	if err := docs.PutTopic(cmd.Context(), t); err != nil {
		return fmt.Errorf("put topic: %w", err)
	}

	// Drop any stale local copy.
	sess, err := b.openSession(false, false)
	if err != nil {
		return err
	}
	sess.CacheDelete(cmd.Context(), t.ID)

	fmt.Println(t.ID)
	return nil
}

func runTopicGet(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	t, err := b.store.GetTopic(cmd.Context(), args[0])
	if errors.Is(err, topic.ErrNotFound) {
		return fmt.Errorf("topic %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("get topic: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func runTopicLs(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()
	ctx := cmd.Context()

	if len(args) > 0 {
		parent := args[0]
		children, err := b.store.ChildTopics(ctx, parent, nil)
		if err != nil {
			return fmt.Errorf("get children: %w", err)
		}
		if len(children) == 0 {
			fmt.Printf("No children found for %s\n", parent)
			return nil
		}
		fmt.Printf("## %s\n\n", parent)
		for _, c := range children {
			fmt.Printf("  %-8s %s  %s\n", c.Type, c.ID, c.Title)
		}
		return nil
	}

	db, ok := b.docs.(*store.DB)
	if !ok {
		return fmt.Errorf("listing roots needs the sqlite backend; pass a parent ID")
	}
	roots, err := db.ListRootTopics(ctx)
	if err != nil {
		return fmt.Errorf("list roots: %w", err)
	}
	if len(roots) == 0 {
		fmt.Println("No topics yet. Add one with `topicgraph topic put`.")
		return nil
	}

	fmt.Println("## Topics")
	fmt.Println()
	for _, r := range roots {
		count, _ := db.CountChildren(ctx, r.ID)
		fmt.Printf("  %s  %s (%d children)\n", r.ID, r.Title, count)
	}
	return nil
}
