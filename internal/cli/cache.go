package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local topic cache",
}

var cacheKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List cached topic IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s sessionCmd) error {
			keys := s.sess.CacheKeys(cmd.Context())
			for _, k := range keys {
				fmt.Println(k)
			}
			fmt.Fprintf(os.Stderr, "%d cached\n", len(keys))
			return nil
		})
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get [topic-id]",
	Short: "Print a cached topic without touching the remote store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s sessionCmd) error {
			t := s.sess.CacheGet(cmd.Context(), args[0])
			if t == nil {
				return fmt.Errorf("%s is not cached", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		})
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete [topic-id...]",
	Short: "Remove topics from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s sessionCmd) error {
			for _, id := range args {
				s.sess.CacheDelete(cmd.Context(), id)
			}
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s sessionCmd) error {
			s.sess.Logout(cmd.Context())
			fmt.Println("cache cleared")
			return nil
		})
	},
}

var cacheEvictMax int

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict least recently accessed topics down to --max",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s sessionCmd) error {
			max := cacheEvictMax
			if max < 0 {
				max = s.b.cfg.Cache.MaxItems
			}
			n := s.sess.CacheEnforceCapacity(cmd.Context(), max)
			fmt.Printf("evicted %d (max %d)\n", n, max)
			return nil
		})
	},
}

func init() {
	cacheEvictCmd.Flags().IntVar(&cacheEvictMax, "max", -1, "records to keep (-1 uses cache.max_items)")

	cacheCmd.AddCommand(cacheKeysCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheEvictCmd)
}
