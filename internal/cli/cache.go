package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/boardharvest/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the detail response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached detail response",
	Long: `Clear deletes the on-disk detail cache. The next enrich run refetches
every pending item from the detail endpoint.`,
	RunE: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().String("cache-dir", "", "directory of the detail cache")
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	c := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.TTL)
	n, err := c.Len()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	logger.Debug("cache cleared", "dir", cfg.Cache.Dir, "entries", n)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d cached responses from %s\n", n, cfg.Cache.Dir)
	return nil
}
