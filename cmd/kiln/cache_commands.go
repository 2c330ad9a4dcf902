package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the result cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show result cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				out := cmd.OutOrStdout()
				if s.cache == nil {
					fmt.Fprintln(out, "Result cache disabled (set cache.enabled = true)")
					return nil
				}
				stats, err := s.cache.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"Directory", stats.Dir},
					{"Entries", strconv.Itoa(stats.Entries)},
					{"Size", humanize.IBytes(uint64(stats.TotalBytes))},
					{"Limit", humanize.IBytes(uint64(stats.MaxBytes))},
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove least recently used entries over the size limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				if s.cache == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Result cache disabled (set cache.enabled = true)")
					return nil
				}
				if err := s.cache.Prune(cmd.Context()); err != nil {
					return err
				}
				stats, err := s.cache.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Result cache holds %d entries (%s)\n", stats.Entries, humanize.IBytes(uint64(stats.TotalBytes)))
				return nil
			})
		},
	}
}
