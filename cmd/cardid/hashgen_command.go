package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHashgenCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "hashgen",
		Short: "Build or reuse the fingerprint cache",
		Long: "Loads the fingerprint cache, building it from catalog images when it is missing or was\n" +
			"made with a different grid. --force ignores the cache and fetches every sample again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			build := engine.Identifier.EnsureFingerprintIndex
			if force {
				build = engine.Identifier.RebuildFingerprintIndex
			}
			if err := build(cmd.Context()); err != nil {
				return err
			}

			status, _ := engine.Identifier.FingerprintStatus()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fingerprints: %d (grid %s, threshold %d)\n", status.Entries, status.Grid, status.MaxDistance)
			if status.CachePath != "" {
				fmt.Fprintf(out, "Cache: %s\n", status.CachePath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild even when a valid cache exists")
	return cmd
}
