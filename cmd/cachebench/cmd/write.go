package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write <source>",
	Short: "Compare cache writes",
	Long:  "Cache successive inputs in both caches, timing every put.",
	Args:  cobra.ExactArgs(1),
	RunE:  runWrite,
}

func init() {
	addBenchFlags(writeCmd)
	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	s, err := openSession(ctx, args[0], nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ids, err := s.inputs(ctx)
	if err != nil {
		return err
	}
	n, limiter := benchFlags(cmd, len(ids))
	engine := s.harness.Engine()
	failed, err := iterate(ctx, n, limiter, func(ctx context.Context) error {
		_, err := engine.CompareWrite(ctx)
		return err
	})
	printSummary(s, failed)
	return err
}
