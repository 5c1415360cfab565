package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aweris/cachebench"
)

var readCmd = &cobra.Command{
	Use:   "read <source>",
	Short: "Compare cache reads",
	Long: "Read successive inputs back from both caches through one pooled buffer,\n" +
		"timing every get. Inputs must have been cached by an earlier write or run.",
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

func init() {
	addBenchFlags(readCmd)
	readCmd.Flags().Bool("verify", false, "compare the payloads both caches return")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	verify, _ := cmd.Flags().GetBool("verify")
	s, err := openSession(ctx, args[0], nil, cachebench.WithVerifyReads(verify))
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
		if _, err := engine.Next(); err != nil {
			return err
		}
		_, err := engine.CompareRead(ctx)
		return err
	})
	printSummary(s, failed)
	return err
}
