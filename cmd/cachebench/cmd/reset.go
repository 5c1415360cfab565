package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/cachebench"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete both caches",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	dir := getCacheDir()
	if err := cachebench.Remove(dir); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Removed caches in %s\n", dir)
	return nil
}
