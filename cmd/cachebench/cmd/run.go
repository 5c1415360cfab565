package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/aweris/cachebench"
	"github.com/aweris/cachebench/internal/media"
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Compare writes and reads",
	Long: "Each iteration caches the next input in both caches and reads it straight\n" +
		"back, timing every put and get.",
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	addBenchFlags(runCmd)
	runCmd.Flags().Bool("transcode", false, "re-encode inputs as JPEG before caching")
	runCmd.Flags().Int("quality", media.DefaultQuality, "JPEG quality when transcoding")
	runCmd.Flags().Int("max-dimension", 0, "shrink transcoded inputs to this many pixels on the longest side")
	runCmd.Flags().Bool("verify", false, "compare the payloads both caches return")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	flags := cmd.Flags()

	var tc *media.Transcoder
	if transcode, _ := flags.GetBool("transcode"); transcode {
		quality, _ := flags.GetInt("quality")
		maxDim, _ := flags.GetInt("max-dimension")
		tc = &media.Transcoder{Quality: quality, MaxDimension: maxDim}
	}
	verify, _ := flags.GetBool("verify")

	s, err := openSession(ctx, args[0], tc, cachebench.WithVerifyReads(verify))
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
		_, werr := engine.CompareWrite(ctx)
		_, rerr := engine.CompareRead(ctx)
		return errors.Join(werr, rerr)
	})
	printSummary(s, failed)
	return err
}
