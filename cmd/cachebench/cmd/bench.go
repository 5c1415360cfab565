package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/aweris/cachebench"
)

func addBenchFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("iterations", "n", 0, "number of iterations (default: one per input)")
	cmd.Flags().Float64("rate", 0, "maximum iterations per second (0: unlimited)")
}

func benchFlags(cmd *cobra.Command, inputs int) (iterations int, limiter *rate.Limiter) {
	iterations, _ = cmd.Flags().GetInt("iterations")
	if iterations <= 0 {
		iterations = inputs
	}
	if perSecond, _ := cmd.Flags().GetFloat64("rate"); perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return iterations, limiter
}

// iterate runs fn n times and counts failed iterations. It stops early only
// when ctx is done.
func iterate(ctx context.Context, n int, limiter *rate.Limiter, fn func(context.Context) error) (failed int, err error) {
	for range n {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return failed, err
			}
		}
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
		}
	}
	return failed, nil
}

func printStats(w io.Writer, a cachebench.Averages) {
	fmt.Fprintf(w, "writing: blobCache = %d, DiskLruCache = %d\n", a.WriteBlob.Milliseconds(), a.WriteKV.Milliseconds())
	fmt.Fprintf(w, "reading: blobCache = %d, DiskLruCache = %d\n", a.ReadBlob.Milliseconds(), a.ReadKV.Milliseconds())
}

func printSummary(s *session, failed int) {
	a := s.harness.Engine().Averages()
	hits, misses := s.payloads.Stats()
	fmt.Fprintf(os.Stderr, "%d writes, %d reads recorded, %d dropped (payloads: %d loaded, %d reused)\n",
		a.Writes, a.Reads, failed, misses, hits)
	printStats(os.Stdout, a)
}
