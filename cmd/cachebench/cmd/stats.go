package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aweris/cachebench"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache occupancy",
	Long: `Show the occupancy of both caches and the limits they were written with.

The caches are read without being opened, so the stored limits and version
are reported as found and nothing is reset or trimmed. Running bench with
different limits or version would discard them.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	inv, err := cachebench.Inspect(getCacheDir())
	if err != nil {
		return err
	}

	bo, bs := inv.BlobOptions, inv.Blob
	fmt.Printf("dir:       %s\n", inv.Dir)
	fmt.Printf("blobCache: version %d, limits %d entries / %s\n",
		bo.Version, bo.MaxEntries, humanize.IBytes(uint64(bo.MaxBytes)))
	fmt.Printf("           region %d active, %d + %d entries, %s + %s\n",
		bs.ActiveRegion, bs.ActiveEntries, bs.InactiveEntries,
		humanize.IBytes(uint64(bs.ActiveBytes)), humanize.IBytes(uint64(bs.InactiveBytes)))
	fmt.Printf("DiskLru:   version %d, %s, %d entries, %s\n",
		inv.KV.AppVersion, inv.KV.Compression, inv.KV.Entries, humanize.IBytes(uint64(inv.KV.Size)))
	return nil
}
