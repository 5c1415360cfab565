package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aweris/cachebench/internal/media"
)

var probeCmd = &cobra.Command{
	Use:   "probe <source>",
	Short: "Print the format and dimensions of every input",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, err := openSource(args[0])
	if err != nil {
		return err
	}
	ids, err := src.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, id := range ids {
		data, err := src.Load(ctx, id)
		if err != nil {
			return err
		}
		info, err := media.Probe(data)
		if err != nil {
			fmt.Fprintf(w, "%s\t(%v)\n", id, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\n", id, info.Format, info.Width, info.Height, humanize.Bytes(uint64(info.Bytes)))
	}
	return nil
}
