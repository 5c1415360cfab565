package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <source>",
	Short: "List inputs of a source",
	Long:  "List the inputs of a directory, oci://<image> or s3://<bucket>/<prefix> source.",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	src, err := openSource(args[0])
	if err != nil {
		return err
	}
	ids, err := src.List(cmd.Context())
	if err != nil {
		return err
	}

	for _, id := range ids {
		fmt.Println(id)
	}
	if len(ids) == 0 {
		fmt.Println("(no inputs)")
	}
	return nil
}
