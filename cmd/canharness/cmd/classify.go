package cmd

import (
	"fmt"
	"strconv"

	"github.com/devboard/canharness"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <status>...",
	Short: "Print the outcome of raw driver status codes",
	Long:  `Status codes may be given in decimal or hex, e.g. 0x103 or -1.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, a := range args {
			v, err := strconv.ParseInt(a, 0, 32)
			if err != nil {
				return fmt.Errorf("invalid status %q: %w", a, err)
			}
			st := canharness.Status(v)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", a, st, canharness.Classify(st))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
