package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rikkaport/internal/convert"
)

var inspectInput string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Detect the format of a backup archive and summarize its contents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if inspectInput == "" {
			return fmt.Errorf("--input is required")
		}
		res, err := convert.Inspect(inspectInput)
		if err != nil {
			return err
		}
		printJSON(res)
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectInput, "input", "i", "", "input backup zip")
	rootCmd.AddCommand(inspectCmd)
}
