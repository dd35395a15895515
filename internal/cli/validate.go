package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rikkaport/internal/convert"
)

var validateInput string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a backup archive for structural and referential problems",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if validateInput == "" {
			return fmt.Errorf("--input is required")
		}
		res, err := convert.Validate(validateInput)
		if err != nil {
			return err
		}
		printJSON(res)
		if !res.Valid {
			return fmt.Errorf("archive failed validation")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateInput, "input", "i", "", "input backup zip")
	rootCmd.AddCommand(validateCmd)
}
