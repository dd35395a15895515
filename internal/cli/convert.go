package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"rikkaport/internal/convert"
)

var (
	convertInputs       []string
	convertOutput       string
	convertFrom         string
	convertTo           string
	convertTemplate     string
	convertRedact       bool
	convertPrecedence   string
	convertSourceIndex  int
	convertShowProgress bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert one or more backup archives to the target format",
	Long: `Convert reads source archives, merges them when more than one is given,
and writes a complete archive for the target application. Configuration
conflicts between sources are resolved by --config-precedence.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(convertInputs) == 0 || convertOutput == "" || convertTo == "" {
			return fmt.Errorf("--input, --output, and --to are required")
		}

		precedence := convertPrecedence
		if precedence == "" && loadedConfig != nil {
			precedence = loadedConfig.ConfigPrecedence
		}
		template := convertTemplate
		if template == "" && loadedConfig != nil {
			template = loadedConfig.TemplateFor(convertTo)
		}

		opts := convert.ConvertOptions{
			InputPath:         convertInputs[0],
			InputPaths:        convertInputs,
			OutputPath:        convertOutput,
			From:              convertFrom,
			To:                convertTo,
			TemplatePath:      template,
			RedactSecrets:     convertRedact,
			ConfigPrecedence:  precedence,
			ConfigSourceIndex: convertSourceIndex,
		}
		if convertShowProgress {
			opts.Progress = func(ev convert.ProgressEvent) {
				slog.Info("progress", "stage", ev.Stage, "percent", ev.Percent, "message", ev.Message)
			}
		}

		manifest, err := convert.Convert(opts)
		if err != nil {
			return err
		}
		printJSON(map[string]any{
			"ok":       true,
			"output":   convertOutput,
			"manifest": manifest,
		})
		return nil
	},
}

func init() {
	convertCmd.Flags().StringArrayVarP(&convertInputs, "input", "i", nil, "input backup zip (repeatable)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output backup zip")
	convertCmd.Flags().StringVar(&convertFrom, "from", "auto", "source format: auto|cherry|rikka")
	convertCmd.Flags().StringVar(&convertTo, "to", "", "target format: cherry|rikka")
	convertCmd.Flags().StringVar(&convertTemplate, "template", "", "target template backup zip")
	convertCmd.Flags().BoolVar(&convertRedact, "redact-secrets", false, "blank out API keys and sync credentials in the output")
	convertCmd.Flags().StringVar(&convertPrecedence, "config-precedence", "", "config winner for multi-input merge: latest|first|target|source")
	convertCmd.Flags().IntVar(&convertSourceIndex, "config-source-index", 0, "1-based source index when --config-precedence=source")
	convertCmd.Flags().BoolVar(&convertShowProgress, "progress", false, "log stage progress while converting")
	rootCmd.AddCommand(convertCmd)
}
