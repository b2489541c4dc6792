package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/fetcher"
	"github.com/sells-group/insights-cli/internal/survey"
)

var importOut string

var importCmd = &cobra.Command{
	Use:   "import <sheet>",
	Short: "Convert an XLSX or CSV survey export into survey JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !fetcher.IsSheet(path) {
			return eris.Wrapf(fetcher.ErrUnsupportedSheet, "import %s", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrap(err, "read sheet")
		}
		rows, err := fetcher.ReadSheet(cmd.Context(), path, data)
		if err != nil {
			return err
		}
		imp, err := survey.FromRows(rows)
		if err != nil {
			return eris.Wrap(err, "import sheet")
		}

		out, err := json.MarshalIndent(imp.Payload, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode survey")
		}

		zap.L().Info("import complete",
			zap.String("sheet", path),
			zap.Int("kpis", len(imp.Payload.QuantitativeKPIs)),
			zap.Int("questions", len(imp.Payload.QualitativeData)),
		)
		for _, line := range imp.Summary {
			fmt.Fprintln(os.Stderr, line)
		}

		if importOut == "" {
			_, err = fmt.Fprintln(os.Stdout, string(out))
			return err
		}
		return os.WriteFile(importOut, append(out, '\n'), 0o644)
	},
}

func init() {
	importCmd.Flags().StringVarP(&importOut, "out", "o", "", "write survey JSON to a file instead of stdout")
	rootCmd.AddCommand(importCmd)
}
