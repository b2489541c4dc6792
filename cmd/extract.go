package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/insights-cli/internal/doctext"
	"github.com/sells-group/insights-cli/internal/fetcher"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/survey"
)

var (
	extractCategory string
	extractKPIs     string
	extractOut      string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Extract insights from local survey and transcript files",
	Long: "Reads each file, analyzes it, and prints one JSON result per file. " +
		".json files are read as surveys, .xlsx and .csv exports are imported as surveys, " +
		".pdf and .docx files are converted to transcript text, " +
		"and everything else is read as a transcript unless --category says otherwise.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		category, err := parseCategory(extractCategory)
		if err != nil {
			return err
		}
		files, err := loadInputs(ctx, args, category, initDocs(cfg))
		if err != nil {
			return err
		}
		kpis, err := loadKPIs(extractKPIs)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		runID, results, stats := env.Recorder.Run(ctx, model.AnalysisRequest{Files: files, KPIs: kpis})
		zap.L().Info("extract complete",
			zap.String("run_id", runID),
			zap.Int("files", stats.Files),
			zap.Int("blocks", stats.Blocks),
			zap.Int("failed_blocks", stats.FailedBlocks),
			zap.Int("insights", stats.Insights),
			zap.Float64("estimated_cost_usd", stats.EstimatedCost),
		)

		var out io.Writer = os.Stdout
		if extractOut != "" {
			f, err := os.Create(extractOut)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return writeResults(out, results)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractCategory, "category", "", "force a category for every file (survey or transcript)")
	extractCmd.Flags().StringVar(&extractKPIs, "kpis", "", "YAML or JSON file with a KPI list shared by all files")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "write results to a file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}

// parseCategory maps a --category value to a file category. An empty
// value means the category is picked per file.
func parseCategory(s string) (model.Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "survey", string(model.CategorySurvey):
		return model.CategorySurvey, nil
	case "transcript", string(model.CategoryTranscript):
		return model.CategoryTranscript, nil
	default:
		return "", eris.Errorf("unknown category %q (want survey or transcript)", s)
	}
}

// loadInputs reads each path into a file input.
func loadInputs(ctx context.Context, paths []string, category model.Category, docs *doctext.Reader) ([]model.FileInput, error) {
	files := make([]model.FileInput, 0, len(paths))
	for _, path := range paths {
		f, err := loadInput(ctx, path, category, docs)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func loadInput(ctx context.Context, path string, category model.Category, docs *doctext.Reader) (model.FileInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FileInput{}, eris.Wrapf(err, "read %s", path)
	}
	name := filepath.Base(path)

	if fetcher.IsSheet(path) {
		rows, err := fetcher.ReadSheet(ctx, path, data)
		if err != nil {
			return model.FileInput{}, err
		}
		imp, err := survey.FromRows(rows)
		if err != nil {
			return model.FileInput{}, eris.Wrapf(err, "import %s", path)
		}
		content, err := imp.Content()
		if err != nil {
			return model.FileInput{}, err
		}
		zap.L().Debug("imported survey sheet", zap.String("file", name), zap.Strings("columns", imp.Summary))
		return model.FileInput{Filename: name, Content: content, Category: model.CategorySurvey}, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		text, err := docs.Text(ctx, path, data)
		if err != nil {
			return model.FileInput{}, eris.Wrapf(err, "read document %s", path)
		}
		return model.FileInput{Filename: name, Content: text, Category: model.CategoryTranscript}, nil
	}

	if category == "" {
		category = model.CategoryTranscript
		if strings.EqualFold(filepath.Ext(path), ".json") {
			category = model.CategorySurvey
		}
	}
	return model.FileInput{Filename: name, Content: string(data), Category: category}, nil
}

// loadKPIs reads a KPI list from a YAML or JSON file. An empty path
// yields no KPIs.
func loadKPIs(path string) ([]model.KPI, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read kpis %s", path)
	}

	var kpis []model.KPI
	if err := yaml.Unmarshal(data, &kpis); err != nil {
		return nil, eris.Wrapf(err, "parse kpis %s", path)
	}
	return kpis, nil
}

func writeResults(w io.Writer, results []model.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(results)
}
