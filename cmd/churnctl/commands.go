package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"smartassist-api/pkg/models"
	"smartassist-api/pkg/services"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		rows      int
		churnRate float64
		seed      int64
		out       string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic labelled customer dataset as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := services.GenerateSyntheticCustomers(rows, churnRate, seed)
			if err != nil {
				return err
			}
			return withOutput(cmd, out, func(w io.Writer) error {
				return services.WriteTrainingCSV(w, ts)
			})
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 1000, "number of customers")
	cmd.Flags().Float64Var(&churnRate, "churn-rate", 0.25, "fraction of churned customers")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var (
		data       string
		noProgress bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the churn model on a labelled CSV/XLSX dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(opts, data)
			if err != nil {
				return err
			}
			ts, err := services.ParseTrainingSet(table)
			if err != nil {
				return err
			}

			pipeline := services.NewChurnPipeline(opts.modelDir, opts.log)
			if !noProgress {
				bar := progressbar.NewOptions(0,
					progressbar.OptionSetDescription("training"),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionClearOnFinish(),
				)
				pipeline.SetProgressFunc(func(done, total int) {
					bar.ChangeMax(total)
					_ = bar.Set(done)
				})
				defer bar.Finish()
			}

			report, err := pipeline.Train(ts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", envOr("CUSTOMER_DATA_FILE", ""), "labelled dataset (CSV or XLSX)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the evaluation report as JSON")
	return cmd
}

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var (
		data string
		out  string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a customer dataset with the persisted model",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(opts, data)
			if err != nil {
				return err
			}
			records, err := services.ParseCustomers(table)
			if err != nil {
				return err
			}
			scored, err := services.NewChurnPipeline(opts.modelDir, opts.log).Score(records)
			if err != nil {
				return err
			}
			return withOutput(cmd, out, func(w io.Writer) error {
				return services.WriteScoredCSV(w, scored)
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", envOr("CUSTOMER_DATA_FILE", ""), "customer dataset (CSV or XLSX)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output CSV (default stdout)")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		data         string
		requireLabel bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a dataset for missing columns and null values",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(opts, data)
			if err != nil {
				return err
			}
			result := services.ValidateTable(table, requireLabel)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows)\n", result.Message, len(table.Rows))
			if !result.Valid {
				return fmt.Errorf("dataset is invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", envOr("CUSTOMER_DATA_FILE", ""), "dataset (CSV or XLSX)")
	cmd.Flags().BoolVar(&requireLabel, "require-label", false, "require the churn column")
	return cmd
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the persisted model and its feature importances",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := services.NewChurnPipeline(opts.modelDir, opts.log).ModelInfo()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
}

func withOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *models.EvaluationReport) {
	fmt.Fprintf(w, "model:      %s\n", r.ModelID)
	fmt.Fprintf(w, "train/test: %d/%d (churn rate %.3f/%.3f)\n", r.TrainSize, r.TestSize, r.TrainChurnRate, r.TestChurnRate)
	fmt.Fprintf(w, "ROC AUC:    %.4f\n\n", r.AUC)
	fmt.Fprintln(w, r.ClassificationReport.Text)
	fmt.Fprintf(w, "confusion matrix (rows actual, cols predicted):\n  %v\n  %v\n\n", r.ConfusionMatrix[0], r.ConfusionMatrix[1])
	fmt.Fprintln(w, "feature importance:")
	for _, fw := range services.SortedImportances(r.FeatureImportance) {
		fmt.Fprintf(w, "  %-20s %.4f\n", fw.Feature, fw.Importance)
	}
}
