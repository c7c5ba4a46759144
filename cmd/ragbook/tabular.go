package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/internal/tabular"
)

func newTabularCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabular",
		Short: "Train and evaluate a k-nearest-neighbours classifier on CSV data",
	}
	cmd.AddCommand(newTabularTrainCommand(), newTabularEvalCommand())
	return cmd
}

func newTabularTrainCommand() *cobra.Command {
	var (
		csvSource string
		label     string
		testSize  float64
		seed      uint64
		out       string
		grid      []string
		folds     int
		k         int
		weights   string
		metric    string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a classifier, optionally grid-searching its parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			ds, err := tabular.LoadCSV(ctx, csvSource, label)
			if err != nil {
				return err
			}
			train, test, err := tabular.TrainTestSplit(ds, testSize, seed)
			if err != nil {
				return err
			}
			slog.Info("loaded dataset", "rows", ds.Len(), "features", len(ds.FeatureNames), "train", train.Len(), "test", test.Len())

			var model *tabular.Model
			if len(grid) > 0 {
				g, err := tabular.ParseGrid(grid)
				if err != nil {
					return err
				}
				res, err := tabular.GridSearch(ctx, g, train, folds)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PARAMS\tMEAN CV ACCURACY\t")
				for _, r := range res.Results {
					mark := ""
					if r.Params == res.Best {
						mark = "*"
					}
					fmt.Fprintf(tw, "%s\t%.4f\t%s\n", r.Params, r.MeanScore, mark)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				model = res.Model
			} else {
				model, err = tabular.Train(train, tabular.Params{K: k, Weighting: weights, Metric: metric})
				if err != nil {
					return err
				}
			}

			score, err := model.Score(test)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "model %s: test accuracy %.4f on %d rows\n", model.Classifier.Params(), score, test.Len())

			if out != "" {
				if err := tabular.Save(out, model); err != nil {
					return err
				}
				fmt.Fprintf(w, "saved %s\n", out)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&csvSource, "csv", "", "CSV file path or http(s) URL")
	f.StringVar(&label, "label", "", "Label column (default: last column)")
	f.Float64Var(&testSize, "test-size", 0.2, "Fraction of rows held out for testing")
	f.Uint64Var(&seed, "seed", 42, "Shuffle seed")
	f.StringVar(&out, "out", "", "Write the fitted model to this file")
	f.StringArrayVar(&grid, "grid", nil, "Grid values, e.g. k=1,3,5 or weights=uniform,distance (repeatable)")
	f.IntVar(&folds, "folds", 5, "Cross-validation folds for --grid")
	f.IntVar(&k, "k", 5, "Neighbours when not grid searching")
	f.StringVar(&weights, "weights", tabular.WeightUniform, "uniform or distance")
	f.StringVar(&metric, "metric", tabular.MetricEuclidean, "euclidean or manhattan")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}

func newTabularEvalCommand() *cobra.Command {
	var (
		modelPath string
		csvSource string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score a saved model on a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}

			model, err := tabular.Load(modelPath)
			if err != nil {
				return err
			}
			ds, err := tabular.LoadCSV(cmd.Context(), csvSource, model.LabelName)
			if err != nil {
				return err
			}
			score, err := model.Score(ds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %s: accuracy %.4f on %d rows\n", model.Classifier.Params(), score, ds.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Model file written by tabular train")
	cmd.Flags().StringVar(&csvSource, "csv", "", "CSV file path or http(s) URL")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
