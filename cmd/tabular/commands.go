package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabinfer/internal/bayes"
	"github.com/JonMunkholm/tabinfer/internal/core"
	"github.com/JonMunkholm/tabinfer/internal/dataset"
	"github.com/JonMunkholm/tabinfer/internal/kmeans"
	"github.com/JonMunkholm/tabinfer/internal/reduct"
	"github.com/JonMunkholm/tabinfer/internal/tree"
)

func init() {
	previewCmd.Flags().Int("sample-rows", 0, "number of sample rows (0 for the default)")
	previewCmd.Flags().Int("distinct-limit", 0, "distinct values listed per column (0 for the default)")

	kmeansCmd.Flags().Int("k", 0, "number of clusters")
	kmeansCmd.Flags().StringSlice("columns", nil, "numeric columns to cluster (default: every numeric column)")
	kmeansCmd.Flags().Int("max-iter", 0, "iteration bound (0 for the configured default)")
	kmeansCmd.Flags().Float64("tol", kmeans.DefaultTol, "centroid shift tolerance")
	kmeansCmd.Flags().Int64("seed", 0, "random seed (unset picks one)")
	kmeansCmd.Flags().String("init", string(kmeans.InitRandom), "initialisation: random or kmeans++")
	_ = kmeansCmd.MarkFlagRequired("k")

	bayesCmd.Flags().String("target", "", "class column")
	bayesCmd.Flags().StringSlice("features", nil, "feature columns")
	bayesCmd.Flags().StringToString("evidence", nil, "observed values, feature=value")
	bayesCmd.Flags().Float64("laplace", 0, "additive smoothing constant")
	_ = bayesCmd.MarkFlagRequired("target")

	for _, c := range []*cobra.Command{treeCmd, predictCmd} {
		c.Flags().String("target", "", "class column")
		c.Flags().StringSlice("features", nil, "feature columns (default: every other column)")
		c.Flags().Int("max-depth", -1, "maximum depth (-1 for unbounded)")
		c.Flags().Int("min-samples-split", 2, "rows needed to split a node")
		_ = c.MarkFlagRequired("target")
	}
	predictCmd.Flags().StringToString("sample", nil, "sample to classify, feature=value")
	_ = predictCmd.MarkFlagRequired("sample")
	treeCmd.AddCommand(predictCmd)

	reductCmd.Flags().String("decision", "", "decision column")
	reductCmd.Flags().StringSlice("conditions", nil, "condition columns (default: every other column)")
	reductCmd.Flags().Int("max-attributes", 0, "exhaustive search ceiling (0 for the configured default)")
	_ = reductCmd.MarkFlagRequired("decision")

	approxCmd.Flags().String("decision", "", "decision column")
	approxCmd.Flags().StringSlice("attributes", nil, "attributes inducing the classes (default: every other column)")
	approxCmd.Flags().String("value", "", "decision value to approximate")
	_ = approxCmd.MarkFlagRequired("decision")
	_ = approxCmd.MarkFlagRequired("value")

	rootCmd.AddCommand(previewCmd, kmeansCmd, bayesCmd, treeCmd, reductCmd, approxCmd)
}

// withFile opens the CSV named by the first argument and hands it to run.
func withFile(run func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		out, err := run(cmd.Context(), cmd, core.Upload{FileName: filepath.Base(args[0]), Body: f})
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, out)
	}
}

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show inferred column types, distinct values and sample rows",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		rows, _ := cmd.Flags().GetInt("sample-rows")
		distinct, _ := cmd.Flags().GetInt("distinct-limit")
		return service.Preview(ctx, in, dataset.PreviewOptions{SampleRows: rows, DistinctLimit: distinct})
	}),
}

var kmeansCmd = &cobra.Command{
	Use:   "kmeans <file>",
	Short: "Cluster numeric columns with K-Means",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		k, _ := cmd.Flags().GetInt("k")
		columns, _ := cmd.Flags().GetStringSlice("columns")
		maxIter, _ := cmd.Flags().GetInt("max-iter")
		tol, _ := cmd.Flags().GetFloat64("tol")
		method, _ := cmd.Flags().GetString("init")
		p := kmeans.Params{K: k, Columns: columns, MaxIter: maxIter, Tol: tol, Init: kmeans.Init(method)}
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetInt64("seed")
			p.RandomState = &seed
		}
		return service.KMeans(ctx, in, p)
	}),
}

var bayesCmd = &cobra.Command{
	Use:   "bayes <file>",
	Short: "Classify one observation with Naive Bayes and show the derivation",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		target, _ := cmd.Flags().GetString("target")
		features, _ := cmd.Flags().GetStringSlice("features")
		evidence, _ := cmd.Flags().GetStringToString("evidence")
		laplace, _ := cmd.Flags().GetFloat64("laplace")
		if len(features) == 0 {
			// Evidence keys name the features when none are listed.
			features = lo.Keys(evidence)
			slices.Sort(features)
		}
		return service.NaiveBayes(ctx, in, bayes.Params{
			Target:   target,
			Features: features,
			Evidence: evidence,
			Laplace:  laplace,
		})
	}),
}

func treeFlags(cmd *cobra.Command) tree.Params {
	target, _ := cmd.Flags().GetString("target")
	features, _ := cmd.Flags().GetStringSlice("features")
	depth, _ := cmd.Flags().GetInt("max-depth")
	split, _ := cmd.Flags().GetInt("min-samples-split")
	p := tree.Params{Target: target, Features: features, MinSamplesSplit: split}
	if depth >= 0 {
		p.MaxDepth = &depth
	}
	return p
}

var treeCmd = &cobra.Command{
	Use:   "tree <file>",
	Short: "Induce an ID3 decision tree",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		return service.DecisionTree(ctx, in, treeFlags(cmd))
	}),
}

var predictCmd = &cobra.Command{
	Use:   "predict <file>",
	Short: "Induce a tree and classify one sample",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		sample, _ := cmd.Flags().GetStringToString("sample")
		return service.PredictTree(ctx, in, treeFlags(cmd), sample)
	}),
}

var reductCmd = &cobra.Command{
	Use:   "reduct <file>",
	Short: "Compute rough-set reducts, the core and dependency degrees",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		decision, _ := cmd.Flags().GetString("decision")
		conditions, _ := cmd.Flags().GetStringSlice("conditions")
		limit, _ := cmd.Flags().GetInt("max-attributes")
		return service.Reduct(ctx, in, reduct.Params{
			Decision:      decision,
			Conditions:    conditions,
			MaxAttributes: limit,
		})
	}),
}

var approxCmd = &cobra.Command{
	Use:   "approx <file>",
	Short: "Lower and upper approximation of one decision value",
	Args:  cobra.ExactArgs(1),
	RunE: withFile(func(ctx context.Context, cmd *cobra.Command, in core.Upload) (any, error) {
		decision, _ := cmd.Flags().GetString("decision")
		attributes, _ := cmd.Flags().GetStringSlice("attributes")
		value, _ := cmd.Flags().GetString("value")
		return service.Approximate(ctx, in, core.ApproximationParams{
			Decision:   decision,
			Attributes: attributes,
			Value:      value,
		})
	}),
}
