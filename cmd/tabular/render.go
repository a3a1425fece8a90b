package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/JonMunkholm/tabinfer/internal/bayes"
	"github.com/JonMunkholm/tabinfer/internal/core"
	"github.com/JonMunkholm/tabinfer/internal/dataset"
	"github.com/JonMunkholm/tabinfer/internal/kmeans"
	"github.com/JonMunkholm/tabinfer/internal/reduct"
	"github.com/JonMunkholm/tabinfer/internal/tree"
)

// render writes out as indented JSON or as one or more text tables.
func render(w io.Writer, format string, out any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	switch v := out.(type) {
	case *dataset.PreviewResult:
		return renderPreview(w, v)
	case *kmeans.Model:
		return renderKMeans(w, v)
	case *bayes.Model:
		return renderBayes(w, v)
	case *tree.Result:
		return renderTree(w, v)
	case *core.TreePrediction:
		if err := renderTree(w, v.Tree); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\nprediction: %s (path: %s)\n", v.Prediction.Class, strings.Join(v.Prediction.Path, " > "))
		return err
	case *reduct.Result:
		return renderReduct(w, v)
	case *reduct.Approximation:
		return renderApproximation(w, v)
	default:
		return fmt.Errorf("no table layout for %T", out)
	}
}

// table renders one titled table.
func table(w io.Writer, title string, header []string, rows [][]string) error {
	if title != "" {
		if _, err := fmt.Fprintf(w, "%s\n", title); err != nil {
			return err
		}
	}
	t := tablewriter.NewWriter(w)
	t.Header(lo.ToAnySlice(header)...)
	for _, row := range rows {
		if err := t.Append(row); err != nil {
			return err
		}
	}
	if err := t.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func ints(xs []int) string {
	return strings.Join(lo.Map(xs, func(x int, _ int) string { return strconv.Itoa(x) }), " ")
}

func texts(vs []dataset.Value) string {
	return strings.Join(lo.Map(vs, func(v dataset.Value, _ int) string { return v.Text() }), ", ")
}

func renderPreview(w io.Writer, p *dataset.PreviewResult) error {
	rows := lo.Map(p.Columns, func(c dataset.ColumnSummary, _ int) []string {
		return []string{c.Name, string(c.Type), strconv.Itoa(c.DistinctCount), strconv.Itoa(c.Missing), texts(c.Distinct)}
	})
	if err := table(w, fmt.Sprintf("%d rows", p.RowCount), []string{"column", "type", "distinct", "missing", "values"}, rows); err != nil {
		return err
	}
	sample := lo.Map(p.Sample, func(row []dataset.Value, _ int) []string {
		return lo.Map(row, func(v dataset.Value, _ int) string { return v.Text() })
	})
	return table(w, "sample", p.Headers, sample)
}

func renderKMeans(w io.Writer, m *kmeans.Model) error {
	header := append([]string{"cluster", "size"}, m.Columns...)
	rows := make([][]string, len(m.Centroids))
	for i, c := range m.Centroids {
		row := []string{strconv.Itoa(i), strconv.Itoa(m.Sizes[i])}
		rows[i] = append(row, lo.Map(c, func(x float64, _ int) string { return num(x) })...)
	}
	title := fmt.Sprintf("k=%d iterations=%d converged=%t inertia=%s seed=%d",
		len(m.Centroids), m.Iterations, m.Converged, num(m.Inertia), m.Seed)
	return table(w, title, header, rows)
}

func renderBayes(w io.Writer, m *bayes.Model) error {
	header := []string{"class", "prior"}
	header = append(header, lo.Map(m.Features, func(f string, _ int) string {
		return "P(" + f + "=" + m.Evidence[f] + "|class)"
	})...)
	header = append(header, "score", "posterior")

	rows := lo.Map(m.Posterior, func(p bayes.Posterior, _ int) []string {
		row := []string{p.Class, fraction(p.Prior)}
		for _, c := range p.Components {
			row = append(row, fraction(c.Fraction))
		}
		return append(row, num(p.Score), num(p.Posterior))
	})
	if err := table(w, "prediction: "+m.Prediction, header, rows); err != nil {
		return err
	}
	for _, warning := range m.Warnings {
		if _, err := fmt.Fprintln(w, "warning:", warning); err != nil {
			return err
		}
	}
	return nil
}

func fraction(f bayes.Fraction) string {
	return fmt.Sprintf("%s/%s = %s", num(f.Numerator), num(f.Denominator), num(f.Probability))
}

func renderTree(w io.Writer, r *tree.Result) error {
	rows := lo.Map(r.Rules, func(rule tree.Rule, _ int) []string {
		return []string{rule.String(), strconv.Itoa(rule.Samples)}
	})
	title := fmt.Sprintf("depth=%d leaves=%d training accuracy=%s (%d/%d)",
		r.Depth, r.Leaves, num(r.Accuracy), r.Correct, r.Total)
	return table(w, title, []string{"rule", "samples"}, rows)
}

func renderReduct(w io.Writer, r *reduct.Result) error {
	title := fmt.Sprintf("γ(C)=%s (%d/%d)  γ(∅)=%s  subsets evaluated=%d",
		num(r.Dependency.Gamma), r.Dependency.Positive, r.Dependency.Total,
		num(r.EmptyDependency.Gamma), r.SubsetsEvaluated)
	rows := lo.Map(r.Reducts, func(red reduct.Reduct, _ int) []string {
		return []string{strings.Join(red.Attributes, ", "), strconv.Itoa(red.Size), num(red.Dependency.Gamma), num(red.Improvement)}
	})
	if err := table(w, title, []string{"reduct", "size", "γ", "improvement"}, rows); err != nil {
		return err
	}

	sig := lo.Map(r.Significance, func(s reduct.Significance, _ int) []string {
		return []string{s.Attribute, num(s.Significance), strconv.FormatBool(s.Indispensable)}
	})
	if err := table(w, "core: "+strings.Join(r.Core, ", "), []string{"attribute", "significance", "in core"}, sig); err != nil {
		return err
	}

	steps := lo.Map(r.Heuristic.Steps, func(s reduct.Step, _ int) []string {
		return []string{s.Attribute, num(s.Gamma), num(s.Gain)}
	})
	title = fmt.Sprintf("QuickReduct: %s (pruned: %s, minimal=%t)",
		strings.Join(r.Heuristic.Attributes, ", "), strings.Join(r.Heuristic.Pruned, ", "), r.Heuristic.Minimal)
	return table(w, title, []string{"added", "γ", "gain"}, steps)
}

func renderApproximation(w io.Writer, a *reduct.Approximation) error {
	rows := [][]string{
		{"target", strconv.Itoa(len(a.Target)), ints(a.Target)},
		{"lower", strconv.Itoa(len(a.Lower)), ints(a.Lower)},
		{"upper", strconv.Itoa(len(a.Upper)), ints(a.Upper)},
		{"boundary", strconv.Itoa(len(a.Boundary)), ints(a.Boundary)},
	}
	title := fmt.Sprintf("%s = %s over {%s}  accuracy=%s",
		a.Decision, a.Value, strings.Join(a.Attributes, ", "), num(a.Accuracy))
	return table(w, title, []string{"set", "size", "rows"}, rows)
}
