// Package bayes implements a categorical Naive Bayes classifier that
// reports every count, numerator and denominator behind its posterior so a
// caller can render the derivation step by step.
package bayes

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// Params configures a classification.
type Params struct {
	Target   string
	Features []string
	// Evidence maps every feature to the observed value being classified.
	Evidence map[string]string
	// Laplace is the additive smoothing constant; 0 disables smoothing.
	Laplace float64
}

// Fraction is one probability shown as numerator over denominator.
type Fraction struct {
	Count       int     `json:"count"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	Probability float64 `json:"prob"`
}

func fraction(count int, laplace, denominator float64) Fraction {
	num := float64(count) + laplace
	f := Fraction{Count: count, Numerator: num, Denominator: denominator}
	if denominator > 0 {
		f.Probability = num / denominator
	}
	return f
}

// Prior is the smoothed class frequency.
type Prior struct {
	Class string `json:"class"`
	Fraction
}

// ClassFraction is a conditional probability for one class.
type ClassFraction struct {
	Class string `json:"class"`
	Fraction
}

// ValueRow holds P(feature=value | class) for every class.
type ValueRow struct {
	Value   string          `json:"value"`
	Classes []ClassFraction `json:"classes"`
}

// ConditionalTable is the full likelihood table of one feature.
type ConditionalTable struct {
	Feature     string     `json:"feature"`
	UniqueCount int        `json:"unique_count"`
	Values      []ValueRow `json:"values"`
}

// Factor is one evidence likelihood used in a class score.
type Factor struct {
	Feature string `json:"feature"`
	Value   string `json:"value"`
	Fraction
	// UniqueCount is the vocabulary size used in the denominator. An evidence
	// value never seen for the feature widens the vocabulary by one.
	UniqueCount int  `json:"unique_count"`
	Unseen      bool `json:"unseen"`
}

// Posterior is the derivation for one class.
type Posterior struct {
	Class      string   `json:"class"`
	Prior      Fraction `json:"prior"`
	Components []Factor `json:"components"`
	Score      float64  `json:"score"`
	// LogScore is nil when the score is exactly zero.
	LogScore  *float64 `json:"log_score"`
	Posterior float64  `json:"posterior"`
}

// Model is the result of a classification.
type Model struct {
	Target       string             `json:"target"`
	Features     []string           `json:"features"`
	Evidence     map[string]string  `json:"evidence"`
	Laplace      float64            `json:"laplace"`
	RowCount     int                `json:"row_count"`
	SkippedRows  int                `json:"skipped_rows"`
	Classes      []string           `json:"classes"`
	Priors       []Prior            `json:"priors"`
	Conditionals []ConditionalTable `json:"conditionals"`
	Posterior    []Posterior        `json:"posterior"`
	Prediction   string             `json:"prediction"`
	Warnings     []string           `json:"warnings"`
}

// orderedCounts counts keys and remembers first-seen order.
type orderedCounts struct {
	order  []string
	counts map[string]int
}

func newOrderedCounts() *orderedCounts {
	return &orderedCounts{counts: make(map[string]int)}
}

func (o *orderedCounts) add(key string) {
	if _, ok := o.counts[key]; !ok {
		o.order = append(o.order, key)
	}
	o.counts[key]++
}

// Run estimates the model from ds and classifies p.Evidence.
func Run(ctx context.Context, ds *dataset.Dataset, p Params) (*Model, error) {
	targetIdx, featIdx, evidence, err := validate(ds, p)
	if err != nil {
		return nil, err
	}

	classes := newOrderedCounts()
	var rows []int
	for r := 0; r < ds.NumRows(); r++ {
		v := ds.At(r, targetIdx)
		if v.IsMissing() {
			continue
		}
		classes.add(v.Text())
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil, dataset.Invalidf("target %q has no values", p.Target)
	}
	if err := dataset.Canceled(ctx, "naive bayes counting"); err != nil {
		return nil, err
	}

	L := p.Laplace
	n := len(rows)
	m := &Model{
		Target:      p.Target,
		Features:    append([]string(nil), p.Features...),
		Evidence:    evidence,
		Laplace:     L,
		RowCount:    n,
		SkippedRows: ds.NumRows() - n,
		Classes:     classes.order,
		Warnings:    []string{},
	}

	priorDen := float64(n) + L*float64(len(classes.order))
	for _, c := range classes.order {
		m.Priors = append(m.Priors, Prior{Class: c, Fraction: fraction(classes.counts[c], L, priorDen)})
	}

	// joint[f][value][class] counts rows with feature f = value and the class.
	joint := make([]map[string]map[string]int, len(featIdx))
	valueOrder := make([][]string, len(featIdx))
	for f, col := range featIdx {
		joint[f] = make(map[string]map[string]int)
		for _, r := range rows {
			v := ds.At(r, col)
			if v.IsMissing() {
				continue
			}
			key := v.Text()
			if _, ok := joint[f][key]; !ok {
				joint[f][key] = make(map[string]int)
				valueOrder[f] = append(valueOrder[f], key)
			}
			joint[f][key][ds.At(r, targetIdx).Text()]++
		}

		unique := len(valueOrder[f])
		table := ConditionalTable{Feature: p.Features[f], UniqueCount: unique}
		for _, val := range valueOrder[f] {
			row := ValueRow{Value: val}
			for _, c := range classes.order {
				den := float64(classes.counts[c]) + L*float64(unique)
				row.Classes = append(row.Classes, ClassFraction{Class: c, Fraction: fraction(joint[f][val][c], L, den)})
			}
			table.Values = append(table.Values, row)
		}
		m.Conditionals = append(m.Conditionals, table)
	}

	zeroFactors := make(map[string][]string)
	best := math.Inf(-1)
	for ci, c := range classes.order {
		post := Posterior{Class: c, Prior: m.Priors[ci].Fraction}
		score := post.Prior.Probability
		logScore := math.Log(score)
		for f, feature := range p.Features {
			val := evidence[feature]
			unique := len(valueOrder[f])
			counts, seen := joint[f][val]
			if !seen {
				unique++
			}
			den := float64(classes.counts[c]) + L*float64(unique)
			factor := Factor{
				Feature:     feature,
				Value:       val,
				Fraction:    fraction(counts[c], L, den),
				UniqueCount: unique,
				Unseen:      !seen,
			}
			if factor.Probability == 0 {
				zeroFactors[c] = append(zeroFactors[c], feature+"="+val)
				m.Warnings = append(m.Warnings, fmt.Sprintf(
					"%s=%q never occurs with %s=%q; its likelihood is 0 and zeroes the score of %q (set laplace > 0 to smooth)",
					feature, val, p.Target, c, c))
			}
			score *= factor.Probability
			logScore += math.Log(factor.Probability)
			post.Components = append(post.Components, factor)
		}
		if !math.IsInf(logScore, -1) {
			ls := logScore
			post.LogScore = &ls
			post.Score = score
			best = math.Max(best, logScore)
		}
		m.Posterior = append(m.Posterior, post)
	}

	if math.IsInf(best, -1) {
		parts := lo.Map(classes.order, func(c string, _ int) string {
			return fmt.Sprintf("%s (%s)", c, strings.Join(zeroFactors[c], ", "))
		})
		return nil, fmt.Errorf("%w: every class score is zero with laplace=%s: %s",
			dataset.ErrDegenerateModel, strconv.FormatFloat(L, 'g', -1, 64), strings.Join(parts, "; "))
	}

	// Normalise in log space so tiny scores do not underflow to 0/0.
	total := 0.0
	for _, post := range m.Posterior {
		if post.LogScore != nil {
			total += math.Exp(*post.LogScore - best)
		}
	}
	bestPost := -1.0
	for i := range m.Posterior {
		post := &m.Posterior[i]
		if post.LogScore != nil {
			post.Posterior = math.Exp(*post.LogScore-best) / total
		}
		if post.Posterior > bestPost {
			bestPost = post.Posterior
			m.Prediction = post.Class
		}
	}

	return m, nil
}

func validate(ds *dataset.Dataset, p Params) (int, []int, map[string]string, error) {
	if p.Target == "" {
		return 0, nil, nil, dataset.Invalidf("target column is required")
	}
	targetIdx, ok := ds.Index(p.Target)
	if !ok {
		return 0, nil, nil, dataset.Invalidf("target column %q not found", p.Target)
	}
	if len(p.Features) == 0 {
		return 0, nil, nil, dataset.Invalidf("at least one feature is required")
	}
	if lo.Contains(p.Features, p.Target) {
		return 0, nil, nil, dataset.Invalidf("feature %q is also the target", p.Target)
	}
	featIdx, err := ds.Resolve(p.Features)
	if err != nil {
		return 0, nil, nil, err
	}
	if p.Laplace < 0 || math.IsNaN(p.Laplace) || math.IsInf(p.Laplace, 0) {
		return 0, nil, nil, dataset.Invalidf("laplace must be a finite number >= 0, got %v", p.Laplace)
	}

	evidence := make(map[string]string, len(p.Features))
	for i, f := range p.Features {
		raw, ok := p.Evidence[f]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return 0, nil, nil, dataset.Invalidf("evidence for feature %q is required", f)
		}
		evidence[f] = dataset.CanonicalText(raw, ds.Column(featIdx[i]).Type)
	}
	for f := range p.Evidence {
		if !lo.Contains(p.Features, f) {
			return 0, nil, nil, dataset.Invalidf("evidence given for %q, which is not a selected feature", f)
		}
	}
	return targetIdx, featIdx, evidence, nil
}
